package custody

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
)

// Custody event detail keys. Details are loose by nature, but the keys
// below carry everything Replay needs to rebuild a snapshot.
const (
	detailStatus     = "status"
	detailFromStatus = "from_status"
	detailTag        = "tag"
	detailTarget     = "target"
	detailMatch      = "match"
	detailProvided   = "provided_hash"
	detailRequestID  = "request_id"
	detailAnalysisID = "analysis_id"
	detailReviewID   = "review_id"
	detailDecision   = "decision"
	detailTool       = "tool"
	detailReportID   = "report_id"
	detailArtifact   = "artifact"
	detailDigest     = "digest"

	detailCaseID       = "case_id"
	detailContentID    = "content_id"
	detailOriginalHash = "original_hash"
	detailKeyRef       = "encryption_key_ref"
	detailMetadata     = "metadata"

	targetIntegrity = "integrity"
	targetAnalysis  = "analysis"
)

func registrationDetails(in RegisterInput) map[string]any {
	d := map[string]any{
		detailCaseID:       in.CaseID,
		detailContentID:    in.ContentID,
		detailOriginalHash: in.OriginalHash,
		detailStatus:       string(contracts.StatusRegistered),
		detailMetadata:     in.Metadata,
	}
	if in.EncryptionKeyRef != "" {
		d[detailKeyRef] = in.EncryptionKeyRef
	}
	return d
}

// Replay folds an item's custody history into the snapshot it implies.
// Events may be passed in any order; they are applied in ledger order.
// The first event must be the REGISTRATION.
func Replay(events []*contracts.CustodyEvent) (*contracts.Evidence, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("replay: empty history")
	}
	ordered := append([]*contracts.CustodyEvent(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	reg := ordered[0]
	if reg.Type != contracts.EventRegistration {
		return nil, fmt.Errorf("replay: history of %s starts with %s", reg.EvidenceID, reg.Type)
	}
	ev := &contracts.Evidence{
		ID:               reg.EvidenceID,
		CaseID:           detailString(reg, detailCaseID),
		ContentID:        detailString(reg, detailContentID),
		OriginalHash:     detailString(reg, detailOriginalHash),
		EncryptionKeyRef: detailString(reg, detailKeyRef),
		Status:           contracts.StatusRegistered,
		CustodianID:      reg.ToEntity,
		CustodianOrg:     reg.ToOrg,
		RegisteredBy:     reg.PerformedBy,
		CreatedAt:        reg.Timestamp,
	}
	if err := decodeDetail(reg, detailMetadata, &ev.Metadata); err != nil {
		return nil, fmt.Errorf("replay: %s metadata: %w", reg.ID, err)
	}

	for i, e := range ordered {
		if e.EvidenceID != ev.ID {
			return nil, fmt.Errorf("replay: event %s belongs to %s, not %s", e.ID, e.EvidenceID, ev.ID)
		}
		if i > 0 && e.Type == contracts.EventRegistration {
			return nil, fmt.Errorf("replay: second registration %s", e.ID)
		}
		switch e.Type {
		case contracts.EventTransfer:
			ev.CustodianID = e.ToEntity
			ev.CustodianOrg = e.ToOrg
		case contracts.EventTagAdded:
			if tag := detailString(e, detailTag); tag != "" && !ev.HasTag(tag) {
				ev.Tags = append(ev.Tags, tag)
			}
		case contracts.EventVerification:
			if detailString(e, detailTarget) == targetIntegrity {
				at := e.Timestamp
				ev.IntegrityVerified = e.Verified
				ev.LastVerifiedAt = &at
			}
		}
		if s := detailString(e, detailStatus); s != "" {
			ev.Status = contracts.Status(s)
		}
	}

	// The head is the last event in commit order, which ledger order agrees
	// with because commit timestamps never go backwards.
	last := ordered[len(ordered)-1]
	for _, e := range ordered {
		if e.Sequence > last.Sequence || (e.Sequence == last.Sequence && e.Index > last.Index) {
			last = e
		}
	}
	ev.HeadSequence = last.Sequence
	ev.HeadIndex = last.Index
	ev.HeadHash = last.Hash
	ev.UpdatedAt = last.Timestamp
	return ev, nil
}

func detailString(e *contracts.CustodyEvent, key string) string {
	s, _ := e.Details[key].(string)
	return s
}

// decodeDetail converts a detail value into out through JSON, so values
// read back from storage as generic maps decode the same as the originals.
func decodeDetail(e *contracts.CustodyEvent, key string, out any) error {
	v, ok := e.Details[key]
	if !ok || v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
