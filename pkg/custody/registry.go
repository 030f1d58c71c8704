package custody

import (
	"context"
	"strings"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/lifecycle"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
	"golang.org/x/text/unicode/norm"
)

// RegisterInput is the data supplied when registering an evidence item.
type RegisterInput struct {
	ID               string
	CaseID           string
	ContentID        string
	OriginalHash     string
	EncryptionKeyRef string
	Metadata         contracts.EvidenceMetadata
}

func (in RegisterInput) validate() error {
	for _, f := range []struct{ name, value string }{
		{"id", in.ID},
		{"case_id", in.CaseID},
		{"content_id", in.ContentID},
		{"original_hash", in.OriginalHash},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Reason: "required"}
		}
	}
	return nil
}

// Register creates an evidence item in REGISTERED status with the caller as
// custodian and appends its REGISTRATION event.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*contracts.Evidence, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var out *contracts.Evidence
	err := e.mutate(ctx, op{"register", authz.PermRegisterEvidence, in.ID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		ev := &contracts.Evidence{
			ID:               in.ID,
			CaseID:           in.CaseID,
			ContentID:        in.ContentID,
			OriginalHash:     in.OriginalHash,
			EncryptionKeyRef: in.EncryptionKeyRef,
			Metadata:         in.Metadata,
			Status:           contracts.StatusRegistered,
			CustodianID:      caller.SubjectID,
			CustodianOrg:     string(caller.OrganizationID),
			RegisteredBy:     caller.SubjectID,
			CreatedAt:        c.Timestamp,
		}
		if err := tx.Create(ev); err != nil {
			return err
		}
		sealed, err := tx.AppendEvent(newEvent(caller, contracts.EventRegistration, registrationDetails(in), func(ce *contracts.CustodyEvent) {
			ce.ToEntity = caller.SubjectID
			ce.ToOrg = string(caller.OrganizationID)
		}))
		if err != nil {
			return err
		}
		out = advance(ev, sealed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TransferInput names the receiving custodian.
type TransferInput struct {
	EvidenceID string
	ToEntity   string
	ToOrg      auth.Organization
	Reason     string
}

// Transfer moves custody to another entity. The caller must be the current
// custodian or a Supervisor in the custodian's organization, and the target
// organization must be able to receive custody. A transfer out of
// REGISTERED advances to IN_CUSTODY; a transfer into the analysis
// organization while IN_CUSTODY advances to IN_ANALYSIS.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) (*contracts.Evidence, error) {
	if strings.TrimSpace(in.ToEntity) == "" {
		return nil, &ValidationError{Field: "to_entity", Reason: "required"}
	}
	if in.ToOrg == "" {
		return nil, &ValidationError{Field: "to_org", Reason: "required"}
	}
	var out *contracts.Evidence
	err := e.mutate(ctx, op{"transfer", authz.PermTransferCustody, in.EvidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		ev, err := loadEvidence(tx, in.EvidenceID)
		if err != nil {
			return err
		}
		if err := checkCustodian(ev, caller); err != nil {
			return err
		}
		if !e.authz.CanReceiveCustody(in.ToOrg) {
			return custodyError(ev, caller, "organization "+string(in.ToOrg)+" cannot receive custody")
		}
		next, err := lifecycle.TransferEffect(ev.Status, string(in.ToOrg), string(e.authz.AnalysisOrganization()))
		if err != nil {
			return err
		}

		details := map[string]any{detailStatus: string(next)}
		if next != ev.Status {
			details[detailFromStatus] = string(ev.Status)
		}
		event := newEvent(caller, contracts.EventTransfer, details, func(ce *contracts.CustodyEvent) {
			ce.FromEntity = ev.CustodianID
			ce.FromOrg = ev.CustodianOrg
			ce.ToEntity = in.ToEntity
			ce.ToOrg = string(in.ToOrg)
			ce.Reason = in.Reason
		})

		ev.CustodianID = in.ToEntity
		ev.CustodianOrg = string(in.ToOrg)
		ev.Status = next
		if err := tx.Put(ev); err != nil {
			return err
		}
		sealed, err := tx.AppendEvent(event)
		if err != nil {
			return err
		}
		out = advance(ev, sealed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddTag attaches a tag. Tags are trimmed and NFC-normalized; adding a tag
// already present succeeds without appending an event.
func (e *Engine) AddTag(ctx context.Context, evidenceID, tag string) (*contracts.Evidence, error) {
	tag = norm.NFC.String(strings.TrimSpace(tag))
	if tag == "" {
		return nil, &ValidationError{Field: "tag", Reason: "empty"}
	}
	var out *contracts.Evidence
	err := e.mutate(ctx, op{"add_tag", authz.PermAddTag, evidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		ev, err := loadEvidence(tx, evidenceID)
		if err != nil {
			return err
		}
		if ev.HasTag(tag) {
			out = ev
			return nil
		}
		ev.Tags = append(ev.Tags, tag)
		if err := tx.Put(ev); err != nil {
			return err
		}
		sealed, err := tx.AppendEvent(newEvent(caller, contracts.EventTagAdded, map[string]any{detailTag: tag}, nil))
		if err != nil {
			return err
		}
		out = advance(ev, sealed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// reservedStatuses are only reachable through their dedicated operations.
var reservedStatuses = map[contracts.Status]string{
	contracts.StatusUnderReview: "SubmitForReview",
	contracts.StatusAdmitted:    "RecordDecision",
	contracts.StatusRejected:    "RecordDecision",
}

// UpdateStatus applies an explicit status change. The caller must act for
// the custodian's organization. Review and decision statuses are reserved
// for SubmitForReview and RecordDecision.
func (e *Engine) UpdateStatus(ctx context.Context, evidenceID string, to contracts.Status, reason string) (*contracts.Evidence, error) {
	if via, ok := reservedStatuses[to]; ok {
		return nil, &ValidationError{Field: "status", Reason: string(to) + " is set by " + via}
	}
	var out *contracts.Evidence
	err := e.mutate(ctx, op{"update_status", authz.PermUpdateStatus, evidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		ev, err := loadEvidence(tx, evidenceID)
		if err != nil {
			return err
		}
		if err := checkCustodianOrg(ev, caller); err != nil {
			return err
		}
		if err := lifecycle.ValidateTransition(ev.Status, to); err != nil {
			return err
		}
		event := newEvent(caller, contracts.EventStatusChange, map[string]any{
			detailFromStatus: string(ev.Status),
			detailStatus:     string(to),
		}, func(ce *contracts.CustodyEvent) { ce.Reason = reason })

		ev.Status = to
		if err := tx.Put(ev); err != nil {
			return err
		}
		sealed, err := tx.AppendEvent(event)
		if err != nil {
			return err
		}
		out = advance(ev, sealed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyIntegrity compares hash verbatim against the stored original hash.
// Either outcome is recorded on the snapshot and as a VERIFICATION event;
// a mismatch is reported as false, not as an error.
func (e *Engine) VerifyIntegrity(ctx context.Context, evidenceID, hash string) (bool, error) {
	var match bool
	err := e.mutate(ctx, op{"verify_integrity", authz.PermVerifyIntegrity, evidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		ev, err := loadEvidence(tx, evidenceID)
		if err != nil {
			return err
		}
		match = hash == ev.OriginalHash
		at := c.Timestamp
		ev.IntegrityVerified = match
		ev.LastVerifiedAt = &at
		if err := tx.Put(ev); err != nil {
			return err
		}
		_, err = tx.AppendEvent(newEvent(caller, contracts.EventVerification, map[string]any{
			detailTarget:   targetIntegrity,
			detailMatch:    match,
			detailProvided: hash,
		}, func(ce *contracts.CustodyEvent) { ce.Verified = match }))
		return err
	})
	if err != nil {
		return false, err
	}
	e.obs.RecordIntegrity(ctx, evidenceID, match)
	if !match {
		e.logger.WarnContext(ctx, "integrity mismatch", "evidence_id", evidenceID, "provided_hash", hash)
	}
	return match, nil
}

// advance moves a staged snapshot's head to the sealed event, matching what
// the ledger writes at commit.
func advance(ev *contracts.Evidence, sealed *contracts.CustodyEvent) *contracts.Evidence {
	ev.HeadSequence = sealed.Sequence
	ev.HeadIndex = sealed.Index
	ev.HeadHash = sealed.Hash
	ev.UpdatedAt = sealed.Timestamp
	return ev
}

func newEvent(caller auth.Identity, t contracts.EventType, details map[string]any, fill func(*contracts.CustodyEvent)) *contracts.CustodyEvent {
	ce := &contracts.CustodyEvent{
		Type:          t,
		Details:       details,
		PerformedBy:   caller.SubjectID,
		PerformerOrg:  string(caller.OrganizationID),
		PerformerRole: string(caller.Role),
	}
	if fill != nil {
		fill(ce)
	}
	return ce
}

// checkCustodian admits the current custodian and Supervisors of the
// custodian's organization.
func checkCustodian(ev *contracts.Evidence, caller auth.Identity) error {
	if caller.SubjectID == ev.CustodianID && string(caller.OrganizationID) == ev.CustodianOrg {
		return nil
	}
	if caller.Role == auth.RoleSupervisor && string(caller.OrganizationID) == ev.CustodianOrg {
		return nil
	}
	return custodyError(ev, caller, "caller is neither custodian nor a supervisor of the custodian's organization")
}

// checkCustodianOrg admits any caller acting for the custodian's organization.
func checkCustodianOrg(ev *contracts.Evidence, caller auth.Identity) error {
	if string(caller.OrganizationID) == ev.CustodianOrg {
		return nil
	}
	return custodyError(ev, caller, "caller's organization does not hold custody")
}

func custodyError(ev *contracts.Evidence, caller auth.Identity, reason string) error {
	return &InvalidCustodyError{
		EvidenceID:   ev.ID,
		SubjectID:    caller.SubjectID,
		CustodianID:  ev.CustodianID,
		CustodianOrg: ev.CustodianOrg,
		Reason:       reason,
	}
}
