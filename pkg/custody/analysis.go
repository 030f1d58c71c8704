package custody

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/lifecycle"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
)

// StartAnalysis moves the item to IN_ANALYSIS. The caller must act for the
// custodian's organization.
func (e *Engine) StartAnalysis(ctx context.Context, evidenceID, toolName string) (*contracts.Evidence, error) {
	var out *contracts.Evidence
	err := e.mutate(ctx, op{"start_analysis", authz.PermRecordAnalysis, evidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		ev, err := loadEvidence(tx, evidenceID)
		if err != nil {
			return err
		}
		if err := checkCustodianOrg(ev, caller); err != nil {
			return err
		}
		if err := lifecycle.ValidateTransition(ev.Status, contracts.StatusInAnalysis); err != nil {
			return err
		}
		details := map[string]any{
			detailFromStatus: string(ev.Status),
			detailStatus:     string(contracts.StatusInAnalysis),
		}
		if toolName != "" {
			details[detailTool] = toolName
		}
		ev.Status = contracts.StatusInAnalysis
		if err := tx.Put(ev); err != nil {
			return err
		}
		sealed, err := tx.AppendEvent(newEvent(caller, contracts.EventAnalysisStart, details, nil))
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

// AnalysisInput is one completed forensic analysis.
type AnalysisInput struct {
	EvidenceID  string
	ToolName    string
	ToolVersion string
	// StartedAt defaults to the commit time when zero.
	StartedAt   time.Time
	Findings    string
	Artifacts   []string
	Methodology string
}

// RecordAnalysis stores an analysis record and appends ANALYSIS_END. The
// caller's organization must hold custody. The item must be IN_ANALYSIS,
// which advances to ANALYZED, or already ANALYZED, which it stays.
func (e *Engine) RecordAnalysis(ctx context.Context, in AnalysisInput) (*contracts.AnalysisRecord, error) {
	if strings.TrimSpace(in.ToolName) == "" {
		return nil, &ValidationError{Field: "tool_name", Reason: "required"}
	}
	if strings.TrimSpace(in.Findings) == "" {
		return nil, &ValidationError{Field: "findings", Reason: "required"}
	}
	var out *contracts.AnalysisRecord
	err := e.mutate(ctx, op{"record_analysis", authz.PermRecordAnalysis, in.EvidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		ev, err := loadEvidence(tx, in.EvidenceID)
		if err != nil {
			return err
		}
		if err := checkCustodianOrg(ev, caller); err != nil {
			return err
		}
		switch ev.Status {
		case contracts.StatusInAnalysis:
			if err := lifecycle.ValidateTransition(ev.Status, contracts.StatusAnalyzed); err != nil {
				return err
			}
		case contracts.StatusAnalyzed:
		default:
			return &InvalidTransitionError{From: ev.Status, To: contracts.StatusAnalyzed}
		}

		started := in.StartedAt.UTC()
		if in.StartedAt.IsZero() {
			started = c.Timestamp
		}
		rec := &contracts.AnalysisRecord{
			ID:          newID("ANL"),
			EvidenceID:  in.EvidenceID,
			AnalystID:   caller.SubjectID,
			AnalystOrg:  string(caller.OrganizationID),
			ToolName:    in.ToolName,
			ToolVersion: in.ToolVersion,
			StartedAt:   started,
			CompletedAt: c.Timestamp,
			Findings:    in.Findings,
			Artifacts:   append([]string(nil), in.Artifacts...),
			Methodology: in.Methodology,
		}
		if err := tx.PutAnalysisRecord(rec); err != nil {
			return err
		}
		details := map[string]any{
			detailAnalysisID: rec.ID,
			detailTool:       rec.ToolName,
			detailStatus:     string(contracts.StatusAnalyzed),
		}
		if ev.Status != contracts.StatusAnalyzed {
			details[detailFromStatus] = string(ev.Status)
			ev.Status = contracts.StatusAnalyzed
		}
		if err := tx.Put(ev); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(newEvent(caller, contracts.EventAnalysisEnd, details, nil)); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyAnalysis marks an analysis record verified. It can happen once, and
// not by the analyst who produced the record.
func (e *Engine) VerifyAnalysis(ctx context.Context, evidenceID, analysisID string) (*contracts.AnalysisRecord, error) {
	var out *contracts.AnalysisRecord
	err := e.mutate(ctx, op{"verify_analysis", authz.PermVerifyAnalysis, evidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		if _, err := loadEvidence(tx, evidenceID); err != nil {
			return err
		}
		rec, err := tx.AnalysisRecord(analysisID)
		if errors.Is(err, ledger.ErrNotFound) {
			return &NotFoundError{Kind: "analysis record", ID: analysisID}
		}
		if err != nil {
			return err
		}
		if rec.Verified {
			return &AlreadyDecidedError{Kind: "analysis record", ID: analysisID, State: "VERIFIED by " + rec.VerifiedBy}
		}
		if rec.AnalystID == caller.SubjectID {
			return &ValidationError{Field: "verifier", Reason: "analyst cannot verify own analysis"}
		}
		at := c.Timestamp
		rec.Verified = true
		rec.VerifiedBy = caller.SubjectID
		rec.VerifiedAt = &at
		if err := tx.PutAnalysisRecord(rec); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(newEvent(caller, contracts.EventVerification, map[string]any{
			detailTarget:     targetAnalysis,
			detailAnalysisID: rec.ID,
		}, func(ce *contracts.CustodyEvent) { ce.Verified = true })); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
