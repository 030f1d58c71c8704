package custody

import (
	"context"
	"errors"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/lifecycle"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
)

// SubmitForReview opens a pending judicial review and moves the item to
// UNDER_REVIEW.
func (e *Engine) SubmitForReview(ctx context.Context, evidenceID, caseNotes, externalRef string) (*contracts.JudicialReview, error) {
	var out *contracts.JudicialReview
	err := e.mutate(ctx, op{"submit_review", authz.PermSubmitReview, evidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		ev, err := loadEvidence(tx, evidenceID)
		if err != nil {
			return err
		}
		if err := lifecycle.ValidateTransition(ev.Status, contracts.StatusUnderReview); err != nil {
			return err
		}
		rev := &contracts.JudicialReview{
			ID:          newID("REV"),
			EvidenceID:  evidenceID,
			CaseID:      ev.CaseID,
			SubmittedBy: caller.SubjectID,
			SubmittedAt: c.Timestamp,
			CaseNotes:   caseNotes,
			Decision:    contracts.DecisionPending,
			ExternalRef: externalRef,
		}
		if err := tx.PutJudicialReview(rev); err != nil {
			return err
		}
		details := map[string]any{
			detailReviewID:   rev.ID,
			detailFromStatus: string(ev.Status),
			detailStatus:     string(contracts.StatusUnderReview),
		}
		ev.Status = contracts.StatusUnderReview
		if err := tx.Put(ev); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(newEvent(caller, contracts.EventJudicialSubmit, details, nil)); err != nil {
			return err
		}
		out = rev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordDecision decides a pending review as ADMITTED or REJECTED and moves
// the item to the matching status. A review is decided exactly once.
func (e *Engine) RecordDecision(ctx context.Context, evidenceID, reviewID string, decision contracts.Decision, reason string) (*contracts.JudicialReview, error) {
	if decision != contracts.DecisionAdmitted && decision != contracts.DecisionRejected {
		return nil, &ValidationError{Field: "decision", Reason: "must be ADMITTED or REJECTED, got " + string(decision)}
	}
	var out *contracts.JudicialReview
	err := e.mutate(ctx, op{"record_decision", authz.PermRecordDecision, evidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		ev, err := loadEvidence(tx, evidenceID)
		if err != nil {
			return err
		}
		rev, err := tx.JudicialReview(reviewID)
		if errors.Is(err, ledger.ErrNotFound) {
			return &NotFoundError{Kind: "judicial review", ID: reviewID}
		}
		if err != nil {
			return err
		}
		if rev.Decision != contracts.DecisionPending {
			return &AlreadyDecidedError{Kind: "judicial review", ID: reviewID, State: string(rev.Decision)}
		}
		to := contracts.Status(decision)
		if err := lifecycle.ValidateTransition(ev.Status, to); err != nil {
			return err
		}

		at := c.Timestamp
		rev.Decision = decision
		rev.DecisionReason = reason
		rev.DecidedBy = caller.SubjectID
		rev.DecidedAt = &at
		if err := tx.PutJudicialReview(rev); err != nil {
			return err
		}
		details := map[string]any{
			detailReviewID:   rev.ID,
			detailDecision:   string(decision),
			detailFromStatus: string(ev.Status),
			detailStatus:     string(to),
		}
		ev.Status = to
		if err := tx.Put(ev); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(newEvent(caller, contracts.EventJudicialDecision, details, func(ce *contracts.CustodyEvent) {
			ce.Reason = reason
		})); err != nil {
			return err
		}
		out = rev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
