package custody

import (
	"context"
	"errors"
	"strings"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
)

// RequestAccess files a pending access request for the caller.
func (e *Engine) RequestAccess(ctx context.Context, evidenceID, purpose string) (*contracts.AccessRequest, error) {
	if strings.TrimSpace(purpose) == "" {
		return nil, &ValidationError{Field: "purpose", Reason: "required"}
	}
	var out *contracts.AccessRequest
	err := e.mutate(ctx, op{"request_access", authz.PermRequestAccess, evidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		if _, err := loadEvidence(tx, evidenceID); err != nil {
			return err
		}
		req := &contracts.AccessRequest{
			ID:            newID("ACR"),
			EvidenceID:    evidenceID,
			RequesterID:   caller.SubjectID,
			RequesterOrg:  string(caller.OrganizationID),
			RequesterRole: string(caller.Role),
			Purpose:       purpose,
			RequestedAt:   c.Timestamp,
			Status:        contracts.AccessPending,
		}
		if err := tx.PutAccessRequest(req); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(newEvent(caller, contracts.EventAccessRequest, map[string]any{
			detailRequestID: req.ID,
		}, func(ce *contracts.CustodyEvent) { ce.Reason = purpose })); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GrantAccess approves a pending request for the configured access window.
// Requesters cannot approve their own requests, and a request left pending
// past its TTL can no longer be granted.
func (e *Engine) GrantAccess(ctx context.Context, evidenceID, requestID string) (*contracts.AccessRequest, error) {
	var out *contracts.AccessRequest
	err := e.mutate(ctx, op{"grant_access", authz.PermApproveAccess, evidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		req, err := e.pendingRequest(tx, evidenceID, requestID, c)
		if err != nil {
			return err
		}
		if req.RequesterID == caller.SubjectID {
			return &ValidationError{Field: "approver", Reason: "requester cannot approve own request"}
		}
		decided := c.Timestamp
		expires := decided.Add(e.accessWindow)
		req.Status = contracts.AccessApproved
		req.ApprovedBy = caller.SubjectID
		req.DecidedAt = &decided
		req.ExpiresAt = &expires
		if err := tx.PutAccessRequest(req); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(newEvent(caller, contracts.EventAccessGranted, map[string]any{
			detailRequestID: req.ID,
			"expires_at":    expires,
		}, func(ce *contracts.CustodyEvent) {
			ce.ToEntity = req.RequesterID
			ce.ToOrg = req.RequesterOrg
		})); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DenyAccess rejects a pending request.
func (e *Engine) DenyAccess(ctx context.Context, evidenceID, requestID, reason string) (*contracts.AccessRequest, error) {
	var out *contracts.AccessRequest
	err := e.mutate(ctx, op{"deny_access", authz.PermApproveAccess, evidenceID}, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		req, err := e.pendingRequest(tx, evidenceID, requestID, c)
		if err != nil && !isExpired(err) {
			return err
		}
		decided := c.Timestamp
		req.Status = contracts.AccessDenied
		req.ApprovedBy = caller.SubjectID
		req.DecidedAt = &decided
		req.DenialReason = reason
		if err := tx.PutAccessRequest(req); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(newEvent(caller, contracts.EventAccessDenied, map[string]any{
			detailRequestID: req.ID,
		}, func(ce *contracts.CustodyEvent) {
			ce.ToEntity = req.RequesterID
			ce.ToOrg = req.RequesterOrg
			ce.Reason = reason
		})); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const stateExpired = "EXPIRED"

// pendingRequest loads a request that is still awaiting a decision. An
// expired pending request is returned together with an AlreadyDecidedError
// in state EXPIRED so that denial can still close it out.
func (e *Engine) pendingRequest(tx ledger.Tx, evidenceID, requestID string, c ledger.Commit) (*contracts.AccessRequest, error) {
	if _, err := loadEvidence(tx, evidenceID); err != nil {
		return nil, err
	}
	req, err := tx.AccessRequest(requestID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, &NotFoundError{Kind: "access request", ID: requestID}
	}
	if err != nil {
		return nil, err
	}
	if req.Status != contracts.AccessPending {
		return nil, &AlreadyDecidedError{Kind: "access request", ID: requestID, State: string(req.Status)}
	}
	if req.Expired(c.Timestamp, e.pendingTTL) {
		return req, &AlreadyDecidedError{Kind: "access request", ID: requestID, State: stateExpired}
	}
	return req, nil
}

func isExpired(err error) bool {
	var d *AlreadyDecidedError
	return errors.As(err, &d) && d.State == stateExpired
}

// HasActiveAccess reports whether subjectID holds an approved, unexpired
// access request for the item.
func (e *Engine) HasActiveAccess(ctx context.Context, evidenceID, subjectID string) (ok bool, err error) {
	ctx, done, err := e.view(ctx, "has_active_access", evidenceID)
	if err != nil {
		return false, err
	}
	defer func() { done(err) }()

	reqs, err := e.store.AccessRequests(ctx, evidenceID)
	if err != nil {
		return false, storeError(evidenceID, err)
	}
	now := e.clock()
	for _, r := range reqs {
		if r.RequesterID == subjectID && r.Status == contracts.AccessApproved && !r.Expired(now, e.pendingTTL) {
			return true, nil
		}
	}
	return false, nil
}
