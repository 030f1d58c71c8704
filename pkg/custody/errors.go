package custody

import (
	"errors"
	"fmt"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/lifecycle"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
)

// AuthorizationError is returned when the caller's role and organization do
// not jointly carry the required permission. It is never retried.
type AuthorizationError = authz.AuthorizationError

// InvalidTransitionError names both endpoints of a rejected status change.
type InvalidTransitionError = lifecycle.InvalidTransitionError

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// DuplicateError is returned when registering an id that already exists.
type DuplicateError struct {
	Kind string
	ID   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Kind, e.ID)
}

// InvalidCustodyError is returned when the caller may not act on the item's
// custody: not the custodian, not an eligible supervisor, or a transfer
// target that cannot receive custody.
type InvalidCustodyError struct {
	EvidenceID   string
	SubjectID    string
	CustodianID  string
	CustodianOrg string
	Reason       string
}

func (e *InvalidCustodyError) Error() string {
	return fmt.Sprintf("invalid custody for %s by %s (custodian %s@%s): %s",
		e.EvidenceID, e.SubjectID, e.CustodianID, e.CustodianOrg, e.Reason)
}

// AlreadyDecidedError is returned when a review, access request or analysis
// verification has already been resolved.
type AlreadyDecidedError struct {
	Kind  string
	ID    string
	State string
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("%s %s already decided: %s", e.Kind, e.ID, e.State)
}

// RetryableConflictError is returned when a concurrent commit touched the
// same evidence item. The whole operation may be retried.
type RetryableConflictError struct {
	EvidenceID string
	Err        error
}

func (e *RetryableConflictError) Error() string {
	return fmt.Sprintf("conflicting write on %s, retry: %v", e.EvidenceID, e.Err)
}

func (e *RetryableConflictError) Unwrap() error { return e.Err }

// ValidationError is returned for malformed operation input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsRetryable reports whether err is a RetryableConflictError.
func IsRetryable(err error) bool {
	var c *RetryableConflictError
	return errors.As(err, &c)
}

// storeError maps ledger sentinels onto the typed errors above. Errors that
// are already typed pass through unchanged.
func storeError(evidenceID string, err error) error {
	if err == nil || typed(err) {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrConflict):
		return &RetryableConflictError{EvidenceID: evidenceID, Err: err}
	case errors.Is(err, ledger.ErrDuplicate):
		return &DuplicateError{Kind: "evidence", ID: evidenceID}
	case errors.Is(err, ledger.ErrNotFound):
		return &NotFoundError{Kind: "evidence", ID: evidenceID}
	}
	return err
}

func typed(err error) bool {
	var (
		a *AuthorizationError
		t *InvalidTransitionError
		n *NotFoundError
		d *DuplicateError
		c *InvalidCustodyError
		x *AlreadyDecidedError
		r *RetryableConflictError
		v *ValidationError
	)
	return errors.As(err, &a) || errors.As(err, &t) || errors.As(err, &n) || errors.As(err, &d) ||
		errors.As(err, &c) || errors.As(err, &x) || errors.As(err, &r) || errors.As(err, &v)
}
