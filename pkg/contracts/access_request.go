package contracts

import "time"

// AccessStatus is the decision state of an access request.
type AccessStatus string

const (
	AccessPending  AccessStatus = "PENDING"
	AccessApproved AccessStatus = "APPROVED"
	AccessDenied   AccessStatus = "DENIED"
)

// AccessRequest asks for access to an evidence item for a stated purpose.
type AccessRequest struct {
	ID            string       `json:"id"`
	EvidenceID    string       `json:"evidence_id"`
	RequesterID   string       `json:"requester_id"`
	RequesterOrg  string       `json:"requester_org"`
	RequesterRole string       `json:"requester_role"`
	Purpose       string       `json:"purpose"`
	RequestedAt   time.Time    `json:"requested_at"`
	Status        AccessStatus `json:"status"`
	ApprovedBy    string       `json:"approved_by,omitempty"`
	DecidedAt     *time.Time   `json:"decided_at,omitempty"`
	DenialReason  string       `json:"denial_reason,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
}

// Expired reports whether the request is no longer usable at now.
// Approved requests expire at ExpiresAt; pending ones once pendingTTL has
// elapsed since RequestedAt (a zero TTL disables pending expiry).
func (r *AccessRequest) Expired(now time.Time, pendingTTL time.Duration) bool {
	switch r.Status {
	case AccessApproved:
		return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
	case AccessPending:
		return pendingTTL > 0 && !now.Before(r.RequestedAt.Add(pendingTTL))
	default:
		return false
	}
}
