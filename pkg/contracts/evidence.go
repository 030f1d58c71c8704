package contracts

import "time"

// Status is the lifecycle status of an evidence item.
type Status string

const (
	StatusRegistered  Status = "REGISTERED"
	StatusInCustody   Status = "IN_CUSTODY"
	StatusInAnalysis  Status = "IN_ANALYSIS"
	StatusAnalyzed    Status = "ANALYZED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusAdmitted    Status = "ADMITTED"
	StatusRejected    Status = "REJECTED"
	StatusArchived    Status = "ARCHIVED"
	StatusDisposed    Status = "DISPOSED"
)

// AllStatuses lists every defined lifecycle status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusRegistered,
		StatusInCustody,
		StatusInAnalysis,
		StatusAnalyzed,
		StatusUnderReview,
		StatusAdmitted,
		StatusRejected,
		StatusArchived,
		StatusDisposed,
	}
}

// EvidenceMetadata is the descriptive metadata supplied at registration.
type EvidenceMetadata struct {
	Name            string `json:"name"`
	Type            string `json:"type,omitempty"`
	Size            int64  `json:"size,omitempty"`
	Source          string `json:"source,omitempty"`
	AcquisitionInfo string `json:"acquisition_info,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// Evidence is the current snapshot of a registered evidence item.
//
// The snapshot is derived from the item's custody events: replaying the
// history in order reproduces every field below.
type Evidence struct {
	ID               string           `json:"id"`
	CaseID           string           `json:"case_id"`
	ContentID        string           `json:"content_id"`
	OriginalHash     string           `json:"original_hash"`
	EncryptionKeyRef string           `json:"encryption_key_ref,omitempty"`
	Metadata         EvidenceMetadata `json:"metadata"`

	Status       Status `json:"status"`
	CustodianID  string `json:"custodian_id"`
	CustodianOrg string `json:"custodian_org"`
	RegisteredBy string `json:"registered_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tags []string `json:"tags"`

	IntegrityVerified bool       `json:"integrity_verified"`
	LastVerifiedAt    *time.Time `json:"last_verified_at,omitempty"`

	// Ledger head: position and hash of the latest accepted event.
	// HeadSequence/HeadIndex double as the compare-and-swap version stamp.
	HeadSequence uint64 `json:"head_sequence"`
	HeadIndex    int    `json:"head_index"`
	HeadHash     string `json:"head_hash"`
}

// HasTag reports whether tag is already attached.
func (e *Evidence) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the snapshot.
func (e *Evidence) Clone() *Evidence {
	if e == nil {
		return nil
	}
	c := *e
	c.Tags = append([]string(nil), e.Tags...)
	if e.LastVerifiedAt != nil {
		t := *e.LastVerifiedAt
		c.LastVerifiedAt = &t
	}
	return &c
}
