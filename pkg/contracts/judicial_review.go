package contracts

import "time"

// Decision is the outcome of a judicial review.
type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionAdmitted Decision = "ADMITTED"
	DecisionRejected Decision = "REJECTED"
)

// JudicialReview is a submission of evidence for admissibility review.
// A review is decided exactly once.
type JudicialReview struct {
	ID             string     `json:"id"`
	EvidenceID     string     `json:"evidence_id"`
	CaseID         string     `json:"case_id"`
	SubmittedBy    string     `json:"submitted_by"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	CaseNotes      string     `json:"case_notes,omitempty"`
	Decision       Decision   `json:"decision"`
	DecisionReason string     `json:"decision_reason,omitempty"`
	DecidedBy      string     `json:"decided_by,omitempty"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	ExternalRef    string     `json:"external_ref,omitempty"`
}
