package contracts

import "time"

// AuditReport is a sealed evidentiary dossier for one evidence item.
// It is derived on demand and never stored as mutable state.
type AuditReport struct {
	ID          string            `json:"id"`
	Evidence    *Evidence         `json:"evidence"`
	Events      []*CustodyEvent   `json:"events"`
	Analyses    []*AnalysisRecord `json:"analyses"`
	Reviews     []*JudicialReview `json:"reviews"`
	GeneratedAt time.Time         `json:"generated_at"`
	GeneratedBy string            `json:"generated_by"`

	// Verified mirrors Evidence.IntegrityVerified at generation time.
	Verified bool `json:"verified"`
	// ChainValid is the result of recomputing the event hash chain.
	ChainValid bool `json:"chain_valid"`

	DigestAlgorithm string `json:"digest_algorithm"`
	Digest          string `json:"digest,omitempty"`
}
