package contracts

import "time"

// AnalysisRecord documents one forensic analysis of an evidence item.
type AnalysisRecord struct {
	ID          string     `json:"id"`
	EvidenceID  string     `json:"evidence_id"`
	AnalystID   string     `json:"analyst_id"`
	AnalystOrg  string     `json:"analyst_org"`
	ToolName    string     `json:"tool_name"`
	ToolVersion string     `json:"tool_version,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Findings    string     `json:"findings"`
	Artifacts   []string   `json:"artifacts,omitempty"`
	Methodology string     `json:"methodology,omitempty"`
	Verified    bool       `json:"verified"`
	VerifiedBy  string     `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
}
