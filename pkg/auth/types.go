package auth

// Role is a caller's functional role.
type Role string

const (
	RoleCollector    Role = "Collector"
	RoleAnalyst      Role = "Analyst"
	RoleSupervisor   Role = "Supervisor"
	RoleLegalCounsel Role = "LegalCounsel"
	RoleJudge        Role = "Judge"
	RoleAuditor      Role = "Auditor"
	RoleAdmin        Role = "Admin"
)

// Organization is the member organization a caller acts for.
type Organization string

const (
	OrgLawEnforcement Organization = "LawEnforcement"
	OrgForensicLab    Organization = "ForensicLab"
	OrgJudiciary      Organization = "Judiciary"
)

// Identity is the pre-validated caller identity supplied by the external
// membership service. It is never persisted.
type Identity struct {
	SubjectID      string       `json:"subject_id"`
	OrganizationID Organization `json:"organization_id"`
	Role           Role         `json:"role"`
	DisplayName    string       `json:"display_name,omitempty"`
}

// Valid reports whether every mandatory field is populated.
func (i Identity) Valid() bool {
	return i.SubjectID != "" && i.OrganizationID != "" && i.Role != ""
}

// String renders the identity for logs.
func (i Identity) String() string {
	return i.SubjectID + "@" + string(i.OrganizationID) + "/" + string(i.Role)
}
