package authz

import (
	"context"
	"fmt"
	"sort"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
)

// Permission is an atomic named capability.
type Permission string

const (
	PermRegisterEvidence Permission = "register_evidence"
	PermViewEvidence     Permission = "view_evidence"
	PermTransferCustody  Permission = "transfer_custody"
	PermReceiveCustody   Permission = "receive_custody"
	PermRequestAccess    Permission = "request_access"
	PermApproveAccess    Permission = "approve_access"
	PermRecordAnalysis   Permission = "record_analysis"
	PermVerifyAnalysis   Permission = "verify_analysis"
	PermAddTag           Permission = "add_tag"
	PermUpdateStatus     Permission = "update_status"
	PermSubmitReview     Permission = "submit_review"
	PermRecordDecision   Permission = "record_decision"
	PermVerifyIntegrity  Permission = "verify_integrity"
	PermGenerateReport   Permission = "generate_report"
	PermExportReport     Permission = "export_report"
)

// AllPermissions lists every defined permission.
func AllPermissions() []Permission {
	return []Permission{
		PermRegisterEvidence, PermViewEvidence, PermTransferCustody, PermReceiveCustody,
		PermRequestAccess, PermApproveAccess, PermRecordAnalysis, PermVerifyAnalysis,
		PermAddTag, PermUpdateStatus, PermSubmitReview, PermRecordDecision,
		PermVerifyIntegrity, PermGenerateReport, PermExportReport,
	}
}

// Tables maps roles and organizations to the permissions they carry.
type Tables struct {
	Roles         map[auth.Role][]Permission
	Organizations map[auth.Organization][]Permission
	// AnalysisOrganization is the organization whose inbound transfers
	// advance in-custody evidence to IN_ANALYSIS.
	AnalysisOrganization auth.Organization
}

// AuthorizationError is returned when a caller lacks a permission.
type AuthorizationError struct {
	SubjectID    string
	Role         auth.Role
	Organization auth.Organization
	Permission   Permission
	Reason       string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization denied: %s (%s/%s) lacks %s: %s",
		e.SubjectID, e.Organization, e.Role, e.Permission, e.Reason)
}

type permSet map[Permission]struct{}

// Engine evaluates permissions against immutable role and organization tables.
// A permission is granted only when both the role and the organization carry it.
type Engine struct {
	roles       map[auth.Role]permSet
	orgs        map[auth.Organization]permSet
	analysisOrg auth.Organization
}

// NewEngine builds an engine from a private copy of the tables.
func NewEngine(t Tables) *Engine {
	e := &Engine{
		roles:       make(map[auth.Role]permSet, len(t.Roles)),
		orgs:        make(map[auth.Organization]permSet, len(t.Organizations)),
		analysisOrg: t.AnalysisOrganization,
	}
	for role, perms := range t.Roles {
		e.roles[role] = toSet(perms)
	}
	for org, perms := range t.Organizations {
		e.orgs[org] = toSet(perms)
	}
	return e
}

func toSet(perms []Permission) permSet {
	s := make(permSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Authorize returns the identity unchanged if it holds perm, or an
// *AuthorizationError. Missing mappings deny.
func (e *Engine) Authorize(id auth.Identity, perm Permission) (auth.Identity, error) {
	deny := func(reason string) (auth.Identity, error) {
		return auth.Identity{}, &AuthorizationError{
			SubjectID:    id.SubjectID,
			Role:         id.Role,
			Organization: id.OrganizationID,
			Permission:   perm,
			Reason:       reason,
		}
	}
	if !id.Valid() {
		return deny("incomplete identity")
	}
	if _, ok := e.roles[id.Role][perm]; !ok {
		return deny("role not permitted")
	}
	if _, ok := e.orgs[id.OrganizationID][perm]; !ok {
		return deny("organization not permitted")
	}
	return id, nil
}

// AuthorizeContext authorizes the identity carried by ctx. A missing or
// incomplete identity is denied.
func (e *Engine) AuthorizeContext(ctx context.Context, perm Permission) (auth.Identity, error) {
	id, err := auth.IdentityFrom(ctx)
	if err != nil {
		return auth.Identity{}, &AuthorizationError{Permission: perm, Reason: err.Error()}
	}
	return e.Authorize(id, perm)
}

// Allows reports whether role and org jointly carry perm.
func (e *Engine) Allows(role auth.Role, org auth.Organization, perm Permission) bool {
	_, roleOK := e.roles[role][perm]
	_, orgOK := e.orgs[org][perm]
	return roleOK && orgOK
}

// OrganizationAllows reports whether org alone carries perm.
func (e *Engine) OrganizationAllows(org auth.Organization, perm Permission) bool {
	_, ok := e.orgs[org][perm]
	return ok
}

// CanReceiveCustody reports whether org may be the target of a transfer.
func (e *Engine) CanReceiveCustody(org auth.Organization) bool {
	return e.OrganizationAllows(org, PermReceiveCustody)
}

// AnalysisOrganization returns the configured analysis organization.
func (e *Engine) AnalysisOrganization() auth.Organization {
	return e.analysisOrg
}

// Tables returns a copy of the tables the engine was built from, with
// permissions sorted.
func (e *Engine) Tables() Tables {
	t := Tables{
		Roles:                make(map[auth.Role][]Permission, len(e.roles)),
		Organizations:        make(map[auth.Organization][]Permission, len(e.orgs)),
		AnalysisOrganization: e.analysisOrg,
	}
	for role, set := range e.roles {
		t.Roles[role] = sortedPerms(set)
	}
	for org, set := range e.orgs {
		t.Organizations[org] = sortedPerms(set)
	}
	return t
}

func sortedPerms(s permSet) []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
