package authz

import "github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"

// DefaultTables returns the built-in separation-of-duties tables.
//
// Collection happens in LawEnforcement, analysis in ForensicLab and
// admissibility decisions in Judiciary; only Judiciary carries
// record_decision and only ForensicLab carries record_analysis.
func DefaultTables() Tables {
	return Tables{
		Roles: map[auth.Role][]Permission{
			auth.RoleCollector: {
				PermRegisterEvidence, PermViewEvidence, PermTransferCustody, PermReceiveCustody,
				PermRequestAccess, PermAddTag, PermUpdateStatus, PermVerifyIntegrity,
			},
			auth.RoleAnalyst: {
				PermViewEvidence, PermTransferCustody, PermReceiveCustody, PermRequestAccess,
				PermRecordAnalysis, PermAddTag, PermUpdateStatus, PermVerifyIntegrity,
			},
			auth.RoleSupervisor: {
				PermRegisterEvidence, PermViewEvidence, PermTransferCustody, PermReceiveCustody,
				PermApproveAccess, PermVerifyAnalysis, PermAddTag, PermUpdateStatus,
				PermVerifyIntegrity, PermGenerateReport, PermExportReport,
			},
			auth.RoleLegalCounsel: {
				PermViewEvidence, PermReceiveCustody, PermRequestAccess, PermSubmitReview,
				PermGenerateReport, PermExportReport,
			},
			auth.RoleJudge: {
				PermViewEvidence, PermReceiveCustody, PermApproveAccess, PermRecordDecision,
				PermUpdateStatus, PermGenerateReport,
			},
			auth.RoleAuditor: {
				PermViewEvidence, PermGenerateReport,
			},
			auth.RoleAdmin: AllPermissions(),
		},
		Organizations: map[auth.Organization][]Permission{
			auth.OrgLawEnforcement: {
				PermRegisterEvidence, PermViewEvidence, PermTransferCustody, PermReceiveCustody,
				PermRequestAccess, PermApproveAccess, PermAddTag, PermUpdateStatus,
				PermSubmitReview, PermVerifyIntegrity, PermGenerateReport, PermExportReport,
			},
			auth.OrgForensicLab: {
				PermViewEvidence, PermTransferCustody, PermReceiveCustody, PermRequestAccess,
				PermApproveAccess, PermRecordAnalysis, PermVerifyAnalysis, PermAddTag,
				PermUpdateStatus, PermVerifyIntegrity, PermGenerateReport, PermExportReport,
			},
			auth.OrgJudiciary: {
				PermViewEvidence, PermTransferCustody, PermReceiveCustody, PermRequestAccess,
				PermApproveAccess, PermSubmitReview, PermRecordDecision, PermUpdateStatus,
				PermVerifyIntegrity, PermGenerateReport, PermExportReport,
			},
		},
		AnalysisOrganization: auth.OrgForensicLab,
	}
}
