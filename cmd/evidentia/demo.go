package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/config"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/custody"
	"github.com/google/uuid"
)

var (
	demoCollector  = auth.Identity{SubjectID: "officer-reyes", OrganizationID: auth.OrgLawEnforcement, Role: auth.RoleCollector, DisplayName: "Officer Reyes"}
	demoSupervisor = auth.Identity{SubjectID: "sgt-okafor", OrganizationID: auth.OrgLawEnforcement, Role: auth.RoleSupervisor}
	demoAnalyst    = auth.Identity{SubjectID: "analyst-lin", OrganizationID: auth.OrgForensicLab, Role: auth.RoleAnalyst}
	demoLabLead    = auth.Identity{SubjectID: "lab-lead-ortiz", OrganizationID: auth.OrgForensicLab, Role: auth.RoleSupervisor}
	demoCounsel    = auth.Identity{SubjectID: "counsel-park", OrganizationID: auth.OrgLawEnforcement, Role: auth.RoleLegalCounsel}
	demoJudge      = auth.Identity{SubjectID: "judge-adeyemi", OrganizationID: auth.OrgJudiciary, Role: auth.RoleJudge}
	demoAuditor    = auth.Identity{SubjectID: "auditor-kim", OrganizationID: auth.OrgJudiciary, Role: auth.RoleAuditor}
)

// demoSummary is printed with --json.
type demoSummary struct {
	EvidenceID   string `json:"evidence_id"`
	FinalStatus  string `json:"final_status"`
	Events       int    `json:"events"`
	ChainValid   bool   `json:"chain_valid"`
	ReportID     string `json:"report_id"`
	ReportDigest string `json:"report_digest"`
	Artifact     string `json:"artifact,omitempty"`
}

// runDemoCmd drives one item from seizure to admission against the
// configured ledger.
func runDemoCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("demo", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Print a JSON summary instead of the step log")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cfg, io.Discard)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer rt.Close(ctx)

	log := stdout
	if jsonOutput {
		log = io.Discard
	}
	summary, err := runDemo(ctx, rt.engine, log)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: demo failed: %v\n", err)
		return 2
	}
	if jsonOutput {
		if err := writeJSON(stdout, summary); err != nil {
			return 2
		}
	}
	return 0
}

func runDemo(ctx context.Context, e *custody.Engine, w io.Writer) (*demoSummary, error) {
	as := func(id auth.Identity) context.Context { return auth.WithIdentity(ctx, id) }
	step := func(who auth.Identity, format string, a ...any) {
		_, _ = fmt.Fprintf(w, "%s%-16s%s %s\n", colorCyan, who.Role, colorReset, fmt.Sprintf(format, a...))
	}

	id := "EVD-" + strings.ToUpper(uuid.NewString()[:8])
	hash := "sha256:" + strings.Repeat("ab", 32)

	ev, err := e.Register(as(demoCollector), custody.RegisterInput{
		ID:           id,
		CaseID:       "CASE-2026-0142",
		ContentID:    "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		OriginalHash: hash,
		Metadata:     contracts.EvidenceMetadata{Name: "laptop.E01", Type: "disk-image", Size: 256 << 30},
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	step(demoCollector, "registered %s in case %s", ev.ID, ev.CaseID)

	if ok, err := e.VerifyIntegrity(as(demoCollector), id, hash); err != nil || !ok {
		return nil, fmt.Errorf("verify integrity: ok=%t err=%v", ok, err)
	}
	step(demoCollector, "verified the acquisition hash")
	if _, err := e.AddTag(as(demoCollector), id, "seized"); err != nil {
		return nil, fmt.Errorf("tag: %w", err)
	}

	if ev, err = e.Transfer(as(demoCollector), custody.TransferInput{
		EvidenceID: id, ToEntity: demoAnalyst.SubjectID, ToOrg: demoAnalyst.OrganizationID, Reason: "lab intake",
	}); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	step(demoCollector, "handed over to %s (%s), now %s", ev.CustodianID, ev.CustodianOrg, ev.Status)

	_, err = e.Transfer(as(demoAuditor), custody.TransferInput{EvidenceID: id, ToEntity: demoAuditor.SubjectID, ToOrg: demoAuditor.OrganizationID})
	var denied *custody.AuthorizationError
	if !errors.As(err, &denied) {
		return nil, fmt.Errorf("auditor transfer should be denied, got %v", err)
	}
	step(demoAuditor, "tried to take custody: denied (%s)", denied.Reason)

	if _, err := e.StartAnalysis(as(demoAnalyst), id, "autopsy"); err != nil {
		return nil, fmt.Errorf("start analysis: %w", err)
	}
	rec, err := e.RecordAnalysis(as(demoAnalyst), custody.AnalysisInput{
		EvidenceID: id, ToolName: "autopsy", ToolVersion: "4.21", Findings: "ledger spreadsheets recovered from unallocated space",
	})
	if err != nil {
		return nil, fmt.Errorf("record analysis: %w", err)
	}
	step(demoAnalyst, "recorded analysis %s", rec.ID)
	if _, err := e.VerifyAnalysis(as(demoLabLead), id, rec.ID); err != nil {
		return nil, fmt.Errorf("verify analysis: %w", err)
	}
	step(demoLabLead, "peer-verified analysis %s", rec.ID)

	req, err := e.RequestAccess(as(demoCounsel), id, "prepare exhibit list")
	if err != nil {
		return nil, fmt.Errorf("request access: %w", err)
	}
	if _, err := e.GrantAccess(as(demoSupervisor), id, req.ID); err != nil {
		return nil, fmt.Errorf("grant access: %w", err)
	}
	step(demoSupervisor, "granted %s access (%s)", demoCounsel.SubjectID, req.ID)

	rev, err := e.SubmitForReview(as(demoCounsel), id, "motion to admit exhibit 4", "DOCKET-88")
	if err != nil {
		return nil, fmt.Errorf("submit review: %w", err)
	}
	step(demoCounsel, "submitted for judicial review %s", rev.ID)
	if _, err := e.RecordDecision(as(demoJudge), id, rev.ID, contracts.DecisionAdmitted, "custody unbroken"); err != nil {
		return nil, fmt.Errorf("decision: %w", err)
	}
	step(demoJudge, "admitted the evidence")

	if err := e.VerifyHistory(as(demoAuditor), id); err != nil {
		return nil, fmt.Errorf("verify history: %w", err)
	}
	report, err := e.GenerateAuditReport(as(demoAuditor), id)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	step(demoAuditor, "sealed report %s over %d events (%s)", report.ID, len(report.Events), report.Digest)

	summary := &demoSummary{
		EvidenceID:   id,
		FinalStatus:  string(report.Evidence.Status),
		Events:       len(report.Events),
		ChainValid:   report.ChainValid,
		ReportID:     report.ID,
		ReportDigest: report.Digest,
	}
	exp, err := e.ExportAuditReport(as(demoSupervisor), id)
	switch {
	case errors.Is(err, custody.ErrNoArtifactStore):
		step(demoSupervisor, "no artifact store configured, skipped export")
	case err != nil:
		return nil, fmt.Errorf("export: %w", err)
	default:
		summary.Artifact = exp.Artifact
		summary.Events++
		step(demoSupervisor, "exported report pack %s", exp.Artifact)
	}
	return summary, nil
}
