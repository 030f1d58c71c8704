package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/artifacts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/audit"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/config"
)

// identityFlags registers --subject, --org and --role and returns a
// function producing a context that carries the parsed identity.
func identityFlags(fs *flag.FlagSet) func(context.Context) context.Context {
	var subject, org, role string
	fs.StringVar(&subject, "subject", "cli-auditor", "Acting subject id")
	fs.StringVar(&org, "org", string(auth.OrgJudiciary), "Acting organization")
	fs.StringVar(&role, "role", string(auth.RoleAuditor), "Acting role")
	return func(ctx context.Context) context.Context {
		return auth.WithIdentity(ctx, auth.Identity{
			SubjectID:      subject,
			OrganizationID: auth.Organization(org),
			Role:           auth.Role(role),
		})
	}
}

// ledgerCmd parses an --id ledger command and runs fn against an opened runtime.
func ledgerCmd(cfg *config.Config, name string, args []string, stdout, stderr io.Writer,
	extra func(*flag.FlagSet), fn func(ctx context.Context, rt *runtime, id string) int) int {
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var id string
	cmd.StringVar(&id, "id", "", "Evidence id (REQUIRED)")
	as := identityFlags(cmd)
	if extra != nil {
		extra(cmd)
	}
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if id == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --id is required")
		return 2
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cfg, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer rt.Close(ctx)
	return fn(as(ctx), rt, id)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runMigrateCmd(cfg *config.Config, stdout, stderr io.Writer) int {
	ctx := context.Background()
	s, err := openStore(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = s.Close() }()
	_, _ = fmt.Fprintln(stdout, "ledger schema ready")
	return 0
}

func runHistoryCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	return ledgerCmd(cfg, "history", args, stdout, stderr, nil, func(ctx context.Context, rt *runtime, id string) int {
		events, err := rt.engine.GetHistory(ctx, id)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if err := writeJSON(stdout, events); err != nil {
			return 2
		}
		return 0
	})
}

func runReportCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	var out string
	return ledgerCmd(cfg, "report", args, stdout, stderr, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "out", "", "Write the report pack (zip) to this path")
	}, func(ctx context.Context, rt *runtime, id string) int {
		report, err := rt.engine.GenerateAuditReport(ctx, id)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if out != "" {
			pack, err := audit.BuildPack(report)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
				return 2
			}
			//nolint:gosec // G306: report packs are meant to be shared
			if err := os.WriteFile(out, pack, 0644); err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: cannot write pack: %v\n", err)
				return 2
			}
			_, _ = fmt.Fprintf(stdout, "Report %s written to %s (%s)\n", report.ID, out, report.Digest)
			return 0
		}
		if err := writeJSON(stdout, report); err != nil {
			return 2
		}
		return 0
	})
}

func runVerifyChainCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	return ledgerCmd(cfg, "verify-chain", args, stdout, stderr, nil, func(ctx context.Context, rt *runtime, id string) int {
		if err := rt.engine.VerifyHistory(ctx, id); err != nil {
			_, _ = fmt.Fprintf(stdout, "❌ chain of %s FAILED: %v\n", id, err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "✅ chain of %s verified\n", id)
		return 0
	})
}

func runExportCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	return ledgerCmd(cfg, "export", args, stdout, stderr, nil, func(ctx context.Context, rt *runtime, id string) int {
		exp, err := rt.engine.ExportAuditReport(ctx, id)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "Report %s stored as %s\n", exp.Report.ID, exp.Artifact)
		return 0
	})
}

// runVerifyPackCmd checks a pack from a file or from the artifact store.
// It needs no ledger.
func runVerifyPackCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify-pack", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		file, hash string
		jsonOutput bool
	)
	cmd.StringVar(&file, "file", "", "Path to a report pack")
	cmd.StringVar(&hash, "hash", "", "Content hash of a pack in the artifact store")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the manifest as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if (file == "") == (hash == "") {
		_, _ = fmt.Fprintln(stderr, "Error: exactly one of --file or --hash is required")
		return 2
	}

	var (
		manifest *audit.Manifest
		err      error
	)
	if file != "" {
		data, readErr := os.ReadFile(file) //nolint:gosec // operator-supplied path
		if readErr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", readErr)
			return 2
		}
		_, manifest, err = audit.ReadPack(data)
	} else {
		ctx := context.Background()
		store, openErr := artifacts.NewStoreFromEnv(ctx)
		if openErr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", openErr)
			return 2
		}
		_, manifest, err = artifacts.NewRegistry(store).GetPack(ctx, hash)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stdout, "❌ report pack verification FAILED: %v\n", err)
		return 1
	}

	if jsonOutput {
		if err := writeJSON(stdout, manifest); err != nil {
			return 2
		}
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "✅ report pack verification PASSED\n")
	_, _ = fmt.Fprintf(stdout, "Report:   %s\n", manifest.ReportID)
	_, _ = fmt.Fprintf(stdout, "Evidence: %s (%d events, chain valid: %t)\n", manifest.EvidenceID, manifest.EventCount, manifest.ChainValid)
	_, _ = fmt.Fprintf(stdout, "Digest:   %s\n", manifest.Digest)
	return 0
}

func runPolicyCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: evidentia policy <validate|print> [--file policy.yaml]")
		return 2
	}
	cmd := flag.NewFlagSet("policy "+args[0], flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var file string
	cmd.StringVar(&file, "file", "", "Policy file (print defaults to the built-in tables)")
	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}

	switch args[0] {
	case "validate":
		if file == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --file is required")
			return 2
		}
		t, err := authz.LoadPolicy(file)
		if err != nil {
			_, _ = fmt.Fprintf(stdout, "❌ %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "✅ %s: %d roles, %d organizations, analysis organization %s\n",
			file, len(t.Roles), len(t.Organizations), t.AnalysisOrganization)
		return 0
	case "print":
		t, err := loadTables(file)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		out, err := authz.MarshalPolicy(t)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		_, _ = stdout.Write(out)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown policy subcommand: %s\n", args[0])
		return 2
	}
}
