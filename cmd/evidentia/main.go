package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/config"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0-dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split from main for tests.
//
// Exit codes:
//
//	0 = success
//	1 = verification failed
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "evidentia %s\n", Version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	case "policy":
		return runPolicyCmd(args[2:], stdout, stderr)
	case "verify-pack":
		return runVerifyPackCmd(args[2:], stdout, stderr)
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	switch args[1] {
	case "migrate":
		return runMigrateCmd(cfg, stdout, stderr)
	case "demo":
		return runDemoCmd(cfg, args[2:], stdout, stderr)
	case "history":
		return runHistoryCmd(cfg, args[2:], stdout, stderr)
	case "report":
		return runReportCmd(cfg, args[2:], stdout, stderr)
	case "verify-chain":
		return runVerifyChainCmd(cfg, args[2:], stdout, stderr)
	case "export":
		return runExportCmd(cfg, args[2:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
	colorGreen = "\033[32m"
	colorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sEvidentia %s%s\n", colorBold+colorBlue, Version, colorReset)
	_, _ = fmt.Fprintf(w, "%sChain of custody for digital evidence.%s\n", colorGray, colorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	_, _ = fmt.Fprintln(w, "  evidentia <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "LEDGER")
	printCommand(w, "migrate", "Create or upgrade the ledger schema")
	printCommand(w, "demo", "Run a scripted custody lifecycle (--json)")
	printCommand(w, "history", "Print an item's custody events (--id)")

	printSection(w, "AUDIT")
	printCommand(w, "report", "Generate a sealed audit report (--id, --out)")
	printCommand(w, "verify-chain", "Recompute an item's hash chain (--id)")
	printCommand(w, "export", "Write a report pack to the artifact store (--id)")
	printCommand(w, "verify-pack", "Verify a report pack (--file | --hash)")

	printSection(w, "POLICY")
	printCommand(w, "policy", "Validate or print permission tables (validate|print)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Ledger commands act as the identity given by --subject, --org and --role")
	_, _ = fmt.Fprintln(w, "(default: an Auditor in Judiciary). DATABASE_URL selects Postgres;")
	_, _ = fmt.Fprintln(w, "without it the ledger lives in SQLite under DATA_DIR.")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", colorBold+colorCyan, title, colorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-13s%s %s\n", colorGreen, name, colorReset, desc)
}
