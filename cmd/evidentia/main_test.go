package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liteEnv points the CLI at a fresh SQLite ledger and file artifact store.
func liteEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, k := range []string{
		"DATABASE_URL", "REDIS_ADDR", "EVIDENTIA_POLICY", "EVIDENTIA_DIGEST",
		"EVIDENTIA_ACCESS_WINDOW", "EVIDENTIA_PENDING_TTL", "OTEL_ENABLED", "ARTIFACT_STORAGE_TYPE",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("DATA_DIR", dir)
	t.Setenv("LOG_LEVEL", "ERROR")
	return dir
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"evidentia"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_UsageAndVersion(t *testing.T) {
	code, _, stderr := run()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "USAGE")

	code, stdout, _ := run("version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "evidentia "+Version+"\n", stdout)

	code, _, stderr = run("bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command: bogus")
}

func TestRun_DemoThenAudit(t *testing.T) {
	liteEnv(t)

	code, stdout, stderr := run("demo", "--json")
	require.Equal(t, 0, code, stderr)
	var summary demoSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, "ADMITTED", summary.FinalStatus)
	assert.True(t, summary.ChainValid)
	assert.NotEmpty(t, summary.Artifact)

	code, stdout, stderr = run("verify-chain", "--id", summary.EvidenceID)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "verified")

	code, stdout, stderr = run("history", "--id", summary.EvidenceID)
	require.Equal(t, 0, code, stderr)
	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &events))
	assert.Len(t, events, summary.Events)
	assert.Equal(t, "REGISTRATION", events[0]["type"])

	code, stdout, stderr = run("verify-pack", "--hash", summary.Artifact)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "PASSED")

	pack := filepath.Join(t.TempDir(), "report.zip")
	code, stdout, stderr = run("report", "--id", summary.EvidenceID, "--out", pack)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "written to")

	code, stdout, _ = run("verify-pack", "--file", pack, "--json")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, summary.EvidenceID)

	// Auditors may read but not export.
	code, _, stderr = run("export", "--id", summary.EvidenceID)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "authorization denied")

	code, stdout, stderr = run("export", "--id", summary.EvidenceID,
		"--subject", "sgt-1", "--org", "LawEnforcement", "--role", "Supervisor")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "stored as sha256:")
}

func TestRun_VerifyPackDetectsTampering(t *testing.T) {
	liteEnv(t)
	code, stdout, stderr := run("demo", "--json")
	require.Equal(t, 0, code, stderr)
	var summary demoSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))

	pack := filepath.Join(t.TempDir(), "report.zip")
	code, _, stderr = run("report", "--id", summary.EvidenceID, "--out", pack)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(pack)
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(pack, data, 0600))

	code, stdout, _ = run("verify-pack", "--file", pack)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "FAILED")

	code, _, _ = run("verify-pack")
	assert.Equal(t, 2, code)
}

func TestRun_LedgerCommandsRequireID(t *testing.T) {
	liteEnv(t)
	for _, c := range []string{"history", "report", "verify-chain", "export"} {
		code, _, stderr := run(c)
		assert.Equal(t, 2, code, c)
		assert.Contains(t, stderr, "--id is required", c)
	}

	code, _, stderr := run("history", "--id", "missing")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "not found")
}

func TestRun_Migrate(t *testing.T) {
	dir := liteEnv(t)
	code, stdout, stderr := run("migrate")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "ledger schema ready\n", stdout)
	assert.FileExists(t, filepath.Join(dir, "evidentia.db"))

	// Idempotent.
	code, _, _ = run("migrate")
	assert.Equal(t, 0, code)
}

func TestRun_Policy(t *testing.T) {
	code, stdout, stderr := run("policy", "print")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "analysis_organization: ForensicLab")

	file := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(file, []byte(stdout), 0600))
	code, stdout, _ = run("policy", "validate", "--file", file)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "analysis organization ForensicLab")

	require.NoError(t, os.WriteFile(file, []byte("version: 9.0.0\nroles: {}\norganizations: {}\n"), 0600))
	code, _, _ = run("policy", "validate", "--file", file)
	assert.Equal(t, 1, code)

	code, _, _ = run("policy")
	assert.Equal(t, 2, code)
}
