package authz_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePolicy = `
version: 1.2.0
analysis_organization: ForensicLab
roles:
  Analyst: [view_evidence, record_analysis]
  Auditor: [view_evidence]
organizations:
  ForensicLab: [view_evidence, record_analysis]
  Judiciary: [view_evidence]
`

func TestParsePolicy(t *testing.T) {
	tables, err := authz.ParsePolicy([]byte(samplePolicy))
	require.NoError(t, err)
	assert.Equal(t, auth.OrgForensicLab, tables.AnalysisOrganization)

	engine := authz.NewEngine(tables)
	assert.True(t, engine.Allows(auth.RoleAnalyst, auth.OrgForensicLab, authz.PermRecordAnalysis))
	assert.False(t, engine.Allows(auth.RoleAnalyst, auth.OrgJudiciary, authz.PermRecordAnalysis))
	assert.False(t, engine.Allows(auth.RoleCollector, auth.OrgForensicLab, authz.PermViewEvidence))
}

func TestParsePolicy_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown permission": `
version: 1.0.0
analysis_organization: ForensicLab
roles: {Analyst: [fly_drone]}
organizations: {ForensicLab: [view_evidence]}
`,
		"unsupported version": `
version: 2.0.0
analysis_organization: ForensicLab
roles: {Analyst: [view_evidence]}
organizations: {ForensicLab: [view_evidence]}
`,
		"missing organizations": `
version: 1.0.0
analysis_organization: ForensicLab
roles: {Analyst: [view_evidence]}
`,
		"unknown analysis organization": `
version: 1.0.0
analysis_organization: Press
roles: {Analyst: [view_evidence]}
organizations: {ForensicLab: [view_evidence]}
`,
		"extra field": `
version: 1.0.0
analysis_organization: ForensicLab
roles: {Analyst: [view_evidence]}
organizations: {ForensicLab: [view_evidence]}
superusers: [root]
`,
		"not yaml": "version: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := authz.ParsePolicy([]byte(doc))
			var pe *authz.PolicyError
			require.ErrorAs(t, err, &pe)
		})
	}
}

func TestLoadPolicy_RoundTripsDefaults(t *testing.T) {
	data, err := authz.MarshalPolicy(authz.DefaultTables())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := authz.LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, authz.NewEngine(authz.DefaultTables()).Tables(), authz.NewEngine(loaded).Tables())
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := authz.LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	var pe *authz.PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Source, "absent.yaml")
}
