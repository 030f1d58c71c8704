package custody_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/artifacts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/audit"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/custody"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportAuditReport(t *testing.T) {
	f := newFixture(t)
	sink, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)
	var logBuf bytes.Buffer
	f.engine.WithArtifactStore(sink).WithAuditLog(audit.NewJSONLogger(&logBuf))
	f.register(t, "E1")

	out, err := f.engine.ExportAuditReport(as(supervisorLE), "E1")
	require.NoError(t, err)
	require.NotNil(t, out.Event)
	assert.Equal(t, contracts.EventExport, out.Event.Type)
	assert.Equal(t, out.Artifact, out.Event.Details["artifact"])
	assert.Equal(t, out.Report.ID, out.Event.Details["report_id"])

	report, manifest, err := artifacts.NewRegistry(sink).GetPack(context.Background(), out.Artifact)
	require.NoError(t, err)
	assert.Equal(t, out.Report.ID, report.ID)
	assert.Equal(t, out.Report.Digest, manifest.Digest)
	assert.Len(t, report.Events, 1, "the pack predates its own EXPORT event")

	history := f.history(t, "E1")
	require.Len(t, history, 2)
	assert.Equal(t, contracts.EventExport, history[1].Type)
	require.NoError(t, f.engine.VerifyHistory(as(auditor), "E1"))
	assert.Contains(t, logBuf.String(), `"type":"EXPORT"`)

	replayed, err := custody.Replay(history)
	require.NoError(t, err)
	ev, err := f.engine.Get(as(auditor), "E1")
	require.NoError(t, err)
	assert.Equal(t, ev, replayed)
}

func TestExportAuditReport_Rejects(t *testing.T) {
	f := newFixture(t)
	f.register(t, "E1")

	_, err := f.engine.ExportAuditReport(as(supervisorLE), "E1")
	require.ErrorIs(t, err, custody.ErrNoArtifactStore)

	sink, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)
	f.engine.WithArtifactStore(sink)

	_, err = f.engine.ExportAuditReport(as(auditor), "E1")
	var denied *custody.AuthorizationError
	require.ErrorAs(t, err, &denied)

	_, err = f.engine.ExportAuditReport(as(supervisorLE), "missing")
	var nf *custody.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Len(t, f.history(t, "E1"), 1)
}
