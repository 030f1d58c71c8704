package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/artifacts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/audit"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
)

// ErrNoArtifactStore is returned by ExportAuditReport when no artifact
// store is configured.
var ErrNoArtifactStore = errors.New("custody: artifact store not configured (fail-closed)")

// Export is the result of writing a report pack.
type Export struct {
	Report *contracts.AuditReport
	// Artifact is the content hash of the stored pack.
	Artifact string
	Event    *contracts.CustodyEvent
}

// ExportAuditReport generates an item's audit report, writes it as a pack
// to the artifact store and appends an EXPORT event naming the stored pack.
// The caller needs export_report as well as generate_report.
func (e *Engine) ExportAuditReport(ctx context.Context, evidenceID string) (*Export, error) {
	if e.sink == nil {
		return nil, ErrNoArtifactStore
	}
	o := op{"export_report", authz.PermExportReport, evidenceID}
	if _, err := e.authz.AuthorizeContext(ctx, o.perm); err != nil {
		e.reject(ctx, o, err)
		return nil, err
	}

	report, err := e.GenerateAuditReport(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	pack, err := audit.BuildPack(report)
	if err != nil {
		return nil, err
	}
	hash, _, err := artifacts.NewRegistry(e.sink).PutPack(ctx, pack)
	if err != nil {
		return nil, fmt.Errorf("store report pack: %w", err)
	}

	out := &Export{Report: report, Artifact: hash}
	err = e.mutate(ctx, o, func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error {
		if _, err := loadEvidence(tx, evidenceID); err != nil {
			return err
		}
		sealed, err := tx.AppendEvent(newEvent(caller, contracts.EventExport, map[string]any{
			detailReportID: report.ID,
			detailArtifact: hash,
			detailDigest:   report.Digest,
		}, nil))
		if err != nil {
			return err
		}
		out.Event = sealed
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := e.auditLog.Record(ctx, audit.EventExport, o.name, evidenceID, map[string]any{
		"report_id": report.ID,
		"artifact":  hash,
	}); err != nil {
		e.logger.ErrorContext(ctx, "audit log write failed", "error", err)
	}
	return out, nil
}
