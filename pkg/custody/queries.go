package custody

import (
	"context"
	"fmt"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
)

// Get returns the current snapshot of an evidence item.
func (e *Engine) Get(ctx context.Context, evidenceID string) (ev *contracts.Evidence, err error) {
	ctx, done, err := e.view(ctx, "get", evidenceID)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	ev, err = e.store.GetEvidence(ctx, evidenceID)
	return ev, storeError(evidenceID, err)
}

// GetByCase lists the items registered under caseID.
func (e *Engine) GetByCase(ctx context.Context, caseID string) ([]*contracts.Evidence, error) {
	return e.list(ctx, "get_by_case", ledger.Filter{CaseID: caseID})
}

// GetByStatus lists the items currently in status.
func (e *Engine) GetByStatus(ctx context.Context, status contracts.Status) ([]*contracts.Evidence, error) {
	return e.list(ctx, "get_by_status", ledger.Filter{Status: status})
}

func (e *Engine) list(ctx context.Context, name string, f ledger.Filter) (out []*contracts.Evidence, err error) {
	ctx, done, err := e.view(ctx, name, "")
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()
	return e.store.ListEvidence(ctx, f)
}

// GetHistory returns an item's custody events in ledger order.
func (e *Engine) GetHistory(ctx context.Context, evidenceID string) (events []*contracts.CustodyEvent, err error) {
	ctx, done, err := e.view(ctx, "get_history", evidenceID)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()
	if err := e.exists(ctx, evidenceID); err != nil {
		return nil, err
	}
	return e.store.History(ctx, evidenceID)
}

// GetAnalysisRecords returns an item's analysis records.
func (e *Engine) GetAnalysisRecords(ctx context.Context, evidenceID string) (recs []*contracts.AnalysisRecord, err error) {
	ctx, done, err := e.view(ctx, "get_analysis_records", evidenceID)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()
	if err := e.exists(ctx, evidenceID); err != nil {
		return nil, err
	}
	return e.store.AnalysisRecords(ctx, evidenceID)
}

// GetJudicialReviews returns an item's judicial reviews.
func (e *Engine) GetJudicialReviews(ctx context.Context, evidenceID string) (revs []*contracts.JudicialReview, err error) {
	ctx, done, err := e.view(ctx, "get_judicial_reviews", evidenceID)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()
	if err := e.exists(ctx, evidenceID); err != nil {
		return nil, err
	}
	return e.store.JudicialReviews(ctx, evidenceID)
}

// GetAccessRequests returns an item's access requests.
func (e *Engine) GetAccessRequests(ctx context.Context, evidenceID string) (reqs []*contracts.AccessRequest, err error) {
	ctx, done, err := e.view(ctx, "get_access_requests", evidenceID)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()
	if err := e.exists(ctx, evidenceID); err != nil {
		return nil, err
	}
	return e.store.AccessRequests(ctx, evidenceID)
}

// Search returns the items matching a CEL boolean expression over the
// `evidence` snapshot map.
func (e *Engine) Search(ctx context.Context, expr string) (out []*contracts.Evidence, err error) {
	ctx, done, err := e.view(ctx, "search", "")
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	prg, err := e.search.program(expr)
	if err != nil {
		return nil, err
	}
	all, err := e.store.ListEvidence(ctx, ledger.Filter{})
	if err != nil {
		return nil, err
	}
	out = []*contracts.Evidence{}
	for _, ev := range all {
		ok, err := match(prg, ev)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", ev.ID, err)
		}
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// VerifyHistory recomputes an item's event hash chain and checks it ends
// at the snapshot's head.
func (e *Engine) VerifyHistory(ctx context.Context, evidenceID string) (err error) {
	ctx, done, err := e.view(ctx, "verify_history", evidenceID)
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	ev, err := e.store.GetEvidence(ctx, evidenceID)
	if err != nil {
		return storeError(evidenceID, err)
	}
	events, err := e.store.History(ctx, evidenceID)
	if err != nil {
		return err
	}
	return ledger.VerifyChain(events, ev.HeadHash)
}

// GenerateAuditReport assembles and seals an item's audit report. It is
// read-only.
func (e *Engine) GenerateAuditReport(ctx context.Context, evidenceID string) (report *contracts.AuditReport, err error) {
	ctx, done := e.track(ctx, "generate_report", evidenceID)
	defer func() { done(err) }()

	report, err = e.reports.GenerateAuditReport(ctx, evidenceID)
	if err != nil {
		err = storeError(evidenceID, err)
		e.reject(ctx, op{"generate_report", authz.PermGenerateReport, evidenceID}, err)
		return nil, err
	}
	return report, nil
}

func (e *Engine) exists(ctx context.Context, evidenceID string) error {
	_, err := e.store.GetEvidence(ctx, evidenceID)
	return storeError(evidenceID, err)
}
