// Package custody is the evidence registry: every operation that changes an
// evidence item's custody, status or side records.
//
// Each mutating operation authorizes the caller from the identity in its
// context, validates the change against the lifecycle state machine and
// custody rules, then updates the snapshot and appends its custody event
// in one ledger commit.
package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/artifacts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/audit"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/observability"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/sequencer"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
	"github.com/google/uuid"
)

const (
	// DefaultAccessWindow is how long an approved access request stays valid.
	DefaultAccessWindow = 24 * time.Hour
	// DefaultPendingTTL is how long an access request may wait for a decision.
	DefaultPendingTTL = 72 * time.Hour
)

// Engine is the evidence registry.
type Engine struct {
	store ledger.Store
	authz *authz.Engine
	seq   sequencer.Sequencer

	accessWindow time.Duration
	pendingTTL   time.Duration
	clock        func() time.Time

	logger   *slog.Logger
	obs      *observability.Provider
	auditLog audit.Logger

	reports *audit.Generator
	sink    artifacts.Store
	search  searcher
}

// NewEngine creates a registry over store, authorizing with az and taking
// commit positions from seq.
func NewEngine(store ledger.Store, az *authz.Engine, seq sequencer.Sequencer) *Engine {
	return &Engine{
		store:        store,
		authz:        az,
		seq:          seq,
		accessWindow: DefaultAccessWindow,
		pendingTTL:   DefaultPendingTTL,
		clock:        time.Now,
		logger:       slog.Default().With("component", "custody"),
		auditLog:     audit.Discard,
		reports:      audit.NewGenerator(store, az),
	}
}

// WithAccessWindow sets how long granted access lasts.
func (e *Engine) WithAccessWindow(d time.Duration) *Engine {
	e.accessWindow = d
	return e
}

// WithPendingTTL sets how long a request may stay pending. Zero disables expiry.
func (e *Engine) WithPendingTTL(d time.Duration) *Engine {
	e.pendingTTL = d
	return e
}

// WithClock overrides the time source used to evaluate access expiry on reads.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	e.reports.WithClock(clock)
	return e
}

// WithLogger sets the structured logger.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.logger = l.With("component", "custody")
	return e
}

// WithObservability attaches an OpenTelemetry provider. Nil disables tracing.
func (e *Engine) WithObservability(p *observability.Provider) *Engine {
	e.obs = p
	return e
}

// WithAuditLog records rejected operations, which leave no ledger entry.
func (e *Engine) WithAuditLog(l audit.Logger) *Engine {
	e.auditLog = l
	return e
}

// WithReports replaces the audit report generator.
func (e *Engine) WithReports(g *audit.Generator) *Engine {
	e.reports = g
	return e
}

// WithArtifactStore sets where exported report packs are written.
func (e *Engine) WithArtifactStore(s artifacts.Store) *Engine {
	e.sink = s
	return e
}

// Authz returns the engine's permission evaluator.
func (e *Engine) Authz() *authz.Engine { return e.authz }

// op carries one mutation's fixed parameters.
type op struct {
	name       string
	perm       authz.Permission
	evidenceID string
}

// txFunc runs inside the ledger transaction with the authorized caller and
// the commit being written.
type txFunc func(caller auth.Identity, tx ledger.Tx, c ledger.Commit) error

// mutate is the template every write follows: authorize, take a commit
// position, run fn in one ledger transaction, map storage errors.
func (e *Engine) mutate(ctx context.Context, o op, fn txFunc) (err error) {
	ctx, done := e.track(ctx, o.name, o.evidenceID)
	defer func() { done(err) }()

	caller, err := e.authz.AuthorizeContext(ctx, o.perm)
	if err != nil {
		e.reject(ctx, o, err)
		return err
	}

	c, err := e.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("%s %s: next commit: %w", o.name, o.evidenceID, err)
	}

	var appended int
	err = e.store.Update(ctx, c, o.evidenceID, func(tx ledger.Tx) error {
		return fn(caller, &countingTx{Tx: tx, appended: &appended}, c)
	})
	if err != nil {
		err = storeError(o.evidenceID, err)
		e.reject(ctx, o, err)
		return err
	}
	if appended == 0 {
		e.logger.DebugContext(ctx, "custody operation unchanged",
			"op", o.name,
			"evidence_id", o.evidenceID,
			"subject", caller.String(),
		)
		return nil
	}

	e.obs.RecordCommit(ctx, o.name)
	e.logger.InfoContext(ctx, "custody operation committed",
		"op", o.name,
		"evidence_id", o.evidenceID,
		"subject", caller.String(),
		"sequence", c.Sequence,
	)
	return nil
}

// countingTx counts the events a callback appends. Every ledger write
// carries at least one event, so zero means nothing was committed.
type countingTx struct {
	ledger.Tx
	appended *int
}

func (t *countingTx) AppendEvent(ev *contracts.CustodyEvent) (*contracts.CustodyEvent, error) {
	sealed, err := t.Tx.AppendEvent(ev)
	if err == nil {
		*t.appended++
	}
	return sealed, err
}

// track starts a span and RED metrics for one operation.
func (e *Engine) track(ctx context.Context, name, evidenceID string) (context.Context, func(error)) {
	ident, _ := auth.IdentityFrom(ctx)
	return e.obs.TrackOperation(ctx, "custody."+name, observability.CustodyOperation(name, evidenceID, ident)...)
}

// view authorizes a read.
func (e *Engine) view(ctx context.Context, name, evidenceID string) (context.Context, func(error), error) {
	ctx, done := e.track(ctx, name, evidenceID)
	if _, err := e.authz.AuthorizeContext(ctx, authz.PermViewEvidence); err != nil {
		e.reject(ctx, op{name: name, perm: authz.PermViewEvidence, evidenceID: evidenceID}, err)
		done(err)
		return ctx, nil, err
	}
	return ctx, done, nil
}

// reject logs an operation that did not commit and records it in the
// operator audit log when the rejection is a rule rather than a fault.
func (e *Engine) reject(ctx context.Context, o op, err error) {
	var (
		denied   *AuthorizationError
		custody  *InvalidCustodyError
		conflict *RetryableConflictError
	)
	switch {
	case errors.As(err, &denied), errors.As(err, &custody):
		e.logger.WarnContext(ctx, "custody operation denied", "op", o.name, "evidence_id", o.evidenceID, "error", err)
		e.obs.RecordDenial(ctx, o.name)
		e.record(ctx, audit.EventDenied, o, err)
	case errors.As(err, &conflict):
		e.logger.WarnContext(ctx, "custody operation conflicted", "op", o.name, "evidence_id", o.evidenceID)
		e.obs.RecordConflict(ctx, o.name)
		e.record(ctx, audit.EventConflict, o, err)
	default:
		e.logger.InfoContext(ctx, "custody operation rejected", "op", o.name, "evidence_id", o.evidenceID, "error", err)
	}
}

func (e *Engine) record(ctx context.Context, t audit.EventType, o op, cause error) {
	meta := map[string]any{"permission": string(o.perm), "error": cause.Error()}
	if err := e.auditLog.Record(ctx, t, o.name, o.evidenceID, meta); err != nil {
		e.logger.ErrorContext(ctx, "audit log write failed", "error", err)
	}
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// loadEvidence reads the transaction's snapshot as a typed error.
func loadEvidence(tx ledger.Tx, id string) (*contracts.Evidence, error) {
	ev, err := tx.Evidence()
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, &NotFoundError{Kind: "evidence", ID: id}
	}
	return ev, err
}
