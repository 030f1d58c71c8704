package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
)

// Dialect captures the per-database differences of SQLStore.
type Dialect struct {
	Name       string
	lockSuffix string
	classify   func(error) error
}

// SQLStore implements Store using database/sql.
// It supports both Postgres and SQLite via standard drivers; rows carry
// the indexed columns plus the full JSON body of each record.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS evidence (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL,
	status TEXT NOT NULL,
	custodian_id TEXT NOT NULL,
	custodian_org TEXT NOT NULL,
	head_sequence BIGINT NOT NULL,
	head_index INTEGER NOT NULL,
	head_hash TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	body TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS evidence_case_idx ON evidence (case_id)`,
	`CREATE INDEX IF NOT EXISTS evidence_status_idx ON evidence (status)`,
	`CREATE TABLE IF NOT EXISTS custody_events (
	id TEXT PRIMARY KEY,
	evidence_id TEXT NOT NULL,
	sequence BIGINT NOT NULL,
	idx INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	hash TEXT NOT NULL,
	body TEXT NOT NULL,
	UNIQUE (evidence_id, sequence, idx)
)`,
	`CREATE INDEX IF NOT EXISTS custody_events_evidence_idx ON custody_events (evidence_id)`,
	`CREATE TABLE IF NOT EXISTS access_requests (
	id TEXT PRIMARY KEY,
	evidence_id TEXT NOT NULL,
	status TEXT NOT NULL,
	body TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS analysis_records (
	id TEXT PRIMARY KEY,
	evidence_id TEXT NOT NULL,
	body TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS judicial_reviews (
	id TEXT PRIMARY KEY,
	evidence_id TEXT NOT NULL,
	decision TEXT NOT NULL,
	body TEXT NOT NULL
)`,
}

// Init creates the tables if they do not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ledger: migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func (s *SQLStore) Update(ctx context.Context, c Commit, evidenceID string, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.dialect.classify(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	loaded, err := s.lockEvidence(ctx, tx, evidenceID)
	if err != nil {
		return err
	}

	st := newTxState(c, evidenceID, loaded, &sqlAuxLoader{ctx: ctx, q: tx})
	if err = st.checkCommit(); err != nil {
		return err
	}
	if err = fn(st); err != nil {
		return err
	}
	cs, err := st.finish()
	if err != nil {
		return err
	}
	if err = s.apply(ctx, tx, cs); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return s.dialect.classify(err)
	}
	return nil
}

func (s *SQLStore) lockEvidence(ctx context.Context, tx *sql.Tx, id string) (*contracts.Evidence, error) {
	query := `SELECT body FROM evidence WHERE id = $1` + s.dialect.lockSuffix
	var body string
	err := tx.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.dialect.classify(err)
	}
	var ev contracts.Evidence
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("corrupt evidence %s: %w", id, err)
	}
	return &ev, nil
}

func (s *SQLStore) apply(ctx context.Context, tx *sql.Tx, cs *changeSet) error {
	if cs.snapshot != nil {
		body, err := json.Marshal(cs.snapshot)
		if err != nil {
			return err
		}
		ev := cs.snapshot
		if cs.created {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO evidence (id, case_id, status, custodian_id, custodian_org, head_sequence, head_index, head_hash, updated_at, body)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				ev.ID, ev.CaseID, string(ev.Status), ev.CustodianID, ev.CustodianOrg,
				int64(ev.HeadSequence), ev.HeadIndex, ev.HeadHash, formatTime(ev.UpdatedAt), string(body))
			if err != nil {
				return s.dialect.classify(err)
			}
		} else {
			res, err := tx.ExecContext(ctx, `
				UPDATE evidence
				SET status = $1, custodian_id = $2, custodian_org = $3, head_sequence = $4, head_index = $5, head_hash = $6, updated_at = $7, body = $8
				WHERE id = $9 AND head_sequence = $10 AND head_index = $11`,
				string(ev.Status), ev.CustodianID, ev.CustodianOrg, int64(ev.HeadSequence), ev.HeadIndex,
				ev.HeadHash, formatTime(ev.UpdatedAt), string(body),
				ev.ID, int64(cs.expected.HeadSequence), cs.expected.HeadIndex)
			if err != nil {
				return s.dialect.classify(err)
			}
			rows, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to check rows affected: %w", err)
			}
			if rows == 0 {
				return fmt.Errorf("evidence %s: %w", ev.ID, ErrConflict)
			}
		}
	}

	for _, e := range cs.events {
		body, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO custody_events (id, evidence_id, sequence, idx, event_type, timestamp, prev_hash, hash, body)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.EvidenceID, int64(e.Sequence), e.Index, string(e.Type), formatTime(e.Timestamp),
			e.PrevHash, e.Hash, string(body))
		if err != nil {
			return s.dialect.classify(err)
		}
	}

	for _, r := range cs.access {
		body, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO access_requests (id, evidence_id, status, body) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET status = excluded.status, body = excluded.body`,
			r.ID, r.EvidenceID, string(r.Status), string(body))
		if err != nil {
			return s.dialect.classify(err)
		}
	}
	for _, r := range cs.analyses {
		body, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO analysis_records (id, evidence_id, body) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET body = excluded.body`,
			r.ID, r.EvidenceID, string(body))
		if err != nil {
			return s.dialect.classify(err)
		}
	}
	for _, r := range cs.reviews {
		body, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO judicial_reviews (id, evidence_id, decision, body) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET decision = excluded.decision, body = excluded.body`,
			r.ID, r.EvidenceID, string(r.Decision), string(body))
		if err != nil {
			return s.dialect.classify(err)
		}
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlAuxLoader struct {
	ctx context.Context
	q   queryer
}

func (l *sqlAuxLoader) loadAccessRequest(id string) (*contracts.AccessRequest, error) {
	var r contracts.AccessRequest
	if err := getBody(l.ctx, l.q, `SELECT body FROM access_requests WHERE id = $1`, id, &r); err != nil {
		return nil, fmt.Errorf("access request %s: %w", id, err)
	}
	return &r, nil
}

func (l *sqlAuxLoader) loadAnalysisRecord(id string) (*contracts.AnalysisRecord, error) {
	var r contracts.AnalysisRecord
	if err := getBody(l.ctx, l.q, `SELECT body FROM analysis_records WHERE id = $1`, id, &r); err != nil {
		return nil, fmt.Errorf("analysis record %s: %w", id, err)
	}
	return &r, nil
}

func (l *sqlAuxLoader) loadJudicialReview(id string) (*contracts.JudicialReview, error) {
	var r contracts.JudicialReview
	if err := getBody(l.ctx, l.q, `SELECT body FROM judicial_reviews WHERE id = $1`, id, &r); err != nil {
		return nil, fmt.Errorf("judicial review %s: %w", id, err)
	}
	return &r, nil
}

func getBody(ctx context.Context, q queryer, query, id string, dst any) error {
	var body string
	err := q.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("corrupt record: %w", err)
	}
	return nil
}

// listBodies decodes every body column returned by query into a fresh T.
func listBodies[T any](ctx context.Context, q queryer, query string, args ...any) ([]*T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]*T, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		v := new(T)
		if err := json.Unmarshal([]byte(body), v); err != nil {
			return nil, fmt.Errorf("corrupt record: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLStore) GetEvidence(ctx context.Context, id string) (*contracts.Evidence, error) {
	return readEvidence(ctx, s.db, id)
}

func (s *SQLStore) ListEvidence(ctx context.Context, f Filter) ([]*contracts.Evidence, error) {
	return listBodies[contracts.Evidence](ctx, s.db,
		`SELECT body FROM evidence WHERE ($1 = '' OR case_id = $1) AND ($2 = '' OR status = $2) ORDER BY id`,
		f.CaseID, string(f.Status))
}

func (s *SQLStore) History(ctx context.Context, evidenceID string) ([]*contracts.CustodyEvent, error) {
	return readHistory(ctx, s.db, evidenceID)
}

func (s *SQLStore) AccessRequests(ctx context.Context, evidenceID string) ([]*contracts.AccessRequest, error) {
	return readAccessRequests(ctx, s.db, evidenceID)
}

func (s *SQLStore) AnalysisRecords(ctx context.Context, evidenceID string) ([]*contracts.AnalysisRecord, error) {
	return readAnalysisRecords(ctx, s.db, evidenceID)
}

func (s *SQLStore) JudicialReviews(ctx context.Context, evidenceID string) ([]*contracts.JudicialReview, error) {
	return readJudicialReviews(ctx, s.db, evidenceID)
}

// Dossier runs every read inside one read-only repeatable-read transaction.
func (s *SQLStore) Dossier(ctx context.Context, evidenceID string) (_ *Dossier, err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, s.dialect.classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	d := &Dossier{}
	if d.Evidence, err = readEvidence(ctx, tx, evidenceID); err != nil {
		return nil, err
	}
	if d.Events, err = readHistory(ctx, tx, evidenceID); err != nil {
		return nil, err
	}
	if d.AccessRequests, err = readAccessRequests(ctx, tx, evidenceID); err != nil {
		return nil, err
	}
	if d.Analyses, err = readAnalysisRecords(ctx, tx, evidenceID); err != nil {
		return nil, err
	}
	if d.Reviews, err = readJudicialReviews(ctx, tx, evidenceID); err != nil {
		return nil, err
	}
	return d, nil
}

func readEvidence(ctx context.Context, q queryer, id string) (*contracts.Evidence, error) {
	var ev contracts.Evidence
	if err := getBody(ctx, q, `SELECT body FROM evidence WHERE id = $1`, id, &ev); err != nil {
		return nil, fmt.Errorf("evidence %s: %w", id, err)
	}
	return &ev, nil
}

func readHistory(ctx context.Context, q queryer, evidenceID string) ([]*contracts.CustodyEvent, error) {
	events, err := listBodies[contracts.CustodyEvent](ctx, q,
		`SELECT body FROM custody_events WHERE evidence_id = $1 ORDER BY sequence, idx`, evidenceID)
	if err != nil {
		return nil, err
	}
	SortEvents(events)
	return events, nil
}

func readAccessRequests(ctx context.Context, q queryer, evidenceID string) ([]*contracts.AccessRequest, error) {
	out, err := listBodies[contracts.AccessRequest](ctx, q,
		`SELECT body FROM access_requests WHERE evidence_id = $1`, evidenceID)
	if err != nil {
		return nil, err
	}
	sortAccess(out)
	return out, nil
}

func readAnalysisRecords(ctx context.Context, q queryer, evidenceID string) ([]*contracts.AnalysisRecord, error) {
	out, err := listBodies[contracts.AnalysisRecord](ctx, q,
		`SELECT body FROM analysis_records WHERE evidence_id = $1`, evidenceID)
	if err != nil {
		return nil, err
	}
	sortAnalyses(out)
	return out, nil
}

func readJudicialReviews(ctx context.Context, q queryer, evidenceID string) ([]*contracts.JudicialReview, error) {
	out, err := listBodies[contracts.JudicialReview](ctx, q,
		`SELECT body FROM judicial_reviews WHERE evidence_id = $1`, evidenceID)
	if err != nil {
		return nil, err
	}
	sortReviews(out)
	return out, nil
}

func (s *SQLStore) MaxSequence(ctx context.Context) (uint64, error) {
	var max int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM custody_events`).Scan(&max); err != nil {
		return 0, err
	}
	return uint64(max), nil
}
