package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db, Postgres), mock
}

func evidenceRow(t *testing.T, ev *contracts.Evidence) *sqlmock.Rows {
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return sqlmock.NewRows([]string{"body"}).AddRow(string(body))
}

func TestSQLStore_CompareAndSwapMiss(t *testing.T) {
	s, mock := newMockStore(t)
	ev := newEvidence("E1", "C1")
	ev.HeadSequence, ev.HeadHash = 1, "h1"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT body FROM evidence WHERE id = \$1 FOR UPDATE NOWAIT`).
		WithArgs("E1").
		WillReturnRows(evidenceRow(t, ev))
	mock.ExpectExec("UPDATE evidence").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Update(context.Background(), commitAt(2), "E1", func(tx Tx) error {
		cur, err := tx.Evidence()
		if err != nil {
			return err
		}
		cur.Status = contracts.StatusInCustody
		if err := tx.Put(cur); err != nil {
			return err
		}
		_, err = tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventTransfer})
		return err
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_LockNotAvailable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT body FROM evidence").
		WithArgs("E1").
		WillReturnError(&pq.Error{Code: "55P03", Message: "could not obtain lock on row"})
	mock.ExpectRollback()

	called := false
	err := s.Update(context.Background(), commitAt(2), "E1", func(Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CreateRace(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT body FROM evidence").
		WithArgs("E1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))
	mock.ExpectExec("INSERT INTO evidence").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := s.Update(context.Background(), commitAt(1), "E1", func(tx Tx) error {
		if err := tx.Create(newEvidence("E1", "C1")); err != nil {
			return err
		}
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventRegistration})
		return err
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CommitWritesEventsAndRecords(t *testing.T) {
	s, mock := newMockStore(t)
	ev := newEvidence("E1", "C1")
	ev.HeadSequence, ev.HeadHash = 1, "h1"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT body FROM evidence").WithArgs("E1").WillReturnRows(evidenceRow(t, ev))
	mock.ExpectQuery("SELECT body FROM access_requests").WithArgs("AR-1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))
	mock.ExpectExec("UPDATE evidence").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO custody_events").
		WithArgs("EVT-E1-2", "E1", int64(2), 0, "ACCESS_REQUEST", sqlmock.AnyArg(), "h1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO access_requests").
		WithArgs("AR-1", "E1", "PENDING", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Update(context.Background(), commitAt(2), "E1", func(tx Tx) error {
		if _, err := tx.AccessRequest("AR-1"); !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := tx.PutAccessRequest(&contracts.AccessRequest{ID: "AR-1", EvidenceID: "E1", Status: contracts.AccessPending}); err != nil {
			return err
		}
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventAccessRequest})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_MaxSequence(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(sequence\), 0\) FROM custody_events`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(42)))

	max, err := s.MaxSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), max)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyPostgres(t *testing.T) {
	assert.ErrorIs(t, classifyPostgres(&pq.Error{Code: "40001"}), ErrConflict)
	assert.ErrorIs(t, classifyPostgres(&pq.Error{Code: "23505"}), ErrDuplicate)
	plain := errors.New("connection reset")
	assert.Equal(t, plain, classifyPostgres(plain))
}

func TestSQLiteStore_ConcurrentDistinctWriters(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	assert.Contains(t, SQLiteDSN("x.db"), fmt.Sprintf("busy_timeout(%d)", SQLiteBusyTimeout.Milliseconds()))

	const n = 40
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := newEvidence(fmt.Sprintf("E%02d", i), "C1")
			errs[i] = s.Update(ctx, commitAt(uint64(i+1)), ev.ID, func(tx Tx) error {
				if err := tx.Create(ev); err != nil {
					return err
				}
				_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventRegistration, PerformedBy: ev.RegisteredBy})
				return err
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "writer %d", i)
	}
	all, err := s.ListEvidence(ctx, Filter{CaseID: "C1"})
	require.NoError(t, err)
	assert.Len(t, all, n)
	max, err := s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), max)
}
