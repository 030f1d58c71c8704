package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctxBG = context.Background()

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func commitAt(seq uint64) Commit {
	return Commit{Sequence: seq, TxID: fmt.Sprintf("tx-%d", seq), Timestamp: base.Add(time.Duration(seq) * time.Second)}
}

func newEvidence(id, caseID string) *contracts.Evidence {
	return &contracts.Evidence{
		ID:           id,
		CaseID:       caseID,
		ContentID:    "cid-" + id,
		OriginalHash: "sha256:aa",
		Metadata:     contracts.EvidenceMetadata{Name: "disk.img", Size: 1024},
		Status:       contracts.StatusRegistered,
		CustodianID:  "collector-1",
		CustodianOrg: "LawEnforcement",
		RegisteredBy: "collector-1",
		CreatedAt:    base,
		Tags:         []string{},
	}
}

func register(t *testing.T, s Store, seq uint64, ev *contracts.Evidence) {
	t.Helper()
	err := s.Update(context.Background(), commitAt(seq), ev.ID, func(tx Tx) error {
		if err := tx.Create(ev); err != nil {
			return err
		}
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventRegistration, PerformedBy: ev.RegisteredBy})
		return err
	})
	require.NoError(t, err)
}

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			fs, err := NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
			require.NoError(t, err)
			return fs
		},
		"sqlite": func(t *testing.T) Store { return openSQLite(t) },
	}
}

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", SQLiteDSN(filepath.Join(t.TempDir(), "ledger.db")))
	require.NoError(t, err)
	s := NewSQLStore(db, SQLite)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Conformance(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("register", func(t *testing.T) { testRegister(t, factory(t)) })
			t.Run("multi-event commit", func(t *testing.T) { testMultiEventCommit(t, factory(t)) })
			t.Run("rollback on error", func(t *testing.T) { testRollback(t, factory(t)) })
			t.Run("write requires event", func(t *testing.T) { testRequiresEvent(t, factory(t)) })
			t.Run("stale commit", func(t *testing.T) { testStaleCommit(t, factory(t)) })
			t.Run("backdated commit", func(t *testing.T) { testBackdatedCommit(t, factory(t)) })
			t.Run("dossier", func(t *testing.T) { testDossier(t, factory(t)) })
			t.Run("aux records", func(t *testing.T) { testAuxRecords(t, factory(t)) })
			t.Run("list and max sequence", func(t *testing.T) { testListEvidence(t, factory(t)) })
		})
	}
}

func testRegister(t *testing.T, s Store) {
	ctx := context.Background()
	register(t, s, 1, newEvidence("E1", "C1"))

	ev, err := s.GetEvidence(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev.HeadSequence)
	assert.Equal(t, 0, ev.HeadIndex)
	assert.Equal(t, commitAt(1).Timestamp, ev.UpdatedAt.UTC())

	history, err := s.History(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "EVT-E1-1", history[0].ID)
	assert.Equal(t, "tx-1", history[0].TxID)
	assert.Equal(t, GenesisHash, history[0].PrevHash)
	assert.Equal(t, ev.HeadHash, history[0].Hash)
	assert.NoError(t, VerifyChain(history, ev.HeadHash))

	err = s.Update(ctx, commitAt(2), "E1", func(tx Tx) error { return tx.Create(newEvidence("E1", "C1")) })
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.GetEvidence(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testMultiEventCommit(t *testing.T, s Store) {
	ctx := context.Background()
	register(t, s, 1, newEvidence("E1", "C1"))

	err := s.Update(ctx, commitAt(5), "E1", func(tx Tx) error {
		ev, err := tx.Evidence()
		if err != nil {
			return err
		}
		ev.Status = contracts.StatusInCustody
		ev.CustodianOrg = "ForensicLab"
		if err := tx.Put(ev); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventTransfer, ToOrg: "ForensicLab"}); err != nil {
			return err
		}
		_, err = tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventTagAdded, Details: map[string]any{"tag": "disk", "n": 3}})
		return err
	})
	require.NoError(t, err)

	ev, err := s.GetEvidence(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusInCustody, ev.Status)
	assert.Equal(t, uint64(5), ev.HeadSequence)
	assert.Equal(t, 1, ev.HeadIndex)

	history, err := s.History(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"EVT-E1-1", "EVT-E1-5", "EVT-E1-5-1"}, []string{history[0].ID, history[1].ID, history[2].ID})
	assert.Equal(t, history[1].Hash, history[2].PrevHash)
	assert.NoError(t, VerifyChain(history, ev.HeadHash))
}

func testRollback(t *testing.T, s Store) {
	ctx := context.Background()
	register(t, s, 1, newEvidence("E1", "C1"))
	boom := errors.New("boom")

	err := s.Update(ctx, commitAt(2), "E1", func(tx Tx) error {
		ev, _ := tx.Evidence()
		ev.Status = contracts.StatusInCustody
		_ = tx.Put(ev)
		_, _ = tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventTransfer})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ev, err := s.GetEvidence(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusRegistered, ev.Status)
	history, err := s.History(ctx, "E1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func testRequiresEvent(t *testing.T, s Store) {
	ctx := context.Background()
	register(t, s, 1, newEvidence("E1", "C1"))

	err := s.Update(ctx, commitAt(2), "E1", func(tx Tx) error {
		ev, _ := tx.Evidence()
		ev.Status = contracts.StatusArchived
		return tx.Put(ev)
	})
	assert.ErrorIs(t, err, ErrNoEvent)

	// A read-only transaction is a no-op.
	assert.NoError(t, s.Update(ctx, commitAt(3), "E1", func(tx Tx) error {
		_, err := tx.Evidence()
		return err
	}))
}

func testStaleCommit(t *testing.T, s Store) {
	ctx := context.Background()
	register(t, s, 7, newEvidence("E1", "C1"))

	err := s.Update(ctx, commitAt(7), "E1", func(tx Tx) error {
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventVerification})
		return err
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func testBackdatedCommit(t *testing.T, s Store) {
	ctx := context.Background()
	register(t, s, 5, newEvidence("E1", "C1"))

	c := commitAt(6)
	c.Timestamp = commitAt(4).Timestamp
	err := s.Update(ctx, c, "E1", func(tx Tx) error {
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventTagAdded})
		return err
	})
	assert.ErrorIs(t, err, ErrConflict)

	// Same instant as the head is still accepted.
	c.Timestamp = commitAt(5).Timestamp
	require.NoError(t, s.Update(ctx, c, "E1", func(tx Tx) error {
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventTagAdded})
		return err
	}))
	history, err := s.History(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(6), history[1].Sequence)
}

func testDossier(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.Dossier(ctx, "E1")
	assert.ErrorIs(t, err, ErrNotFound)

	register(t, s, 1, newEvidence("E1", "C1"))
	register(t, s, 2, newEvidence("E2", "C1"))
	require.NoError(t, s.Update(ctx, commitAt(3), "E1", func(tx Tx) error {
		if err := tx.PutAnalysisRecord(&contracts.AnalysisRecord{ID: "AN-1", EvidenceID: "E1", CompletedAt: base}); err != nil {
			return err
		}
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventAnalysisEnd})
		return err
	}))

	d, err := s.Dossier(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, "E1", d.Evidence.ID)
	require.Len(t, d.Events, 2)
	assert.NoError(t, VerifyChain(d.Events, d.Evidence.HeadHash))
	require.Len(t, d.Analyses, 1)
	assert.Equal(t, "AN-1", d.Analyses[0].ID)
	assert.Empty(t, d.AccessRequests)
	assert.Empty(t, d.Reviews)

	// Reads taken while another goroutine keeps committing stay consistent.
	done := make(chan error, 1)
	go func() {
		for seq := uint64(4); seq < 40; seq++ {
			err := s.Update(ctx, commitAt(seq), "E1", func(tx Tx) error {
				_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventTagAdded})
				return err
			})
			if err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	for i := 0; i < 20; i++ {
		d, err := s.Dossier(ctx, "E1")
		require.NoError(t, err)
		require.NoError(t, VerifyChain(d.Events, d.Evidence.HeadHash))
		assert.Equal(t, d.Evidence.HeadSequence, d.Events[len(d.Events)-1].Sequence)
	}
	require.NoError(t, <-done)
}

func testAuxRecords(t *testing.T, s Store) {
	ctx := context.Background()
	register(t, s, 1, newEvidence("E1", "C1"))
	register(t, s, 2, newEvidence("E2", "C1"))

	req := &contracts.AccessRequest{
		ID: "AR-1", EvidenceID: "E1", RequesterID: "analyst-1", Purpose: "review",
		RequestedAt: commitAt(3).Timestamp, Status: contracts.AccessPending,
	}
	require.NoError(t, s.Update(ctx, commitAt(3), "E1", func(tx Tx) error {
		if err := tx.PutAccessRequest(req); err != nil {
			return err
		}
		if err := tx.PutAnalysisRecord(&contracts.AnalysisRecord{ID: "AN-1", EvidenceID: "E1", ToolName: "tsk", Artifacts: []string{"a"}}); err != nil {
			return err
		}
		if err := tx.PutJudicialReview(&contracts.JudicialReview{ID: "JR-1", EvidenceID: "E1", Decision: contracts.DecisionPending}); err != nil {
			return err
		}
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventAccessRequest})
		return err
	}))

	require.NoError(t, s.Update(ctx, commitAt(4), "E1", func(tx Tx) error {
		r, err := tx.AccessRequest("AR-1")
		if err != nil {
			return err
		}
		assert.Equal(t, contracts.AccessPending, r.Status)
		r.Status = contracts.AccessApproved
		if err := tx.PutAccessRequest(r); err != nil {
			return err
		}
		got, err := tx.AccessRequest("AR-1")
		require.NoError(t, err)
		assert.Equal(t, contracts.AccessApproved, got.Status)

		an, err := tx.AnalysisRecord("AN-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, an.Artifacts)
		jr, err := tx.JudicialReview("JR-1")
		require.NoError(t, err)
		assert.Equal(t, contracts.DecisionPending, jr.Decision)

		_, err = tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventAccessGranted})
		return err
	}))

	// Records are scoped to their evidence item.
	err := s.Update(ctx, commitAt(5), "E2", func(tx Tx) error {
		_, err := tx.AccessRequest("AR-1")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	reqs, err := s.AccessRequests(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, contracts.AccessApproved, reqs[0].Status)

	analyses, err := s.AnalysisRecords(ctx, "E1")
	require.NoError(t, err)
	assert.Len(t, analyses, 1)
	reviews, err := s.JudicialReviews(ctx, "E1")
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
	none, err := s.JudicialReviews(ctx, "E2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testListEvidence(t *testing.T, s Store) {
	ctx := context.Background()
	max, err := s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Zero(t, max)

	register(t, s, 1, newEvidence("E2", "C1"))
	register(t, s, 2, newEvidence("E1", "C1"))
	register(t, s, 3, newEvidence("E3", "C2"))
	require.NoError(t, s.Update(ctx, commitAt(4), "E3", func(tx Tx) error {
		ev, _ := tx.Evidence()
		ev.Status = contracts.StatusInCustody
		if err := tx.Put(ev); err != nil {
			return err
		}
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventTransfer})
		return err
	}))

	byCase, err := s.ListEvidence(ctx, Filter{CaseID: "C1"})
	require.NoError(t, err)
	require.Len(t, byCase, 2)
	assert.Equal(t, "E1", byCase[0].ID)
	assert.Equal(t, "E2", byCase[1].ID)

	byStatus, err := s.ListEvidence(ctx, Filter{Status: contracts.StatusInCustody})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "E3", byStatus[0].ID)

	all, err := s.ListEvidence(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	max, err = s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), max)
}

func TestMemoryStore_SameItemWritersFailFast(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	register(t, s, 1, newEvidence("E1", "C1"))

	var inner error
	err := s.Update(ctx, commitAt(2), "E1", func(tx Tx) error {
		inner = s.Update(ctx, commitAt(3), "E1", func(Tx) error { return nil })
		// A different item is not blocked.
		register(t, s, 4, newEvidence("E2", "C1"))
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventVerification})
		return err
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrConflict)
}

func TestMemoryStore_ReadsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	register(t, s, 1, newEvidence("E1", "C1"))

	ev, err := s.GetEvidence(ctx, "E1")
	require.NoError(t, err)
	ev.Status = contracts.StatusDisposed
	ev.Tags = append(ev.Tags, "mutated")

	history, err := s.History(ctx, "E1")
	require.NoError(t, err)
	history[0].Hash = "forged"

	again, err := s.GetEvidence(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusRegistered, again.Status)
	assert.Empty(t, again.Tags)
	fresh, err := s.History(ctx, "E1")
	require.NoError(t, err)
	assert.NoError(t, VerifyChain(fresh, again.HeadHash))
}

func TestFileStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)
	register(t, fs, 9, newEvidence("E1", "C1"))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	ev, err := reopened.GetEvidence(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "C1", ev.CaseID)

	max, err := reopened.MaxSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(9), max)

	history, err := reopened.History(context.Background(), "E1")
	require.NoError(t, err)
	assert.NoError(t, VerifyChain(history, ev.HeadHash))
}

func TestFileStore_PersistFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(filepath.Join(dir, "missing-dir", "ledger.json"))
	require.NoError(t, err)

	err = fs.Update(context.Background(), commitAt(1), "E1", func(tx Tx) error {
		if err := tx.Create(newEvidence("E1", "C1")); err != nil {
			return err
		}
		_, err := tx.AppendEvent(&contracts.CustodyEvent{Type: contracts.EventRegistration})
		return err
	})
	require.Error(t, err)

	_, err = fs.GetEvidence(context.Background(), "E1")
	assert.ErrorIs(t, err, ErrNotFound)
	max, _ := fs.MaxSequence(context.Background())
	assert.Zero(t, max)
}
