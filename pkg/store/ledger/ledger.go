// Package ledger is the durable custody-event ledger and evidence snapshot store.
//
// Every mutation of an evidence item runs inside Store.Update: the callback
// stages snapshot changes and appends custody events, and the store commits
// both atomically or not at all. Events are append-only; there is no update
// or delete path.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
)

var (
	// ErrNotFound is returned when a ledger entry is not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when creating an entry whose id already exists.
	ErrDuplicate = errors.New("already exists")
	// ErrConflict is returned when a concurrent commit touched the same evidence item.
	ErrConflict = errors.New("concurrent modification")
	// ErrChainBroken is returned when an evidence item's event hash chain does not verify.
	ErrChainBroken = errors.New("hash chain is broken")
	// ErrNoEvent is returned when a commit changes state without appending a custody event.
	ErrNoEvent = errors.New("state change without custody event")
)

// Commit is the position assigned to one transaction by the ordering service.
type Commit struct {
	Sequence  uint64    `json:"sequence"`
	TxID      string    `json:"tx_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Filter narrows ListEvidence. Empty fields match everything.
type Filter struct {
	CaseID string
	Status contracts.Status
}

func (f Filter) match(ev *contracts.Evidence) bool {
	if f.CaseID != "" && ev.CaseID != f.CaseID {
		return false
	}
	if f.Status != "" && ev.Status != f.Status {
		return false
	}
	return true
}

// Reader is the read-only query surface over committed state.
type Reader interface {
	GetEvidence(ctx context.Context, id string) (*contracts.Evidence, error)
	ListEvidence(ctx context.Context, f Filter) ([]*contracts.Evidence, error)
	// History returns an item's events in ledger order.
	History(ctx context.Context, evidenceID string) ([]*contracts.CustodyEvent, error)
	AccessRequests(ctx context.Context, evidenceID string) ([]*contracts.AccessRequest, error)
	AnalysisRecords(ctx context.Context, evidenceID string) ([]*contracts.AnalysisRecord, error)
	JudicialReviews(ctx context.Context, evidenceID string) ([]*contracts.JudicialReview, error)
	// MaxSequence returns the highest committed sequence, 0 when empty.
	MaxSequence(ctx context.Context) (uint64, error)
	// Dossier returns an item with its history and records as of a single
	// point in time, or ErrNotFound.
	Dossier(ctx context.Context, evidenceID string) (*Dossier, error)
}

// Dossier is a consistent read of one evidence item and everything attached to it.
type Dossier struct {
	Evidence       *contracts.Evidence
	Events         []*contracts.CustodyEvent
	AccessRequests []*contracts.AccessRequest
	Analyses       []*contracts.AnalysisRecord
	Reviews        []*contracts.JudicialReview
}

// Tx is the transaction context handed to an Update callback. It is scoped
// to a single evidence item and is not safe for use after the callback returns.
type Tx interface {
	// Evidence returns the transaction's view of the snapshot, or ErrNotFound.
	Evidence() (*contracts.Evidence, error)
	// Create stages a new snapshot; ErrDuplicate if the item exists.
	Create(ev *contracts.Evidence) error
	// Put stages a replacement snapshot, written compare-and-swap on the
	// head version read at the start of the transaction.
	Put(ev *contracts.Evidence) error
	// AppendEvent seals e at the next commit position and links it into the
	// item's hash chain. The sealed copy is returned.
	AppendEvent(e *contracts.CustodyEvent) (*contracts.CustodyEvent, error)

	AccessRequest(id string) (*contracts.AccessRequest, error)
	PutAccessRequest(r *contracts.AccessRequest) error
	AnalysisRecord(id string) (*contracts.AnalysisRecord, error)
	PutAnalysisRecord(r *contracts.AnalysisRecord) error
	JudicialReview(id string) (*contracts.JudicialReview, error)
	PutJudicialReview(r *contracts.JudicialReview) error
}

// Store is a transactional evidence ledger.
type Store interface {
	Reader
	// Update runs fn in one serializable transaction for evidenceID. If fn
	// returns an error nothing is written. A commit whose position is not
	// newer than the item's head, or that races another writer of the same
	// item, fails with ErrConflict. Writers to distinct items do not conflict.
	Update(ctx context.Context, c Commit, evidenceID string, fn func(Tx) error) error
	Close() error
}
