// Package sequencer assigns commit positions (sequence, transaction id and
// timestamp) to ledger transactions.
//
// Sequences are strictly increasing and timestamps never go backwards, so
// ledger order by (timestamp, sequence) agrees with commit order.
package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
	"github.com/google/uuid"
)

// Sequencer hands out commit positions.
type Sequencer interface {
	Next(ctx context.Context) (ledger.Commit, error)
}

// Local is an in-process Sequencer for single-node deployments.
type Local struct {
	mu    sync.Mutex
	seq   uint64
	last  time.Time
	clock func() time.Time
}

// NewLocal returns a Local sequencer whose first commit is start+1.
func NewLocal(start uint64) *Local {
	return &Local{seq: start, clock: time.Now}
}

// NewLocalFromStore seeds a Local sequencer past the store's highest
// committed sequence and latest commit time, so a clock that is behind
// after a restart cannot order new events before old ones.
func NewLocalFromStore(ctx context.Context, r ledger.Reader) (*Local, error) {
	max, err := r.MaxSequence(ctx)
	if err != nil {
		return nil, err
	}
	all, err := r.ListEvidence(ctx, ledger.Filter{})
	if err != nil {
		return nil, err
	}
	l := NewLocal(max)
	for _, ev := range all {
		if ev.UpdatedAt.After(l.last) {
			l.last = ev.UpdatedAt.UTC()
		}
	}
	return l, nil
}

// WithClock overrides the time source (for deterministic tests).
func (l *Local) WithClock(clock func() time.Time) *Local {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
	return l
}

func (l *Local) Next(ctx context.Context) (ledger.Commit, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Commit{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	now := l.clock().UTC().Round(0)
	if !now.After(l.last) {
		now = l.last.Add(time.Microsecond)
	}
	l.last = now
	return ledger.Commit{
		Sequence:  l.seq,
		TxID:      uuid.New().String(),
		Timestamp: now,
	}, nil
}
