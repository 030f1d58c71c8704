package ledger

import (
	"fmt"
	"sort"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/canonicalize"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
)

// GenesisHash anchors the first event of every evidence item's chain.
const GenesisHash = "genesis"

// EventID derives the deterministic id of the index-th event in commit seq.
// The first event of a commit carries no index suffix.
func EventID(evidenceID string, seq uint64, index int) string {
	if index == 0 {
		return fmt.Sprintf("EVT-%s-%d", evidenceID, seq)
	}
	return fmt.Sprintf("EVT-%s-%d-%d", evidenceID, seq, index)
}

// HashEvent computes the chain hash of e: the SHA-256 of its canonical
// JSON form with the Hash field cleared. PrevHash is included, which is
// what links the chain.
func HashEvent(e *contracts.CustodyEvent) (string, error) {
	c := e.Clone()
	c.Hash = ""
	return canonicalize.CanonicalHash(c)
}

// SortEvents orders events by (Timestamp, Sequence, Index) in place.
func SortEvents(events []*contracts.CustodyEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(events[j]) })
}

// VerifyChain recomputes every event hash and link of one evidence item's
// history. Events may arrive in any order; the chain is walked in commit
// order. headHash, if non-empty, must equal the last event's hash.
func VerifyChain(events []*contracts.CustodyEvent, headHash string) error {
	ordered := append([]*contracts.CustodyEvent(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Sequence != ordered[j].Sequence {
			return ordered[i].Sequence < ordered[j].Sequence
		}
		return ordered[i].Index < ordered[j].Index
	})

	prev := GenesisHash
	for i, e := range ordered {
		if e.PrevHash != prev {
			return fmt.Errorf("%w: event %d (%s) links to %q, expected %q", ErrChainBroken, i, e.ID, e.PrevHash, prev)
		}
		h, err := HashEvent(e)
		if err != nil {
			return fmt.Errorf("hash event %s: %w", e.ID, err)
		}
		if h != e.Hash {
			return fmt.Errorf("%w: event %d (%s) content hash mismatch", ErrChainBroken, i, e.ID)
		}
		prev = e.Hash
	}
	if headHash != "" && headHash != prev {
		return fmt.Errorf("%w: head %q does not match last event %q", ErrChainBroken, headHash, prev)
	}
	return nil
}
