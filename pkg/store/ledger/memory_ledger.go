package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
)

// memoryState is the full committed state of a MemoryStore.
type memoryState struct {
	Evidence        map[string]*contracts.Evidence       `json:"evidence"`
	Events          map[string][]*contracts.CustodyEvent `json:"events"`
	AccessRequests  map[string]*contracts.AccessRequest  `json:"access_requests"`
	AnalysisRecords map[string]*contracts.AnalysisRecord `json:"analysis_records"`
	JudicialReviews map[string]*contracts.JudicialReview `json:"judicial_reviews"`
}

func newMemoryState() memoryState {
	return memoryState{
		Evidence:        make(map[string]*contracts.Evidence),
		Events:          make(map[string][]*contracts.CustodyEvent),
		AccessRequests:  make(map[string]*contracts.AccessRequest),
		AnalysisRecords: make(map[string]*contracts.AnalysisRecord),
		JudicialReviews: make(map[string]*contracts.JudicialReview),
	}
}

// MemoryStore implements Store in process memory.
//
// Committed values are never mutated in place: readers get clones and
// commits swap in fresh copies. Writers to the same evidence item are
// serialized by a per-item lock taken with TryLock, so a second writer
// fails with ErrConflict instead of waiting.
type MemoryStore struct {
	mu     sync.RWMutex
	state  memoryState
	maxSeq uint64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// persist runs under the write lock after a commit is applied; an
	// error rolls the commit back.
	persist func(*memoryState) error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) lockFor(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *MemoryStore) Update(ctx context.Context, c Commit, evidenceID string, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := m.lockFor(evidenceID)
	if !lock.TryLock() {
		return fmt.Errorf("evidence %s: %w", evidenceID, ErrConflict)
	}
	defer lock.Unlock()

	m.mu.RLock()
	loaded := m.state.Evidence[evidenceID].Clone()
	m.mu.RUnlock()

	st := newTxState(c, evidenceID, loaded, m)
	if err := st.checkCommit(); err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	cs, err := st.finish()
	if err != nil {
		return err
	}
	if cs.empty() {
		return nil
	}
	return m.apply(cs)
}

func (m *MemoryStore) apply(cs *changeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := cs.evidenceID
	current := m.state.Evidence[id]
	if cs.created {
		if current != nil {
			return fmt.Errorf("evidence %s: %w", id, ErrDuplicate)
		}
	} else {
		if current == nil {
			return fmt.Errorf("evidence %s: %w", id, ErrNotFound)
		}
		if current.HeadSequence != cs.expected.HeadSequence || current.HeadIndex != cs.expected.HeadIndex {
			return fmt.Errorf("evidence %s: %w", id, ErrConflict)
		}
	}

	undo := m.stage(cs)
	if m.persist != nil {
		if err := m.persist(&m.state); err != nil {
			undo()
			return fmt.Errorf("persist commit: %w", err)
		}
	}
	return nil
}

// stage writes cs into state and returns a function restoring the prior state.
func (m *MemoryStore) stage(cs *changeSet) func() {
	id := cs.evidenceID
	prevEvidence, hadEvidence := m.state.Evidence[id]
	prevEvents := m.state.Events[id]
	prevMax := m.maxSeq
	prevAccess := make(map[string]*contracts.AccessRequest)
	prevAnalyses := make(map[string]*contracts.AnalysisRecord)
	prevReviews := make(map[string]*contracts.JudicialReview)

	m.state.Evidence[id] = cs.snapshot
	events := make([]*contracts.CustodyEvent, 0, len(prevEvents)+len(cs.events))
	events = append(events, prevEvents...)
	events = append(events, cs.events...)
	m.state.Events[id] = events
	for _, e := range cs.events {
		if e.Sequence > m.maxSeq {
			m.maxSeq = e.Sequence
		}
	}
	for _, r := range cs.access {
		prevAccess[r.ID] = m.state.AccessRequests[r.ID]
		m.state.AccessRequests[r.ID] = r
	}
	for _, r := range cs.analyses {
		prevAnalyses[r.ID] = m.state.AnalysisRecords[r.ID]
		m.state.AnalysisRecords[r.ID] = r
	}
	for _, r := range cs.reviews {
		prevReviews[r.ID] = m.state.JudicialReviews[r.ID]
		m.state.JudicialReviews[r.ID] = r
	}

	return func() {
		if hadEvidence {
			m.state.Evidence[id] = prevEvidence
		} else {
			delete(m.state.Evidence, id)
		}
		if prevEvents == nil {
			delete(m.state.Events, id)
		} else {
			m.state.Events[id] = prevEvents
		}
		m.maxSeq = prevMax
		for k, v := range prevAccess {
			if v == nil {
				delete(m.state.AccessRequests, k)
			} else {
				m.state.AccessRequests[k] = v
			}
		}
		for k, v := range prevAnalyses {
			if v == nil {
				delete(m.state.AnalysisRecords, k)
			} else {
				m.state.AnalysisRecords[k] = v
			}
		}
		for k, v := range prevReviews {
			if v == nil {
				delete(m.state.JudicialReviews, k)
			} else {
				m.state.JudicialReviews[k] = v
			}
		}
	}
}

func (m *MemoryStore) loadAccessRequest(id string) (*contracts.AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.state.AccessRequests[id]
	if !ok {
		return nil, fmt.Errorf("access request %s: %w", id, ErrNotFound)
	}
	return cloneAccess(r), nil
}

func (m *MemoryStore) loadAnalysisRecord(id string) (*contracts.AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.state.AnalysisRecords[id]
	if !ok {
		return nil, fmt.Errorf("analysis record %s: %w", id, ErrNotFound)
	}
	return cloneAnalysis(r), nil
}

func (m *MemoryStore) loadJudicialReview(id string) (*contracts.JudicialReview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.state.JudicialReviews[id]
	if !ok {
		return nil, fmt.Errorf("judicial review %s: %w", id, ErrNotFound)
	}
	return cloneReview(r), nil
}

func (m *MemoryStore) GetEvidence(ctx context.Context, id string) (*contracts.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evidence(id)
}

func (m *MemoryStore) ListEvidence(ctx context.Context, f Filter) ([]*contracts.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*contracts.Evidence, 0)
	for _, ev := range m.state.Evidence {
		if f.match(ev) {
			out = append(out, ev.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) History(ctx context.Context, evidenceID string) ([]*contracts.CustodyEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history(evidenceID), nil
}

func (m *MemoryStore) AccessRequests(ctx context.Context, evidenceID string) ([]*contracts.AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessRequests(evidenceID), nil
}

func (m *MemoryStore) AnalysisRecords(ctx context.Context, evidenceID string) ([]*contracts.AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.analysisRecords(evidenceID), nil
}

func (m *MemoryStore) JudicialReviews(ctx context.Context, evidenceID string) ([]*contracts.JudicialReview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.judicialReviews(evidenceID), nil
}

// Dossier reads everything under a single read lock.
func (m *MemoryStore) Dossier(ctx context.Context, evidenceID string) (*Dossier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, err := m.evidence(evidenceID)
	if err != nil {
		return nil, err
	}
	return &Dossier{
		Evidence:       ev,
		Events:         m.history(evidenceID),
		AccessRequests: m.accessRequests(evidenceID),
		Analyses:       m.analysisRecords(evidenceID),
		Reviews:        m.judicialReviews(evidenceID),
	}, nil
}

// The helpers below expect m.mu to be held.

func (m *MemoryStore) evidence(id string) (*contracts.Evidence, error) {
	ev, ok := m.state.Evidence[id]
	if !ok {
		return nil, fmt.Errorf("evidence %s: %w", id, ErrNotFound)
	}
	return ev.Clone(), nil
}

func (m *MemoryStore) history(evidenceID string) []*contracts.CustodyEvent {
	src := m.state.Events[evidenceID]
	out := make([]*contracts.CustodyEvent, 0, len(src))
	for _, e := range src {
		out = append(out, e.Clone())
	}
	SortEvents(out)
	return out
}

func (m *MemoryStore) accessRequests(evidenceID string) []*contracts.AccessRequest {
	out := make([]*contracts.AccessRequest, 0)
	for _, r := range m.state.AccessRequests {
		if r.EvidenceID == evidenceID {
			out = append(out, cloneAccess(r))
		}
	}
	sortAccess(out)
	return out
}

func (m *MemoryStore) analysisRecords(evidenceID string) []*contracts.AnalysisRecord {
	out := make([]*contracts.AnalysisRecord, 0)
	for _, r := range m.state.AnalysisRecords {
		if r.EvidenceID == evidenceID {
			out = append(out, cloneAnalysis(r))
		}
	}
	sortAnalyses(out)
	return out
}

func (m *MemoryStore) judicialReviews(evidenceID string) []*contracts.JudicialReview {
	out := make([]*contracts.JudicialReview, 0)
	for _, r := range m.state.JudicialReviews {
		if r.EvidenceID == evidenceID {
			out = append(out, cloneReview(r))
		}
	}
	sortReviews(out)
	return out
}

func (m *MemoryStore) MaxSequence(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxSeq, nil
}

func (m *MemoryStore) Close() error { return nil }

func sortAccess(rs []*contracts.AccessRequest) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].RequestedAt.Equal(rs[j].RequestedAt) {
			return rs[i].RequestedAt.Before(rs[j].RequestedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func sortAnalyses(rs []*contracts.AnalysisRecord) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CompletedAt.Equal(rs[j].CompletedAt) {
			return rs[i].CompletedAt.Before(rs[j].CompletedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func sortReviews(rs []*contracts.JudicialReview) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].SubmittedAt.Equal(rs[j].SubmittedAt) {
			return rs[i].SubmittedAt.Before(rs[j].SubmittedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
