package ledger

import (
	"fmt"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
)

// auxLoader reads committed auxiliary records on behalf of a transaction.
type auxLoader interface {
	loadAccessRequest(id string) (*contracts.AccessRequest, error)
	loadAnalysisRecord(id string) (*contracts.AnalysisRecord, error)
	loadJudicialReview(id string) (*contracts.JudicialReview, error)
}

// changeSet is everything one commit writes.
type changeSet struct {
	evidenceID string
	created    bool
	// expected is the snapshot read at transaction start; nil when creating.
	expected *contracts.Evidence
	snapshot *contracts.Evidence
	events   []*contracts.CustodyEvent
	access   []*contracts.AccessRequest
	analyses []*contracts.AnalysisRecord
	reviews  []*contracts.JudicialReview
}

func (c *changeSet) empty() bool {
	return c.snapshot == nil && len(c.events) == 0 &&
		len(c.access) == 0 && len(c.analyses) == 0 && len(c.reviews) == 0
}

// txState stages one transaction's writes. Backends supply the loaded
// snapshot and an auxLoader, then apply the resulting changeSet.
type txState struct {
	commit     Commit
	evidenceID string
	loaded     *contracts.Evidence
	load       auxLoader

	staged  *contracts.Evidence
	created bool
	events  []*contracts.CustodyEvent
	head    string

	access      map[string]*contracts.AccessRequest
	analyses    map[string]*contracts.AnalysisRecord
	reviews     map[string]*contracts.JudicialReview
	accessOrder []string
	anOrder     []string
	revOrder    []string
}

func newTxState(c Commit, evidenceID string, loaded *contracts.Evidence, load auxLoader) *txState {
	head := GenesisHash
	if loaded != nil && loaded.HeadHash != "" {
		head = loaded.HeadHash
	}
	return &txState{
		commit:     c,
		evidenceID: evidenceID,
		loaded:     loaded,
		load:       load,
		head:       head,
		access:     make(map[string]*contracts.AccessRequest),
		analyses:   make(map[string]*contracts.AnalysisRecord),
		reviews:    make(map[string]*contracts.JudicialReview),
	}
}

// checkCommit rejects a commit positioned at or before the item's head,
// or timestamped before the item's last commit.
func (t *txState) checkCommit() error {
	if t.loaded == nil {
		return nil
	}
	if t.commit.Sequence <= t.loaded.HeadSequence {
		return fmt.Errorf("%w: commit %d is not after head %d of %s", ErrConflict, t.commit.Sequence, t.loaded.HeadSequence, t.evidenceID)
	}
	if t.commit.Timestamp.Before(t.loaded.UpdatedAt) {
		return fmt.Errorf("%w: commit %d at %s predates head of %s at %s", ErrConflict,
			t.commit.Sequence, t.commit.Timestamp.Format(time.RFC3339Nano), t.evidenceID, t.loaded.UpdatedAt.Format(time.RFC3339Nano))
	}
	return nil
}

func (t *txState) current() *contracts.Evidence {
	if t.staged != nil {
		return t.staged
	}
	return t.loaded
}

func (t *txState) Evidence() (*contracts.Evidence, error) {
	cur := t.current()
	if cur == nil {
		return nil, fmt.Errorf("evidence %s: %w", t.evidenceID, ErrNotFound)
	}
	return cur.Clone(), nil
}

func (t *txState) Create(ev *contracts.Evidence) error {
	if ev.ID != t.evidenceID {
		return fmt.Errorf("create %s inside transaction for %s", ev.ID, t.evidenceID)
	}
	if t.current() != nil {
		return fmt.Errorf("evidence %s: %w", ev.ID, ErrDuplicate)
	}
	t.staged = ev.Clone()
	t.created = true
	return nil
}

func (t *txState) Put(ev *contracts.Evidence) error {
	if ev.ID != t.evidenceID {
		return fmt.Errorf("put %s inside transaction for %s", ev.ID, t.evidenceID)
	}
	if t.current() == nil {
		return fmt.Errorf("evidence %s: %w", ev.ID, ErrNotFound)
	}
	t.staged = ev.Clone()
	return nil
}

func (t *txState) AppendEvent(e *contracts.CustodyEvent) (*contracts.CustodyEvent, error) {
	if t.current() == nil {
		return nil, fmt.Errorf("evidence %s: %w", t.evidenceID, ErrNotFound)
	}
	if e.EvidenceID != "" && e.EvidenceID != t.evidenceID {
		return nil, fmt.Errorf("append event for %s inside transaction for %s", e.EvidenceID, t.evidenceID)
	}

	sealed := e.Clone()
	sealed.EvidenceID = t.evidenceID
	sealed.Index = len(t.events)
	sealed.Sequence = t.commit.Sequence
	sealed.TxID = t.commit.TxID
	sealed.Timestamp = t.commit.Timestamp
	sealed.ID = EventID(t.evidenceID, t.commit.Sequence, sealed.Index)
	sealed.PrevHash = t.head

	h, err := HashEvent(sealed)
	if err != nil {
		return nil, fmt.Errorf("seal event: %w", err)
	}
	sealed.Hash = h
	t.head = h
	t.events = append(t.events, sealed)
	return sealed.Clone(), nil
}

func (t *txState) AccessRequest(id string) (*contracts.AccessRequest, error) {
	if r, ok := t.access[id]; ok {
		return cloneAccess(r), nil
	}
	r, err := t.load.loadAccessRequest(id)
	if err != nil {
		return nil, err
	}
	if r.EvidenceID != t.evidenceID {
		return nil, fmt.Errorf("access request %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (t *txState) PutAccessRequest(r *contracts.AccessRequest) error {
	if r.EvidenceID != t.evidenceID {
		return fmt.Errorf("access request %s belongs to %s", r.ID, r.EvidenceID)
	}
	if _, ok := t.access[r.ID]; !ok {
		t.accessOrder = append(t.accessOrder, r.ID)
	}
	t.access[r.ID] = cloneAccess(r)
	return nil
}

func (t *txState) AnalysisRecord(id string) (*contracts.AnalysisRecord, error) {
	if r, ok := t.analyses[id]; ok {
		return cloneAnalysis(r), nil
	}
	r, err := t.load.loadAnalysisRecord(id)
	if err != nil {
		return nil, err
	}
	if r.EvidenceID != t.evidenceID {
		return nil, fmt.Errorf("analysis record %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (t *txState) PutAnalysisRecord(r *contracts.AnalysisRecord) error {
	if r.EvidenceID != t.evidenceID {
		return fmt.Errorf("analysis record %s belongs to %s", r.ID, r.EvidenceID)
	}
	if _, ok := t.analyses[r.ID]; !ok {
		t.anOrder = append(t.anOrder, r.ID)
	}
	t.analyses[r.ID] = cloneAnalysis(r)
	return nil
}

func (t *txState) JudicialReview(id string) (*contracts.JudicialReview, error) {
	if r, ok := t.reviews[id]; ok {
		return cloneReview(r), nil
	}
	r, err := t.load.loadJudicialReview(id)
	if err != nil {
		return nil, err
	}
	if r.EvidenceID != t.evidenceID {
		return nil, fmt.Errorf("judicial review %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (t *txState) PutJudicialReview(r *contracts.JudicialReview) error {
	if r.EvidenceID != t.evidenceID {
		return fmt.Errorf("judicial review %s belongs to %s", r.ID, r.EvidenceID)
	}
	if _, ok := t.reviews[r.ID]; !ok {
		t.revOrder = append(t.revOrder, r.ID)
	}
	t.reviews[r.ID] = cloneReview(r)
	return nil
}

// finish turns staged writes into a changeSet. Any write requires at least
// one event, and the snapshot head always advances to the last event.
func (t *txState) finish() (*changeSet, error) {
	cs := &changeSet{
		evidenceID: t.evidenceID,
		created:    t.created,
		expected:   t.loaded,
		events:     t.events,
	}
	for _, id := range t.accessOrder {
		cs.access = append(cs.access, t.access[id])
	}
	for _, id := range t.anOrder {
		cs.analyses = append(cs.analyses, t.analyses[id])
	}
	for _, id := range t.revOrder {
		cs.reviews = append(cs.reviews, t.reviews[id])
	}

	if len(t.events) == 0 {
		if t.staged != nil || len(cs.access)+len(cs.analyses)+len(cs.reviews) > 0 {
			return nil, fmt.Errorf("evidence %s: %w", t.evidenceID, ErrNoEvent)
		}
		return cs, nil
	}

	snap := t.current().Clone()
	last := t.events[len(t.events)-1]
	snap.HeadSequence = last.Sequence
	snap.HeadIndex = last.Index
	snap.HeadHash = last.Hash
	snap.UpdatedAt = t.commit.Timestamp
	cs.snapshot = snap
	return cs, nil
}

func cloneAnalysis(r *contracts.AnalysisRecord) *contracts.AnalysisRecord {
	c := *r
	c.Artifacts = append([]string(nil), r.Artifacts...)
	if r.VerifiedAt != nil {
		v := *r.VerifiedAt
		c.VerifiedAt = &v
	}
	return &c
}

func cloneAccess(r *contracts.AccessRequest) *contracts.AccessRequest {
	c := *r
	if r.DecidedAt != nil {
		v := *r.DecidedAt
		c.DecidedAt = &v
	}
	if r.ExpiresAt != nil {
		v := *r.ExpiresAt
		c.ExpiresAt = &v
	}
	return &c
}

func cloneReview(r *contracts.JudicialReview) *contracts.JudicialReview {
	c := *r
	if r.DecidedAt != nil {
		v := *r.DecidedAt
		c.DecidedAt = &v
	}
	return &c
}
