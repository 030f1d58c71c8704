package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
)

// FileStore is a MemoryStore persisted to a local JSON file after every
// commit (for simple durability in single-process deployments).
type FileStore struct {
	*MemoryStore
	path string
}

// NewFileStore opens path, loading existing state if the file exists.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{MemoryStore: NewMemoryStore(), path: path}
	if err := fs.load(); err != nil {
		return nil, err
	}
	fs.persist = fs.save
	return fs, nil
}

func (f *FileStore) load() error {
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return nil // Start empty
	}

	bytes, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}

	state := newMemoryState()
	if err := json.Unmarshal(bytes, &state); err != nil {
		return fmt.Errorf("decode %s: %w", f.path, err)
	}
	ensureMaps(&state)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	for _, events := range state.Events {
		for _, e := range events {
			if e.Sequence > f.maxSeq {
				f.maxSeq = e.Sequence
			}
		}
	}
	return nil
}

// save writes the state to a temporary file and renames it into place.
func (f *FileStore) save(state *memoryState) error {
	bytes, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(bytes); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func ensureMaps(s *memoryState) {
	if s.Evidence == nil {
		s.Evidence = make(map[string]*contracts.Evidence)
	}
	if s.Events == nil {
		s.Events = make(map[string][]*contracts.CustodyEvent)
	}
	if s.AccessRequests == nil {
		s.AccessRequests = make(map[string]*contracts.AccessRequest)
	}
	if s.AnalysisRecords == nil {
		s.AnalysisRecords = make(map[string]*contracts.AnalysisRecord)
	}
	if s.JudicialReviews == nil {
		s.JudicialReviews = make(map[string]*contracts.JudicialReview)
	}
}
