package artifacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/audit"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
)

// MaxPackSize bounds a single report pack.
const MaxPackSize = 10 * 1024 * 1024

// Registry stores and retrieves audit report packs. A pack is verified
// before it is stored and again whenever it is read back.
type Registry struct {
	store Store
}

// NewRegistry wraps a blob store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// PutPack verifies pack and stores it, returning its content hash.
func (r *Registry) PutPack(ctx context.Context, pack []byte) (string, *audit.Manifest, error) {
	if len(pack) == 0 {
		return "", nil, errors.New("artifacts: empty pack")
	}
	if len(pack) > MaxPackSize {
		return "", nil, fmt.Errorf("artifacts: pack exceeds limit of %d bytes", MaxPackSize)
	}
	_, manifest, err := audit.ReadPack(pack)
	if err != nil {
		return "", nil, err
	}
	hash, err := r.store.Store(ctx, pack)
	if err != nil {
		return "", nil, fmt.Errorf("artifacts: store pack: %w", err)
	}
	return hash, manifest, nil
}

// GetPack loads and verifies the pack stored at hash.
func (r *Registry) GetPack(ctx context.Context, hash string) (*contracts.AuditReport, *audit.Manifest, error) {
	data, err := r.store.Get(ctx, hash)
	if err != nil {
		return nil, nil, err
	}
	if got := ContentHash(data); got != hash {
		return nil, nil, fmt.Errorf("%w: blob %s hashes to %s", audit.ErrPackCorrupt, hash, got)
	}
	return audit.ReadPack(data)
}
