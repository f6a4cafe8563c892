package remote

import (
	"context"
	"sync"
	"time"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string]*binder.Binder
	patches int
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*binder.Binder),
		now:  time.Now,
	}
}

// Put stores b as is, version included.
func (m *MemoryStore) Put(b *binder.Binder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[b.ID] = b.Clone()
}

// Fetch returns a copy of the stored binder.
func (m *MemoryStore) Fetch(ctx context.Context, id string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return newSnapshot(b), nil
}

// Patch applies diff when the stored version matches.
func (m *MemoryStore) Patch(ctx context.Context, id string, diff binder.Diff, expectedVersion int64) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := applyPatch(id, m.docs[id], diff, expectedVersion, m.now())
	if err != nil {
		return nil, err
	}
	m.docs[id] = next
	m.patches++
	return newSnapshot(next), nil
}

// Delete removes the stored binder.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

// Patches returns how many patches have been applied.
func (m *MemoryStore) Patches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patches
}
