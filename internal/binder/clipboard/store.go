package clipboard

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/peterbourgon/diskv/v3"
)

// Store persists clipboards in local-only scratch storage, keyed by binder id.
type Store interface {
	Load(binderID string) ([]Item, error)
	Save(binderID string, items []Item) error
	Delete(binderID string) error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DiskStore keeps one JSON file per binder under a scratch directory.
type DiskStore struct {
	d *diskv.Diskv
}

// NewDiskStore opens (creating if needed) a scratch store rooted at dir.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clipboard directory: %w", err)
	}
	return &DiskStore{d: diskv.New(diskv.Options{
		BasePath:          dir,
		AdvancedTransform: keyToPath,
		InverseTransform:  pathToKey,
		CacheSizeMax:      64 * 1024,
	})}, nil
}

func keyToPath(key string) *diskv.PathKey {
	return &diskv.PathKey{FileName: key + ".json"}
}

func pathToKey(pk *diskv.PathKey) string {
	return strings.TrimSuffix(pk.FileName, ".json")
}

// Load returns the stored items for a binder, or nil when none are stored.
func (s *DiskStore) Load(binderID string) ([]Item, error) {
	if !validKey.MatchString(binderID) {
		return nil, fmt.Errorf("invalid binder id %q", binderID)
	}
	if !s.d.Has(binderID) {
		return nil, nil
	}
	data, err := s.d.Read(binderID)
	if err != nil {
		return nil, fmt.Errorf("failed to read clipboard %s: %w", binderID, err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode clipboard %s: %w", binderID, err)
	}
	return items, nil
}

// Save replaces the stored items. Saving an empty clipboard erases the key.
func (s *DiskStore) Save(binderID string, items []Item) error {
	if !validKey.MatchString(binderID) {
		return fmt.Errorf("invalid binder id %q", binderID)
	}
	if len(items) == 0 {
		return s.Delete(binderID)
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode clipboard %s: %w", binderID, err)
	}
	if err := s.d.Write(binderID, data); err != nil {
		return fmt.Errorf("failed to write clipboard %s: %w", binderID, err)
	}
	return nil
}

// Delete erases a binder's clipboard. Missing keys are not an error.
func (s *DiskStore) Delete(binderID string) error {
	if !s.d.Has(binderID) {
		return nil
	}
	if err := s.d.Erase(binderID); err != nil {
		return fmt.Errorf("failed to erase clipboard %s: %w", binderID, err)
	}
	return nil
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string][]Item
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]Item)}
}

func (m *MemoryStore) Load(binderID string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Item(nil), m.items[binderID]...), nil
}

func (m *MemoryStore) Save(binderID string, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(items) == 0 {
		delete(m.items, binderID)
		return nil
	}
	m.items[binderID] = append([]Item(nil), items...)
	return nil
}

func (m *MemoryStore) Delete(binderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, binderID)
	return nil
}
