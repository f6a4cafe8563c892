package sorting

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// TypeOrder is the user-customizable ranking of card types used by the type
// strategy. Types missing from the table sort after every listed type.
type TypeOrder []string

// DefaultTypeOrder follows the energy-type order printed on set checklists,
// with trainers and energy at the end.
var DefaultTypeOrder = TypeOrder{
	"Grass", "Fire", "Water", "Lightning", "Psychic", "Fighting",
	"Darkness", "Metal", "Fairy", "Dragon", "Colorless",
	"Trainer", "Energy",
}

// Rank returns the index of t in the table, case-insensitively.
func (o TypeOrder) Rank(t string) (int, bool) {
	for i, name := range o {
		if strings.EqualFold(name, t) {
			return i, true
		}
	}
	return 0, false
}

// Compare orders two types by the table; unlisted types go last and compare
// by name among themselves.
func (o TypeOrder) Compare(a, b string) int {
	ra, oka := o.Rank(a)
	rb, okb := o.Rank(b)
	switch {
	case oka && okb:
		return ra - rb
	case oka:
		return -1
	case okb:
		return 1
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// Validate rejects empty and repeated entries.
func (o TypeOrder) Validate() error {
	seen := make(map[string]bool, len(o))
	for _, name := range o {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return fmt.Errorf("type order contains an empty type")
		}
		if seen[key] {
			return fmt.Errorf("type %q is listed twice", name)
		}
		seen[key] = true
	}
	return nil
}

// Clone returns an independent copy.
func (o TypeOrder) Clone() TypeOrder {
	return append(TypeOrder(nil), o...)
}

// TypeOrderKey is the settings key the table is persisted under.
const TypeOrderKey = "sort.typeOrder"

// SettingsStore is the persistence a TypeOrderStore needs.
// repository.SettingsRepository satisfies it.
type SettingsStore interface {
	GetTyped(ctx context.Context, key string, target interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}

// TypeOrderStore owns the process-wide type-order table. All binders read
// it; it only changes through Set or Reset. There is no versioning: the last
// writer wins.
type TypeOrderStore struct {
	mu       sync.RWMutex
	order    TypeOrder
	settings SettingsStore
}

// NewTypeOrderStore creates a store holding the default table. settings may
// be nil for an in-memory store.
func NewTypeOrderStore(settings SettingsStore) *TypeOrderStore {
	return &TypeOrderStore{order: DefaultTypeOrder.Clone(), settings: settings}
}

// Load reads the persisted table. A missing or unreadable entry keeps the
// default table and is not an error.
func (s *TypeOrderStore) Load(ctx context.Context) error {
	if s.settings == nil {
		return nil
	}
	var order TypeOrder
	if err := s.settings.GetTyped(ctx, TypeOrderKey, &order); err != nil {
		return nil
	}
	if err := order.Validate(); err != nil {
		return fmt.Errorf("stored type order is invalid: %w", err)
	}
	s.mu.Lock()
	s.order = order
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current table.
func (s *TypeOrderStore) Get() TypeOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Clone()
}

// Set replaces and persists the table.
func (s *TypeOrderStore) Set(ctx context.Context, order TypeOrder) error {
	if err := order.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.order = order.Clone()
	s.mu.Unlock()

	if s.settings == nil {
		return nil
	}
	if err := s.settings.Set(ctx, TypeOrderKey, order); err != nil {
		return fmt.Errorf("failed to save type order: %w", err)
	}
	return nil
}

// Reset restores the default table.
func (s *TypeOrderStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.order = DefaultTypeOrder.Clone()
	s.mu.Unlock()

	if s.settings == nil {
		return nil
	}
	if err := s.settings.Delete(ctx, TypeOrderKey); err != nil {
		return fmt.Errorf("failed to reset type order: %w", err)
	}
	return nil
}
