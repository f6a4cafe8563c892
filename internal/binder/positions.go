package binder

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// PositionMap is the sparse mapping from binder-global slot position to the
// card placed there. A missing key is an empty slot. The identity index makes
// the no-duplicate invariant a property of every mutator.
//
// The zero value is an empty map ready to use.
type PositionMap struct {
	slots map[int]CardRef
	index map[Identity]int
}

// NewPositionMap returns an empty position map.
func NewPositionMap() *PositionMap {
	return &PositionMap{
		slots: make(map[int]CardRef),
		index: make(map[Identity]int),
	}
}

func (m *PositionMap) init() {
	if m.slots == nil {
		m.slots = make(map[int]CardRef)
		m.index = make(map[Identity]int)
	}
}

// Len returns the number of occupied slots.
func (m *PositionMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.slots)
}

// Get returns the card at position.
func (m *PositionMap) Get(position int) (CardRef, bool) {
	if m == nil {
		return CardRef{}, false
	}
	ref, ok := m.slots[position]
	return ref, ok
}

// Find returns the position holding the identity.
func (m *PositionMap) Find(id Identity) (int, bool) {
	if m == nil {
		return 0, false
	}
	pos, ok := m.index[id]
	return pos, ok
}

// Has reports whether the identity is anywhere in the map.
func (m *PositionMap) Has(id Identity) bool {
	_, ok := m.Find(id)
	return ok
}

// Set places ref at position, overwriting whatever was there.
// It fails with ErrDuplicateEntry if the identity already lives at another
// position and with ErrOutOfRange for negative positions. Range checks
// against the binder's page capacity are the caller's job.
func (m *PositionMap) Set(position int, ref CardRef) error {
	if position < 0 {
		return fmt.Errorf("%w: %d", ErrOutOfRange, position)
	}
	if err := ref.Validate(); err != nil {
		return err
	}
	m.init()

	id := ref.Identity()
	if existing, ok := m.index[id]; ok && existing != position {
		return fmt.Errorf("%w: %s at position %d", ErrDuplicateEntry, id, existing)
	}

	if old, ok := m.slots[position]; ok {
		delete(m.index, old.Identity())
	}
	m.slots[position] = ref
	m.index[id] = position
	return nil
}

// Remove clears a slot and returns what was there. Removing an empty slot is a no-op.
func (m *PositionMap) Remove(position int) (CardRef, bool) {
	if m == nil {
		return CardRef{}, false
	}
	ref, ok := m.slots[position]
	if !ok {
		return CardRef{}, false
	}
	delete(m.slots, position)
	delete(m.index, ref.Identity())
	return ref, true
}

// Positions returns the occupied positions in ascending order.
func (m *PositionMap) Positions() []int {
	if m == nil {
		return nil
	}
	positions := make([]int, 0, len(m.slots))
	for pos := range m.slots {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}

// Entries returns the occupied slots in ascending position order.
func (m *PositionMap) Entries() []Slot {
	positions := m.Positions()
	entries := make([]Slot, 0, len(positions))
	for _, pos := range positions {
		ref := m.slots[pos]
		entries = append(entries, Slot{Position: pos, Card: &ref})
	}
	return entries
}

// MaxPosition returns the highest occupied position, or -1 when empty.
func (m *PositionMap) MaxPosition() int {
	highest := -1
	if m == nil {
		return highest
	}
	for pos := range m.slots {
		if pos > highest {
			highest = pos
		}
	}
	return highest
}

// Identities returns the set of identities present.
func (m *PositionMap) Identities() map[Identity]struct{} {
	out := make(map[Identity]struct{}, m.Len())
	if m == nil {
		return out
	}
	for id := range m.index {
		out[id] = struct{}{}
	}
	return out
}

// Clone returns an independent copy.
func (m *PositionMap) Clone() *PositionMap {
	c := NewPositionMap()
	if m == nil {
		return c
	}
	for pos, ref := range m.slots {
		c.slots[pos] = ref
	}
	for id, pos := range m.index {
		c.index[id] = pos
	}
	return c
}

// Equal reports whether both maps hold the same cards at the same positions.
func (m *PositionMap) Equal(other *PositionMap) bool {
	if m.Len() != other.Len() {
		return false
	}
	if m == nil || other == nil {
		return true
	}
	for pos, ref := range m.slots {
		o, ok := other.slots[pos]
		if !ok || o.Identity() != ref.Identity() || !o.AddedAt.Equal(ref.AddedAt) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the map as an object keyed by decimal positions.
func (m *PositionMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]CardRef, m.Len())
	if m != nil {
		for pos, ref := range m.slots {
			out[strconv.Itoa(pos)] = ref
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an object keyed by decimal positions, rejecting
// non-numeric keys and duplicate identities.
func (m *PositionMap) UnmarshalJSON(data []byte) error {
	var raw map[string]CardRef
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	decoded := NewPositionMap()
	for key, ref := range raw {
		pos, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("position key %q is not numeric", key)
		}
		if err := decoded.Set(pos, ref); err != nil {
			return fmt.Errorf("position %d: %w", pos, err)
		}
	}
	*m = *decoded
	return nil
}

// Slot is one grid cell: a position and the card there, if any.
type Slot struct {
	Position int      `json:"position"`
	Card     *CardRef `json:"card,omitempty"`
}

// Empty reports whether no card occupies the slot.
func (s Slot) Empty() bool {
	return s.Card == nil
}
