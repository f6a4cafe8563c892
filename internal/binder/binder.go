package binder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SortStrategy names an ordering the sort engine understands.
type SortStrategy string

const (
	SortNumber SortStrategy = "number"
	SortName   SortStrategy = "name"
	SortRarity SortStrategy = "rarity"
	SortType   SortStrategy = "type"
	SortCustom SortStrategy = "custom"
)

// Valid reports whether the strategy is known.
func (s SortStrategy) Valid() bool {
	switch s {
	case SortNumber, SortName, SortRarity, SortType, SortCustom:
		return true
	}
	return false
}

// SortDirection is ascending or descending.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// Valid reports whether the direction is known.
func (d SortDirection) Valid() bool {
	return d == Ascending || d == Descending
}

// Metadata is descriptive, user-editable information about a binder.
type Metadata struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Settings controls layout and ordering.
//
// PageCount counts card pages; the cover is not included. PageOrder maps a
// logical page index to a page number and has PageCount+1 entries, with
// PageOrder[0] pinned to the cover (0).
type Settings struct {
	GridSize      GridConfig    `json:"gridSize"`
	PageCount     int           `json:"pageCount"`
	PageOrder     []int         `json:"pageOrder"`
	SortBy        SortStrategy  `json:"sortBy"`
	SortDirection SortDirection `json:"sortDirection"`
	AutoSort      bool          `json:"autoSort"`
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	c.PageOrder = append([]int(nil), s.PageOrder...)
	return c
}

// Capacity is the number of slots across all card pages.
func (s Settings) Capacity() int {
	return s.PageCount * s.GridSize.Total
}

// Binder is one user's card binder.
type Binder struct {
	ID         string       `json:"id"`
	Metadata   Metadata     `json:"metadata"`
	Settings   Settings     `json:"settings"`
	Cards      *PositionMap `json:"cards"`
	Version    int64        `json:"version"`
	ModifiedAt time.Time    `json:"modifiedAt"`
}

// New creates an empty binder: the cover plus one blank card page.
func New(name string, grid GridConfig) *Binder {
	now := time.Now().UTC()
	return &Binder{
		ID: uuid.NewString(),
		Metadata: Metadata{
			Name:      name,
			CreatedAt: now,
		},
		Settings: Settings{
			GridSize:      grid,
			PageCount:     1,
			PageOrder:     IdentityPageOrder(1),
			SortBy:        SortCustom,
			SortDirection: Ascending,
		},
		Cards:      NewPositionMap(),
		ModifiedAt: now,
	}
}

// Clone returns a deep copy.
func (b *Binder) Clone() *Binder {
	c := *b
	c.Settings = b.Settings.Clone()
	c.Cards = b.Cards.Clone()
	return &c
}

// State is the part of a binder that history snapshots and restores.
type State struct {
	Cards    *PositionMap `json:"cards"`
	Settings Settings     `json:"settings"`
}

// Snapshot captures the current cards and settings.
func (b *Binder) Snapshot() State {
	return State{Cards: b.Cards.Clone(), Settings: b.Settings.Clone()}
}

// Restore replaces cards and settings with a snapshot.
func (b *Binder) Restore(s State) {
	b.Cards = s.Cards.Clone()
	b.Settings = s.Settings.Clone()
}

// Touch marks the binder as modified now.
func (b *Binder) Touch() {
	b.ModifiedAt = time.Now().UTC()
}

// PageOf returns the 1-based page number holding position.
func (b *Binder) PageOf(position int) int {
	return position/b.Settings.GridSize.Total + 1
}

// PageRange returns the half-open position range [start, end) of a page number.
func (b *Binder) PageRange(page int) (start, end int) {
	total := b.Settings.GridSize.Total
	return (page - 1) * total, page * total
}

// Limits caps how large a binder may grow. Zero means unlimited.
type Limits struct {
	MaxPages int `json:"maxPages"`
	MaxCards int `json:"maxCards"`
}

// Usage summarizes a binder for display.
type Usage struct {
	CardCount int    `json:"cardCount"`
	PageCount int    `json:"pageCount"`
	Limits    Limits `json:"limits"`
}

// Usage reports counts against limits.
func (b *Binder) Usage(limits Limits) Usage {
	return Usage{
		CardCount: b.Cards.Len(),
		PageCount: b.Settings.PageCount,
		Limits:    limits,
	}
}

// RequiredPages returns the minimum page count that keeps every occupied
// position on a card page. It is never below one.
func RequiredPages(cards *PositionMap, grid GridConfig) int {
	highest := cards.MaxPosition()
	if highest < 0 {
		return 1
	}
	return highest/grid.Total + 1
}

// IdentityPageOrder returns [0, 1, ..., pageCount].
func IdentityPageOrder(pageCount int) []int {
	order := make([]int, pageCount+1)
	for i := range order {
		order[i] = i
	}
	return order
}

// Validate checks structural integrity of the whole binder.
func (b *Binder) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("binder id is empty")
	}
	if _, err := LookupGrid(b.Settings.GridSize.Name); err != nil {
		return err
	}
	if b.Settings.PageCount < 1 {
		return fmt.Errorf("page count %d is below one", b.Settings.PageCount)
	}
	if err := ValidatePageOrder(b.Settings.PageOrder, b.Settings.PageCount); err != nil {
		return err
	}
	if !b.Settings.SortBy.Valid() {
		return fmt.Errorf("unknown sort strategy %q", b.Settings.SortBy)
	}
	if !b.Settings.SortDirection.Valid() {
		return fmt.Errorf("unknown sort direction %q", b.Settings.SortDirection)
	}
	if b.Cards == nil {
		return fmt.Errorf("cards are missing")
	}
	return nil
}

// ValidatePageOrder checks that order pins the cover and is a permutation of
// 1..pageCount after it.
func ValidatePageOrder(order []int, pageCount int) error {
	if len(order) != pageCount+1 {
		return fmt.Errorf("page order has %d entries, want %d", len(order), pageCount+1)
	}
	if order[0] != 0 {
		return fmt.Errorf("page order must start with the cover")
	}
	seen := make(map[int]bool, len(order))
	for _, page := range order[1:] {
		if page < 1 || page > pageCount || seen[page] {
			return fmt.Errorf("page order %v is not a permutation of 1..%d", order[1:], pageCount)
		}
		seen[page] = true
	}
	return nil
}
