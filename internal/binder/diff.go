package binder

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// Diff is the change set between two versions of one binder. Set holds
// positions whose card is new or different, Cleared holds positions that
// became empty. Settings and Metadata are present only when they changed.
type Diff struct {
	Set      map[int]CardRef `json:"set,omitempty"`
	Cleared  []int           `json:"cleared,omitempty"`
	Settings *Settings       `json:"settings,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// Empty reports whether the diff changes nothing.
func (d Diff) Empty() bool {
	return len(d.Set) == 0 && len(d.Cleared) == 0 && d.Settings == nil && d.Metadata == nil
}

// Positions returns every position the diff touches, ascending.
func (d Diff) Positions() []int {
	positions := append(lo.Keys(d.Set), d.Cleared...)
	slices.Sort(positions)
	return slices.Compact(positions)
}

// ComputeDiff returns what changed from base to current. A nil base yields
// the full card map, which is what the first push of a binder carries.
func ComputeDiff(base, current *Binder) Diff {
	d := Diff{Set: make(map[int]CardRef)}
	if base == nil {
		for _, slot := range current.Cards.Entries() {
			d.Set[slot.Position] = *slot.Card
		}
		settings := current.Settings.Clone()
		meta := current.Metadata
		d.Settings = &settings
		d.Metadata = &meta
		return d
	}

	for _, slot := range current.Cards.Entries() {
		old, ok := base.Cards.Get(slot.Position)
		if !ok || old.Identity() != slot.Card.Identity() {
			d.Set[slot.Position] = *slot.Card
		}
	}
	for _, pos := range base.Cards.Positions() {
		if _, ok := current.Cards.Get(pos); !ok {
			d.Cleared = append(d.Cleared, pos)
		}
	}
	if !SettingsEqual(base.Settings, current.Settings) {
		settings := current.Settings.Clone()
		d.Settings = &settings
	}
	if !base.Metadata.CreatedAt.Equal(current.Metadata.CreatedAt) ||
		base.Metadata.Name != current.Metadata.Name ||
		base.Metadata.Description != current.Metadata.Description {
		meta := current.Metadata
		d.Metadata = &meta
	}
	return d
}

// ApplyDiff applies d on top of b. Every touched position is emptied first and
// then the new cards are placed, so moves inside one diff never collide with
// themselves. A card whose identity still sits at an untouched position fails
// with ErrDuplicateEntry and nothing is applied.
func ApplyDiff(b *Binder, d Diff) (*Binder, error) {
	next := b.Clone()
	for _, pos := range d.Positions() {
		next.Cards.Remove(pos)
	}

	positions := lo.Keys(d.Set)
	slices.Sort(positions)
	for _, pos := range positions {
		if err := next.Cards.Set(pos, d.Set[pos]); err != nil {
			return nil, fmt.Errorf("apply position %d: %w", pos, err)
		}
	}

	if d.Settings != nil {
		next.Settings = d.Settings.Clone()
	}
	if d.Metadata != nil {
		next.Metadata = *d.Metadata
	}
	if required := RequiredPages(next.Cards, next.Settings.GridSize); required > next.Settings.PageCount {
		extendPages(next, required)
	}
	return next, nil
}

// SettingsEqual compares two settings values field by field.
func SettingsEqual(a, b Settings) bool {
	return a.GridSize == b.GridSize &&
		a.PageCount == b.PageCount &&
		slices.Equal(a.PageOrder, b.PageOrder) &&
		a.SortBy == b.SortBy &&
		a.SortDirection == b.SortDirection &&
		a.AutoSort == b.AutoSort
}
