// Package sorting re-linearizes a binder's cards under one of the supported
// strategies. Sorting compacts: entries are reassigned to positions 0..n-1.
package sorting

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// Details maps card ids to catalog details. Missing or placeholder entries
// sort as unknown, after every known card in ascending order.
type Details map[string]*binder.CardDetails

func (d Details) lookup(cardID string) *binder.CardDetails {
	det, ok := d[cardID]
	if !ok || det == nil || det.Placeholder {
		return nil
	}
	return det
}

type entry struct {
	ref     binder.CardRef
	details *binder.CardDetails
}

// Sort returns a new position map with cards ordered by strategy and
// direction. The custom strategy returns an unchanged copy: custom order is
// only ever changed by explicit moves.
func Sort(cards *binder.PositionMap, strategy binder.SortStrategy, direction binder.SortDirection, details Details, order TypeOrder) (*binder.PositionMap, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("unknown sort strategy %q", strategy)
	}
	if strategy == binder.SortCustom {
		return cards.Clone(), nil
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("unknown sort direction %q", direction)
	}

	slots := cards.Entries()
	entries := make([]entry, len(slots))
	for i, slot := range slots {
		entries[i] = entry{ref: *slot.Card, details: details.lookup(slot.Card.CardID)}
	}

	cmp := comparator(strategy, order)
	slices.SortStableFunc(entries, func(a, b entry) int {
		c := cmp(a, b)
		if c == 0 {
			c = compareIdentity(a.ref, b.ref)
		}
		if direction == binder.Descending {
			return -c
		}
		return c
	})

	sorted := binder.NewPositionMap()
	for pos, e := range entries {
		if err := sorted.Set(pos, e.ref); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// SortBinder sorts b by its own settings and returns the new binder.
// The page count is left alone; compaction never needs more pages.
func SortBinder(b *binder.Binder, details Details, order TypeOrder) (*binder.Binder, error) {
	cards, err := Sort(b.Cards, b.Settings.SortBy, b.Settings.SortDirection, details, order)
	if err != nil {
		return nil, err
	}
	next := b.Clone()
	next.Cards = cards
	return next, nil
}

func comparator(strategy binder.SortStrategy, order TypeOrder) func(a, b entry) int {
	switch strategy {
	case binder.SortNumber:
		return known(compareNumber)
	case binder.SortName:
		return known(compareName)
	case binder.SortRarity:
		return known(compareRarity)
	case binder.SortType:
		return known(func(a, b entry) int {
			if c := order.Compare(primaryType(a.details), primaryType(b.details)); c != 0 {
				return c
			}
			return compareNumber(a, b)
		})
	}
	return func(entry, entry) int { return 0 }
}

// known orders entries with details before entries without and only calls
// cmp when both sides are known.
func known(cmp func(a, b entry) int) func(a, b entry) int {
	return func(a, b entry) int {
		switch {
		case a.details == nil && b.details == nil:
			return 0
		case a.details == nil:
			return 1
		case b.details == nil:
			return -1
		}
		return cmp(a, b)
	}
}

func compareNumber(a, b entry) int {
	na, nb := parseNumber(a.details.Number), parseNumber(b.details.Number)
	if c := na.compare(nb); c != 0 {
		return c
	}
	return compareReverse(a.ref, b.ref)
}

func compareName(a, b entry) int {
	if c := strings.Compare(strings.ToLower(a.details.Name), strings.ToLower(b.details.Name)); c != 0 {
		return c
	}
	if c := strings.Compare(a.details.Name, b.details.Name); c != 0 {
		return c
	}
	return compareNumber(a, b)
}

func compareRarity(a, b entry) int {
	ra, oka := RarityRank(a.details.Rarity)
	rb, okb := RarityRank(b.details.Rarity)
	switch {
	case oka && !okb:
		return -1
	case !oka && okb:
		return 1
	case ra != rb:
		return ra - rb
	}
	return compareNumber(a, b)
}

// compareReverse puts the regular print before its reverse holo.
func compareReverse(a, b binder.CardRef) int {
	switch {
	case a.IsReverseHolo == b.IsReverseHolo:
		return 0
	case b.IsReverseHolo:
		return -1
	}
	return 1
}

// compareIdentity is the total tiebreak every strategy ends with.
func compareIdentity(a, b binder.CardRef) int {
	if c := strings.Compare(a.CardID, b.CardID); c != 0 {
		return c
	}
	return compareReverse(a, b)
}

// printedNumber splits a collector number such as "58", "TG05" or "SV107"
// into its letter prefix and numeric part.
type printedNumber struct {
	raw    string
	prefix string
	value  int
	ok     bool
}

func parseNumber(raw string) printedNumber {
	n := printedNumber{raw: raw}
	start := strings.IndexFunc(raw, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		n.prefix = raw
		return n
	}
	end := start
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	v, err := strconv.Atoi(raw[start:end])
	if err != nil {
		n.prefix = raw
		return n
	}
	n.prefix = raw[:start]
	n.value = v
	n.ok = true
	return n
}

// compare orders plain numbers first, then prefixed numbers grouped by
// prefix, then numbers with no digits at all.
func (n printedNumber) compare(o printedNumber) int {
	switch {
	case n.ok && !o.ok:
		return -1
	case !n.ok && o.ok:
		return 1
	}
	if c := strings.Compare(n.prefix, o.prefix); c != 0 {
		return c
	}
	if n.value != o.value {
		return n.value - o.value
	}
	return strings.Compare(n.raw, o.raw)
}

func primaryType(d *binder.CardDetails) string {
	if len(d.Types) > 0 {
		return d.Types[0]
	}
	return d.Supertype
}
