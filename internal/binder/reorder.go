package binder

import (
	"fmt"
)

// PlaceOptions controls capacity handling for placements and moves.
type PlaceOptions struct {
	// AllowGrowth lets a placement beyond the last page add pages instead of
	// failing with ErrOutOfRange.
	AllowGrowth bool

	// Limits caps growth and card count. Zero values mean unlimited.
	Limits Limits
}

// Placement reports what a placement did besides filling the slot.
type Placement struct {
	Position   int      `json:"position"`
	PagesAdded int      `json:"pagesAdded"`
	Displaced  *CardRef `json:"displaced,omitempty"`
}

// Move reports the effect of MoveCard.
type Move struct {
	From       int `json:"from"`
	To         int `json:"to"`
	Shifted    int `json:"shifted"`
	PagesAdded int `json:"pagesAdded"`
}

// Place puts ref at position and returns the new binder state.
// The input binder is never modified.
func Place(b *Binder, position int, ref CardRef, opts PlaceOptions) (*Binder, Placement, error) {
	if position < 0 {
		return nil, Placement{}, fmt.Errorf("%w: position %d", ErrOutOfRange, position)
	}
	if existing, ok := b.Cards.Find(ref.Identity()); ok && existing != position {
		return nil, Placement{}, fmt.Errorf("%w: %s at position %d", ErrDuplicateEntry, ref.Identity(), existing)
	}

	_, occupied := b.Cards.Get(position)
	if !occupied && opts.Limits.MaxCards > 0 && b.Cards.Len() >= opts.Limits.MaxCards {
		return nil, Placement{}, fmt.Errorf("%w: card limit of %d reached", ErrOutOfRange, opts.Limits.MaxCards)
	}

	next := b.Clone()
	added, err := grow(next, position, opts)
	if err != nil {
		return nil, Placement{}, err
	}

	result := Placement{Position: position, PagesAdded: added}
	if old, ok := next.Cards.Get(position); ok {
		result.Displaced = &old
	}
	if err := next.Cards.Set(position, ref); err != nil {
		return nil, Placement{}, err
	}
	return next, result, nil
}

// Remove clears position. Clearing an empty slot returns an unchanged copy and nil.
func Remove(b *Binder, position int) (*Binder, *CardRef) {
	next := b.Clone()
	ref, ok := next.Cards.Remove(position)
	if !ok {
		return next, nil
	}
	return next, &ref
}

// MoveCard moves the card at from to to with insert-shift semantics: if to is
// occupied, the contiguous run of cards starting at to and heading toward from
// slides one slot toward from, stopping at the first gap (at worst the slot
// from just vacated). Moves never create or destroy entries.
func MoveCard(b *Binder, from, to int, opts PlaceOptions) (*Binder, Move, error) {
	if from == to {
		return nil, Move{}, fmt.Errorf("%w: %d", ErrSamePosition, from)
	}
	if to < 0 {
		return nil, Move{}, fmt.Errorf("%w: position %d", ErrOutOfRange, to)
	}
	ref, ok := b.Cards.Get(from)
	if !ok {
		return nil, Move{}, fmt.Errorf("%w: no card at position %d", ErrOutOfRange, from)
	}

	next := b.Clone()
	added, err := grow(next, to, opts)
	if err != nil {
		return nil, Move{}, err
	}

	cards := next.Cards
	cards.Remove(from)

	shifted := 0
	if _, occupied := cards.Get(to); occupied {
		step := 1
		if from < to {
			step = -1
		}

		end := to
		for {
			if _, ok := cards.Get(end + step); !ok {
				break
			}
			end += step
		}

		for p := end; ; p -= step {
			moving, _ := cards.Remove(p)
			if err := cards.Set(p+step, moving); err != nil {
				return nil, Move{}, fmt.Errorf("shift %d to %d: %w", p, p+step, err)
			}
			shifted++
			if p == to {
				break
			}
		}
	}

	if err := cards.Set(to, ref); err != nil {
		return nil, Move{}, err
	}
	return next, Move{From: from, To: to, Shifted: shifted, PagesAdded: added}, nil
}

// MovePages moves the page shown at logical index from to logical index to,
// shifting the pages in between. The cover (index 0) can never move and
// nothing can be moved in front of it.
func MovePages(b *Binder, from, to int) (*Binder, error) {
	if from == 0 || to == 0 {
		return nil, ErrCoverPageImmutable
	}
	count := b.Settings.PageCount
	if from < 1 || from > count {
		return nil, fmt.Errorf("%w: page index %d", ErrOutOfRange, from)
	}
	if to < 1 || to > count {
		return nil, fmt.Errorf("%w: page index %d", ErrOutOfRange, to)
	}
	if from == to {
		return nil, fmt.Errorf("%w: page index %d", ErrSamePosition, from)
	}

	next := b.Clone()
	order := next.Settings.PageOrder
	page := order[from]
	order = append(order[:from], order[from+1:]...)
	order = append(order[:to], append([]int{page}, order[to:]...)...)
	next.Settings.PageOrder = order
	return next, nil
}

// AddPages appends n blank card pages.
func AddPages(b *Binder, n int, limits Limits) (*Binder, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: cannot add %d pages", ErrOutOfRange, n)
	}
	total := b.Settings.PageCount + n
	if limits.MaxPages > 0 && total > limits.MaxPages {
		return nil, fmt.Errorf("%w: page limit of %d reached", ErrOutOfRange, limits.MaxPages)
	}
	next := b.Clone()
	extendPages(next, total)
	return next, nil
}

// TrimPages drops trailing page numbers that hold no cards, keeping at least
// one card page. It returns the number of pages removed.
func TrimPages(b *Binder) (*Binder, int) {
	next := b.Clone()
	required := RequiredPages(next.Cards, next.Settings.GridSize)
	removed := next.Settings.PageCount - required
	if removed <= 0 {
		return next, 0
	}

	order := make([]int, 0, required+1)
	for _, page := range next.Settings.PageOrder {
		if page <= required {
			order = append(order, page)
		}
	}
	next.Settings.PageCount = required
	next.Settings.PageOrder = order
	return next, removed
}

// FirstEmptyOnPage returns the first free position on the page shown at a
// logical index.
func FirstEmptyOnPage(b *Binder, pageIndex int) (int, error) {
	if pageIndex < 1 || pageIndex >= len(b.Settings.PageOrder) {
		return 0, fmt.Errorf("%w: page index %d", ErrOutOfRange, pageIndex)
	}
	start, end := b.PageRange(b.Settings.PageOrder[pageIndex])
	for pos := start; pos < end; pos++ {
		if _, ok := b.Cards.Get(pos); !ok {
			return pos, nil
		}
	}
	return 0, fmt.Errorf("%w: page index %d", ErrPageFull, pageIndex)
}

// PageIndexOf returns the logical index currently showing position.
func PageIndexOf(b *Binder, position int) int {
	page := b.PageOf(position)
	for idx, p := range b.Settings.PageOrder {
		if p == page {
			return idx
		}
	}
	return page
}

// grow makes room for position on next, returning the number of pages added.
func grow(next *Binder, position int, opts PlaceOptions) (int, error) {
	capacity := next.Settings.Capacity()
	if position < capacity {
		return 0, nil
	}
	if !opts.AllowGrowth {
		return 0, fmt.Errorf("%w: position %d exceeds capacity %d", ErrOutOfRange, position, capacity)
	}
	needed := position/next.Settings.GridSize.Total + 1
	if opts.Limits.MaxPages > 0 && needed > opts.Limits.MaxPages {
		return 0, fmt.Errorf("%w: position %d needs %d pages, limit is %d", ErrOutOfRange, position, needed, opts.Limits.MaxPages)
	}
	added := needed - next.Settings.PageCount
	extendPages(next, needed)
	return added, nil
}

func extendPages(b *Binder, pageCount int) {
	for page := b.Settings.PageCount + 1; page <= pageCount; page++ {
		b.Settings.PageOrder = append(b.Settings.PageOrder, page)
	}
	b.Settings.PageCount = pageCount
}
