// Package layout turns a binder's position map into the pages and two-page
// spreads a viewer shows.
package layout

import (
	"fmt"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// Page is one logical page as displayed.
type Page struct {
	Index  int           `json:"index"`  // logical index, 0 is the cover
	Number int           `json:"number"` // underlying page number
	Cover  bool          `json:"cover"`
	Slots  []binder.Slot `json:"slots,omitempty"`
}

// Spread is a left/right pair of pages. Right is nil when the last card page
// has no partner.
type Spread struct {
	Index int   `json:"index"`
	Left  Page  `json:"left"`
	Right *Page `json:"right,omitempty"`
}

// Layout is the result of ComputeSpreads.
type Layout struct {
	Spreads []Spread `json:"spreads"`

	// PageCount is the number of card pages the spreads cover, including
	// extension pages.
	PageCount int `json:"pageCount"`

	// PagesNeeded is how many pages must be added to the binder to hold every
	// entry. It is zero when the binder is large enough.
	PagesNeeded int `json:"pagesNeeded"`
}

// ComputeSpreads resolves every logical page through pageOrder, slices
// grid.Total consecutive positions per page and pairs the pages into spreads.
// The cover sits alone on the left of spread 0 with logical page 1 on the
// right; later spreads pair (2,3), (4,5) and so on.
//
// Entries beyond pageCount*grid.Total are not dropped: extension pages are
// appended after the ordered pages and reported through PagesNeeded.
func ComputeSpreads(cards *binder.PositionMap, grid binder.GridConfig, pageCount int, pageOrder []int) (Layout, error) {
	if grid.Total <= 0 {
		return Layout{}, fmt.Errorf("grid %q has no slots", grid.Name)
	}
	if err := binder.ValidatePageOrder(pageOrder, pageCount); err != nil {
		return Layout{}, err
	}

	required := binder.RequiredPages(cards, grid)
	needed := 0
	if required > pageCount {
		needed = required - pageCount
	}

	order := append([]int(nil), pageOrder...)
	for page := pageCount + 1; page <= pageCount+needed; page++ {
		order = append(order, page)
	}

	pages := make([]Page, len(order))
	for idx, number := range order {
		if idx == 0 {
			pages[idx] = Page{Index: 0, Number: 0, Cover: true}
			continue
		}
		pages[idx] = Page{Index: idx, Number: number, Slots: PageSlots(cards, grid, number)}
	}

	spreads := []Spread{{Index: 0, Left: pages[0]}}
	if len(pages) > 1 {
		right := pages[1]
		spreads[0].Right = &right
	}
	for idx := 2; idx < len(pages); idx += 2 {
		s := Spread{Index: len(spreads), Left: pages[idx]}
		if idx+1 < len(pages) {
			right := pages[idx+1]
			s.Right = &right
		}
		spreads = append(spreads, s)
	}

	return Layout{Spreads: spreads, PageCount: pageCount + needed, PagesNeeded: needed}, nil
}

// ForBinder is ComputeSpreads over a binder's own settings.
func ForBinder(b *binder.Binder) (Layout, error) {
	return ComputeSpreads(b.Cards, b.Settings.GridSize, b.Settings.PageCount, b.Settings.PageOrder)
}

// PageSlots returns the grid.Total slots of a page number; missing entries
// are empty slots.
func PageSlots(cards *binder.PositionMap, grid binder.GridConfig, number int) []binder.Slot {
	start := (number - 1) * grid.Total
	slots := make([]binder.Slot, grid.Total)
	for i := range slots {
		pos := start + i
		slots[i] = binder.Slot{Position: pos}
		if ref, ok := cards.Get(pos); ok {
			slots[i].Card = &ref
		}
	}
	return slots
}

// SpreadOf returns the spread index showing a logical page index.
func SpreadOf(pageIndex int) int {
	if pageIndex <= 1 {
		return 0
	}
	return pageIndex / 2
}
