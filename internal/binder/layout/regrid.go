package layout

import (
	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// Regrid switches a binder to another grid size. Linear positions are kept,
// so card order is preserved while the slot-to-page assignment is recomputed.
// The page count becomes the minimum that holds every card and the page
// order is reset, since page numbers no longer describe the same cards.
func Regrid(b *binder.Binder, grid binder.GridConfig) *binder.Binder {
	next := b.Clone()
	pages := binder.RequiredPages(next.Cards, grid)
	next.Settings.GridSize = grid
	next.Settings.PageCount = pages
	next.Settings.PageOrder = binder.IdentityPageOrder(pages)
	return next
}
