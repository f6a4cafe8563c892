package export

import (
	"context"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// DetailSource describes cards for a checklist. catalog.Service satisfies it.
type DetailSource interface {
	Details(ctx context.Context, cardID string) *binder.CardDetails
}

// ChecklistRow is one placed card. Page is the physical page number and
// Sheet the position of that page in the binder's page order.
type ChecklistRow struct {
	Position    int    `csv:"position" json:"position"`
	Page        int    `csv:"page" json:"page"`
	Sheet       int    `csv:"sheet" json:"sheet"`
	Row         int    `csv:"row" json:"row"`
	Column      int    `csv:"column" json:"column"`
	CardID      string `csv:"card_id" json:"cardId"`
	ReverseHolo bool   `csv:"reverse_holo" json:"reverseHolo"`
	Name        string `csv:"name" json:"name"`
	Number      string `csv:"number" json:"number,omitempty"`
	Set         string `csv:"set" json:"set,omitempty"`
	Rarity      string `csv:"rarity" json:"rarity,omitempty"`
	AddedAt     string `csv:"added_at" json:"addedAt,omitempty"`
}

// Checklist lists the binder's cards in position order. details may be nil,
// in which case names fall back to the card id.
func Checklist(ctx context.Context, b *binder.Binder, details DetailSource) []ChecklistRow {
	grid := b.Settings.GridSize
	sheets := make(map[int]int, len(b.Settings.PageOrder))
	for logical, page := range b.Settings.PageOrder {
		sheets[page] = logical
	}

	entries := b.Cards.Entries()
	rows := make([]ChecklistRow, 0, len(entries))
	for _, slot := range entries {
		ref := slot.Card
		page := b.PageOf(slot.Position)
		offset := slot.Position % grid.Total
		row := ChecklistRow{
			Position:    slot.Position,
			Page:        page,
			Sheet:       sheets[page],
			Row:         offset/grid.Cols + 1,
			Column:      offset%grid.Cols + 1,
			CardID:      ref.CardID,
			ReverseHolo: ref.IsReverseHolo,
			Name:        ref.CardID,
		}
		if !ref.AddedAt.IsZero() {
			row.AddedAt = ref.AddedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		if details != nil {
			if d := details.Details(ctx, ref.CardID); d != nil {
				row.Name = d.Name
				row.Number = d.Number
				row.Set = d.SetName
				row.Rarity = d.Rarity
			}
		}
		rows = append(rows, row)
	}
	return rows
}
