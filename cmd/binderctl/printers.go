package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/layout"
	"github.com/ramonehamilton/binder-companion/internal/storage/models"
)

var (
	bold  = color.New(color.Bold)
	faint = color.New(color.Faint)
	holo  = color.New(color.FgHiCyan)
	warn  = color.New(color.FgYellow)
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummaries(w io.Writer, summaries []*models.BinderSummary) {
	if len(summaries) == 0 {
		_, _ = fmt.Fprintln(w, faint.Sprint("no binders"))
		return
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("ID"), bold.Sprint("Name"), bold.Sprint("Grid"), bold.Sprint("Pages"), bold.Sprint("Cards"), bold.Sprint("Modified"))
	for _, s := range summaries {
		tbl.AddRow(s.ID, s.Name, s.GridSize, s.PageCount, s.CardCount, s.ModifiedAt.Local().Format("2006-01-02 15:04"))
	}
	_, _ = fmt.Fprintln(w, tbl)
}

func printBinderHeader(w io.Writer, b *binder.Binder, usage binder.Usage) {
	_, _ = fmt.Fprintf(w, "%s  %s\n", bold.Sprint(b.Metadata.Name), faint.Sprint(b.ID))
	pages := strconv.Itoa(usage.PageCount)
	if usage.Limits.MaxPages > 0 {
		pages += "/" + strconv.Itoa(usage.Limits.MaxPages)
	}
	cards := strconv.Itoa(usage.CardCount)
	if usage.Limits.MaxCards > 0 {
		cards += "/" + strconv.Itoa(usage.Limits.MaxCards)
	}
	_, _ = fmt.Fprintf(w, "grid %s  pages %s  cards %s  sort %s %s  version %d\n",
		b.Settings.GridSize.Name, pages, cards, b.Settings.SortBy, b.Settings.SortDirection, b.Version)
}

// printLayout draws each page as a grid of card ids. Reverse holos are
// highlighted and empty slots shown as dots.
func printLayout(w io.Writer, l layout.Layout, grid binder.GridConfig) {
	for _, spread := range l.Spreads {
		printPage(w, spread.Left, grid)
		if spread.Right != nil {
			printPage(w, *spread.Right, grid)
		}
	}
	if l.PagesNeeded > 0 {
		_, _ = fmt.Fprintln(w, warn.Sprintf("%d more page(s) needed to hold every card", l.PagesNeeded))
	}
}

func printPage(w io.Writer, page layout.Page, grid binder.GridConfig) {
	if page.Cover {
		_, _ = fmt.Fprintln(w, faint.Sprint("[cover]"))
		return
	}
	_, _ = fmt.Fprintln(w, bold.Sprintf("Page %d", page.Index))

	tbl := uitable.New()
	tbl.Separator = "  "
	row := make([]any, 0, grid.Cols)
	for i, slot := range page.Slots {
		row = append(row, slotLabel(slot))
		if (i+1)%grid.Cols == 0 {
			tbl.AddRow(row...)
			row = row[:0]
		}
	}
	if len(row) > 0 {
		tbl.AddRow(row...)
	}
	_, _ = fmt.Fprintln(w, tbl)
	_, _ = fmt.Fprintln(w)
}

func slotLabel(slot binder.Slot) string {
	if slot.Empty() {
		return faint.Sprintf("%3d ·", slot.Position)
	}
	label := fmt.Sprintf("%3d %s", slot.Position, slot.Card.CardID)
	if slot.Card.IsReverseHolo {
		return holo.Sprint(label + " (RH)")
	}
	return label
}

func printDetails(w io.Writer, cards []*binder.CardDetails) {
	if len(cards) == 0 {
		_, _ = fmt.Fprintln(w, faint.Sprint("no cards"))
		return
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("ID"), bold.Sprint("Name"), bold.Sprint("Set"), bold.Sprint("No."), bold.Sprint("Rarity"), bold.Sprint("Type"))
	for _, c := range cards {
		typ := c.Supertype
		if len(c.Types) > 0 {
			typ = c.Types[0]
		}
		tbl.AddRow(c.ID, c.Name, c.SetName, c.Number, c.Rarity, typ)
	}
	_, _ = fmt.Fprintln(w, tbl)
}
