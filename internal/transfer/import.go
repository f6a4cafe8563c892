package transfer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/clipboard"
	"github.com/ramonehamilton/binder-companion/internal/binder/history"
)

// ImportOptions controls how a document becomes a binder.
type ImportOptions struct {
	// KeepID reuses the exported binder id instead of minting a new one.
	KeepID bool

	// Limits rejects binders larger than the installation allows.
	Limits binder.Limits

	// HistoryDepth bounds the restored history (default: history.DefaultMaxDepth).
	HistoryDepth int
}

// Imported is a validated document, ready to be saved.
type Imported struct {
	Binder    *binder.Binder
	Clipboard []clipboard.Item
	History   *history.History // nil when the document carried none
}

// rawDocument mirrors Document with every field that can be malformed kept
// loose, so validation can report all problems at once.
type rawDocument struct {
	Format     string           `json:"format"`
	ExportedAt time.Time        `json:"exportedAt"`
	Binder     *rawBinder       `json:"binder"`
	Clipboard  []clipboard.Item `json:"clipboard"`
	History    *rawJournal      `json:"history"`
}

type rawBinder struct {
	ID         string                    `json:"id"`
	Metadata   binder.Metadata           `json:"metadata"`
	Settings   rawSettings               `json:"settings"`
	Cards      map[string]binder.CardRef `json:"cards"`
	Version    int64                     `json:"version"`
	ModifiedAt time.Time                 `json:"modifiedAt"`
}

type rawSettings struct {
	GridSize      json.RawMessage      `json:"gridSize"`
	PageCount     int                  `json:"pageCount"`
	PageOrder     []int                `json:"pageOrder"`
	SortBy        binder.SortStrategy  `json:"sortBy"`
	SortDirection binder.SortDirection `json:"sortDirection"`
	AutoSort      bool                 `json:"autoSort"`
}

type rawJournal struct {
	Entries []json.RawMessage `json:"entries"`
	Cursor  int               `json:"cursor"`
}

// Import parses and validates a plain document. Every problem found is
// reported in one error wrapping binder.ErrInvalidImportFormat; nothing is
// returned unless the whole document is valid.
func Import(data []byte, opts ImportOptions) (*Imported, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", binder.ErrInvalidImportFormat, err)
	}

	var problems *multierror.Error
	if raw.Format != Format {
		problems = multierror.Append(problems, fmt.Errorf("unsupported format %q", raw.Format))
	}
	if raw.Binder == nil {
		problems = multierror.Append(problems, fmt.Errorf("document has no binder"))
		return nil, invalid(problems)
	}

	b, errs := raw.Binder.build(opts.Limits)
	problems = multierror.Append(problems, errs...)

	clip, errs := validateClipboard(raw.Clipboard)
	problems = multierror.Append(problems, errs...)

	var hist *history.History
	if raw.History != nil {
		var err error
		if hist, err = raw.History.build(opts.HistoryDepth); err != nil {
			problems = multierror.Append(problems, err)
		}
	}

	if err := problems.ErrorOrNil(); err != nil {
		return nil, invalid(problems)
	}

	if !opts.KeepID {
		b.ID = uuid.NewString()
	}
	// The imported copy has never been pushed under this installation.
	b.Version = 0
	b.Touch()

	return &Imported{Binder: b, Clipboard: clip, History: hist}, nil
}

func invalid(problems *multierror.Error) error {
	return fmt.Errorf("%w: %w", binder.ErrInvalidImportFormat, problems)
}

func (r *rawBinder) build(limits binder.Limits) (*binder.Binder, []error) {
	var errs []error

	var grid binder.GridConfig
	if len(r.Settings.GridSize) == 0 {
		errs = append(errs, fmt.Errorf("settings.gridSize is missing"))
	} else if err := json.Unmarshal(r.Settings.GridSize, &grid); err != nil {
		errs = append(errs, fmt.Errorf("settings.gridSize: %w", err))
	}

	pageCount := r.Settings.PageCount
	if pageCount < 1 {
		errs = append(errs, fmt.Errorf("settings.pageCount %d is below one", pageCount))
	}
	if limits.MaxPages > 0 && pageCount > limits.MaxPages {
		errs = append(errs, fmt.Errorf("settings.pageCount %d exceeds the limit of %d", pageCount, limits.MaxPages))
	}

	pageOrder := r.Settings.PageOrder
	if pageOrder == nil && pageCount >= 1 {
		pageOrder = binder.IdentityPageOrder(pageCount)
	}
	if pageCount >= 1 {
		if err := binder.ValidatePageOrder(pageOrder, pageCount); err != nil {
			errs = append(errs, fmt.Errorf("settings.pageOrder: %w", err))
		}
	}

	sortBy := r.Settings.SortBy
	if sortBy == "" {
		sortBy = binder.SortCustom
	}
	if !sortBy.Valid() {
		errs = append(errs, fmt.Errorf("settings.sortBy %q is unknown", sortBy))
	}
	direction := r.Settings.SortDirection
	if direction == "" {
		direction = binder.Ascending
	}
	if !direction.Valid() {
		errs = append(errs, fmt.Errorf("settings.sortDirection %q is unknown", direction))
	}

	cards, cardErrs := buildCards(r.Cards)
	errs = append(errs, cardErrs...)
	if limits.MaxCards > 0 && len(r.Cards) > limits.MaxCards {
		errs = append(errs, fmt.Errorf("binder holds %d cards, the limit is %d", len(r.Cards), limits.MaxCards))
	}

	if len(errs) > 0 {
		return nil, errs
	}

	name := r.Metadata.Name
	if name == "" {
		name = "Imported binder"
	}
	return &binder.Binder{
		ID: r.ID,
		Metadata: binder.Metadata{
			Name:        name,
			Description: r.Metadata.Description,
			CreatedAt:   r.Metadata.CreatedAt,
		},
		Settings: binder.Settings{
			GridSize:      grid,
			PageCount:     pageCount,
			PageOrder:     pageOrder,
			SortBy:        sortBy,
			SortDirection: direction,
			AutoSort:      r.Settings.AutoSort,
		},
		Cards:      cards,
		Version:    r.Version,
		ModifiedAt: r.ModifiedAt,
	}, nil
}

// buildCards checks keys in ascending position order so that duplicate
// reports name the later position.
func buildCards(raw map[string]binder.CardRef) (*binder.PositionMap, []error) {
	var errs []error
	type keyed struct {
		pos int
		ref binder.CardRef
	}
	entries := make([]keyed, 0, len(raw))
	for key, ref := range raw {
		pos, err := strconv.Atoi(key)
		if err != nil {
			errs = append(errs, fmt.Errorf("cards: position key %q is not numeric", key))
			continue
		}
		if pos < 0 {
			errs = append(errs, fmt.Errorf("cards: position %d is negative", pos))
			continue
		}
		entries = append(entries, keyed{pos, ref})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

	cards := binder.NewPositionMap()
	for _, e := range entries {
		if err := e.ref.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("cards[%d]: %w", e.pos, err))
			continue
		}
		if err := cards.Set(e.pos, e.ref); err != nil {
			existing, _ := cards.Find(e.ref.Identity())
			errs = append(errs, fmt.Errorf("cards[%d]: %s duplicates position %d", e.pos, e.ref.Identity(), existing))
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return cards, errs
}

func validateClipboard(items []clipboard.Item) ([]clipboard.Item, []error) {
	var errs []error
	if len(items) > clipboard.Capacity {
		errs = append(errs, fmt.Errorf("clipboard holds %d cards, capacity is %d", len(items), clipboard.Capacity))
	}
	seen := make(map[binder.Identity]bool, len(items))
	for i, item := range items {
		if err := item.Card.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("clipboard[%d]: %w", i, err))
			continue
		}
		id := item.Card.Identity()
		if seen[id] {
			errs = append(errs, fmt.Errorf("clipboard[%d]: %s is listed twice", i, id))
		}
		seen[id] = true
	}
	return items, errs
}

func (r *rawJournal) build(depth int) (*history.History, error) {
	entries := make([]history.Entry, 0, len(r.Entries))
	for i, msg := range r.Entries {
		var e history.Entry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, fmt.Errorf("history.entries[%d]: %w", i, err)
		}
		entries = append(entries, e)
	}
	h, err := history.Restore(entries, r.Cursor, depth)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return h, nil
}
