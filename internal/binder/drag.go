package binder

import "fmt"

// DragKind names what a drag started from or was dropped onto.
type DragKind string

const (
	DragSlot      DragKind = "slot"
	DragPage      DragKind = "page"
	DragClipboard DragKind = "clipboard"
	DragSearch    DragKind = "search"
)

// DragSource describes the dragged item. Position is used for slots,
// PageIndex for pages, Index and Card for clipboard entries, Card for
// catalog search results.
type DragSource struct {
	Kind      DragKind `json:"kind"`
	Position  int      `json:"position,omitempty"`
	PageIndex int      `json:"pageIndex,omitempty"`
	Index     int      `json:"index,omitempty"`
	Card      *CardRef `json:"card,omitempty"`
}

// DragTarget describes where the item was dropped. Only slots and pages are
// valid drop targets.
type DragTarget struct {
	Kind      DragKind `json:"kind"`
	Position  int      `json:"position,omitempty"`
	PageIndex int      `json:"pageIndex,omitempty"`
}

// DragResult is the outcome of ApplyDrag. Exactly one of Move and Placement
// is set for card drags; both are nil for page drags.
type DragResult struct {
	Binder    *Binder    `json:"-"`
	Move      *Move      `json:"move,omitempty"`
	Placement *Placement `json:"placement,omitempty"`
}

// Description is a short human summary suitable for a history entry.
func (r DragResult) Description(src DragSource, dst DragTarget) string {
	switch {
	case r.Move != nil:
		return fmt.Sprintf("Move card %d to %d", r.Move.From, r.Move.To)
	case r.Placement != nil && src.Card != nil:
		return fmt.Sprintf("Place %s at %d", src.Card.CardID, r.Placement.Position)
	case src.Kind == DragPage:
		return fmt.Sprintf("Move page %d to %d", src.PageIndex, dst.PageIndex)
	}
	return "Drag"
}

// ApplyDrag translates a source/target descriptor pair into an engine
// operation and returns the new state. The input binder is never modified.
func ApplyDrag(b *Binder, src DragSource, dst DragTarget, opts PlaceOptions) (DragResult, error) {
	switch src.Kind {
	case DragSlot:
		if dst.Kind != DragSlot {
			return DragResult{}, fmt.Errorf("%w: cannot drop a card onto a %s", ErrOutOfRange, dst.Kind)
		}
		next, move, err := MoveCard(b, src.Position, dst.Position, opts)
		if err != nil {
			return DragResult{}, err
		}
		return DragResult{Binder: next, Move: &move}, nil

	case DragPage:
		if dst.Kind != DragPage {
			return DragResult{}, fmt.Errorf("%w: cannot drop a page onto a %s", ErrOutOfRange, dst.Kind)
		}
		next, err := MovePages(b, src.PageIndex, dst.PageIndex)
		if err != nil {
			return DragResult{}, err
		}
		return DragResult{Binder: next}, nil

	case DragClipboard, DragSearch:
		if src.Card == nil {
			return DragResult{}, fmt.Errorf("%s drag carries no card", src.Kind)
		}
		if dst.Kind != DragSlot {
			return DragResult{}, fmt.Errorf("%w: cannot drop a card onto a %s", ErrOutOfRange, dst.Kind)
		}
		next, placement, err := Place(b, dst.Position, *src.Card, opts)
		if err != nil {
			return DragResult{}, err
		}
		return DragResult{Binder: next, Placement: &placement}, nil
	}
	return DragResult{}, fmt.Errorf("unknown drag source %q", src.Kind)
}
