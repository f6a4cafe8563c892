package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/history"
	"github.com/ramonehamilton/binder-companion/internal/binder/layout"
	"github.com/ramonehamilton/binder-companion/internal/binder/sorting"
	"github.com/ramonehamilton/binder-companion/internal/events"
)

// ErrInvalidCard is returned for malformed card references.
var ErrInvalidCard = errors.New("invalid card reference")

// Place puts a card at position. With allowGrowth a position past the last
// page adds pages, up to the configured limit.
func (s *Session) Place(ctx context.Context, position int, ref binder.CardRef, allowGrowth bool) (binder.Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, err := stamp(ref)
	if err != nil {
		return binder.Placement{}, err
	}
	next, placement, err := binder.Place(s.b, position, ref, s.placeOptions(allowGrowth))
	if err != nil {
		return binder.Placement{}, err
	}
	if next, err = s.autoSort(ctx, next); err != nil {
		return binder.Placement{}, err
	}
	// Sorting may have moved the card away from the drop slot.
	if final, ok := next.Cards.Find(ref.Identity()); ok {
		placement.Position = final
	}
	if err := s.commit(ctx, fmt.Sprintf("Place %s at %d", ref.Identity(), position), next); err != nil {
		return binder.Placement{}, err
	}
	s.pagesAdded(ctx, placement.PagesAdded)
	return placement, nil
}

// ApplyDrag applies a drag-and-drop gesture. Clipboard sources are resolved
// by index and leave the clipboard once placed.
func (s *Session) ApplyDrag(ctx context.Context, src binder.DragSource, dst binder.DragTarget) (binder.DragResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch src.Kind {
	case binder.DragClipboard:
		item, err := s.clip.Get(src.Index)
		if err != nil {
			return binder.DragResult{}, err
		}
		card := item.Card
		src.Card = &card
	case binder.DragSearch:
		if src.Card == nil {
			return binder.DragResult{}, fmt.Errorf("%w: search drag carries no card", ErrInvalidCard)
		}
		card, err := stamp(*src.Card)
		if err != nil {
			return binder.DragResult{}, err
		}
		src.Card = &card
	}

	result, err := binder.ApplyDrag(s.b, src, dst, s.placeOptions(true))
	if err != nil {
		return binder.DragResult{}, err
	}

	next := result.Binder
	var previous binder.SortStrategy
	switch {
	case result.Move != nil:
		previous = disableAutoSort(next)
	case result.Placement != nil:
		if next, err = s.autoSort(ctx, next); err != nil {
			return binder.DragResult{}, err
		}
		if final, ok := next.Cards.Find(src.Card.Identity()); ok {
			placed := *result.Placement
			placed.Position = final
			result.Placement = &placed
		}
	}

	if err := s.commit(ctx, result.Description(src, dst), next); err != nil {
		return binder.DragResult{}, err
	}
	result.Binder = s.b.Clone()

	if src.Kind == binder.DragClipboard {
		if _, err := s.clip.Remove(src.Index); err == nil {
			s.saveClipboard()
		}
	}
	if result.Move != nil {
		s.pagesAdded(ctx, result.Move.PagesAdded)
	}
	if result.Placement != nil {
		s.pagesAdded(ctx, result.Placement.PagesAdded)
	}
	s.autoSortDisabled(ctx, previous)
	return result, nil
}

// MoveCard moves a card with insert-shift semantics. A manual move turns
// auto-sort off.
func (s *Session) MoveCard(ctx context.Context, from, to int) (binder.Move, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, move, err := binder.MoveCard(s.b, from, to, s.placeOptions(true))
	if err != nil {
		return binder.Move{}, err
	}
	previous := disableAutoSort(next)
	if err := s.commit(ctx, fmt.Sprintf("Move card %d to %d", from, to), next); err != nil {
		return binder.Move{}, err
	}
	s.pagesAdded(ctx, move.PagesAdded)
	s.autoSortDisabled(ctx, previous)
	return move, nil
}

// MovePages reorders pages by logical index.
func (s *Session) MovePages(ctx context.Context, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := binder.MovePages(s.b, from, to)
	if err != nil {
		return err
	}
	return s.commit(ctx, fmt.Sprintf("Move page %d to %d", from, to), next)
}

// DeleteCard removes the card at position. Deleting an empty slot changes
// nothing and records no history.
func (s *Session) DeleteCard(ctx context.Context, position int) (*binder.CardRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, removed := binder.Remove(s.b, position)
	if removed == nil {
		return nil, nil
	}
	if err := s.commit(ctx, fmt.Sprintf("Remove %s", removed.Identity()), next); err != nil {
		return nil, err
	}
	return removed, nil
}

// AddPages appends blank pages.
func (s *Session) AddPages(ctx context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := binder.AddPages(s.b, n, s.deps.limits)
	if err != nil {
		return err
	}
	if err := s.commit(ctx, fmt.Sprintf("Add %d pages", n), next); err != nil {
		return err
	}
	s.pagesAdded(ctx, n)
	return nil
}

// TrimPages removes trailing empty pages and returns how many went.
func (s *Session) TrimPages(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, removed := binder.TrimPages(s.b)
	if removed == 0 {
		return 0, nil
	}
	if err := s.commit(ctx, fmt.Sprintf("Remove %d empty pages", removed), next); err != nil {
		return 0, err
	}
	s.clampPage()
	return removed, nil
}

// Regrid switches the grid size, keeping linear card order.
func (s *Session) Regrid(ctx context.Context, name binder.GridName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grid, err := binder.LookupGrid(name)
	if err != nil {
		return err
	}
	if grid == s.b.Settings.GridSize {
		return nil
	}
	next := layout.Regrid(s.b, grid)
	if s.deps.limits.MaxPages > 0 && next.Settings.PageCount > s.deps.limits.MaxPages {
		return fmt.Errorf("%w: %s grid needs %d pages, limit is %d",
			binder.ErrOutOfRange, name, next.Settings.PageCount, s.deps.limits.MaxPages)
	}
	if err := s.commit(ctx, fmt.Sprintf("Change grid to %s", name), next); err != nil {
		return err
	}
	s.clampPage()
	return nil
}

// Sort stores the strategy and direction and reorders the cards. The custom
// strategy keeps the current order.
func (s *Session) Sort(ctx context.Context, strategy binder.SortStrategy, direction binder.SortDirection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !strategy.Valid() {
		return fmt.Errorf("unknown sort strategy %q", strategy)
	}
	if direction == "" {
		direction = binder.Ascending
	}
	if !direction.Valid() {
		return fmt.Errorf("unknown sort direction %q", direction)
	}

	next := s.b.Clone()
	next.Settings.SortBy = strategy
	next.Settings.SortDirection = direction
	if strategy != binder.SortCustom {
		var err error
		if next, err = s.sorted(ctx, next); err != nil {
			return err
		}
	}
	return s.commit(ctx, fmt.Sprintf("Sort by %s (%s)", strategy, direction), next)
}

// SetAutoSort toggles sorting after every placement. Enabling it with a
// non-custom strategy sorts right away.
func (s *Session) SetAutoSort(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.b.Settings.AutoSort == enabled {
		return nil
	}
	next := s.b.Clone()
	next.Settings.AutoSort = enabled
	description := "Disable auto-sort"
	if enabled {
		description = "Enable auto-sort"
		var err error
		if next, err = s.autoSort(ctx, next); err != nil {
			return err
		}
	}
	return s.commit(ctx, description, next)
}

// Rename changes the binder's name and description.
func (s *Session) Rename(ctx context.Context, name, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return fmt.Errorf("binder name cannot be empty")
	}
	next := s.b.Clone()
	next.Metadata.Name = name
	next.Metadata.Description = description
	return s.commit(ctx, fmt.Sprintf("Rename to %q", name), next)
}

// Undo steps back one history entry.
func (s *Session) Undo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigate(ctx, "Undo", s.hist.Undo)
}

// Redo steps forward one history entry.
func (s *Session) Redo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigate(ctx, "Redo", s.hist.Redo)
}

// RevertTo jumps to a history entry. Later entries stay available for redo.
func (s *Session) RevertTo(ctx context.Context, entryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigate(ctx, fmt.Sprintf("Revert to entry %d", entryID), func() (binder.State, error) {
		return s.hist.RevertTo(entryID)
	})
}

// navigate restores a snapshot picked by step without recording a new entry.
func (s *Session) navigate(ctx context.Context, description string, step func() (binder.State, error)) error {
	entries, cursor := s.hist.Entries(), s.hist.Cursor()

	state, err := step()
	if err != nil {
		return err
	}
	next := s.b.Clone()
	next.Restore(state)
	next.Touch()

	if err := s.persist(ctx, next); err != nil {
		if restored, rerr := history.Restore(entries, cursor, s.deps.depth); rerr == nil {
			s.hist = restored
		}
		return err
	}
	s.b = next
	s.clampPage()
	s.changed(ctx, description)
	return nil
}

// ApplySynced folds a finished push into the session: the new remote version
// and any remote changes the push uncovered. Remote changes are recorded as
// their own history entry.
func (s *Session) ApplySynced(ctx context.Context, ev events.SyncedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Version <= s.b.Version {
		return nil
	}
	if s.stale != nil && s.stale.Version <= ev.Version {
		s.stale = nil
	}

	next := s.b.Clone()
	next.Version = ev.Version
	if ev.Delta.Empty() {
		// Rewrite the cache so the stored copy carries the pushed version.
		if err := s.persist(ctx, next); err != nil {
			return err
		}
		s.b = next
		return nil
	}

	merged, err := binder.ApplyDiff(next, ev.Delta)
	if err != nil {
		if ev.Remote == nil {
			return fmt.Errorf("failed to merge remote changes: %w", err)
		}
		s.logger.Warn("Remote changes do not apply cleanly, adopting remote copy", "error", err)
		merged = ev.Remote.Clone()
	}
	merged.Version = ev.Version
	if err := s.commit(ctx, "Merge remote changes", merged); err != nil {
		return err
	}
	s.clampPage()
	return nil
}

// ApplyStale remembers a newer remote copy for the user to adopt.
func (s *Session) ApplyStale(ev events.StaleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Remote == nil || ev.RemoteVersion <= s.b.Version {
		return
	}
	s.stale = ev.Remote.Clone()
}

// ErrNothingToAdopt is returned by AdoptRemote when no newer remote copy is known.
var ErrNothingToAdopt = errors.New("no newer remote copy to adopt")

// AdoptRemote replaces the session state with the newer remote copy. The
// switch is recorded so it can be undone.
func (s *Session) AdoptRemote(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale == nil {
		return ErrNothingToAdopt
	}
	next := s.stale.Clone()
	if err := s.commit(ctx, fmt.Sprintf("Adopt remote version %d", next.Version), next); err != nil {
		return err
	}
	s.stale = nil
	s.clampPage()
	return nil
}

// DismissStale forgets the announced remote copy. Local edits pushed later
// are rebased onto it.
func (s *Session) DismissStale() {
	s.mu.Lock()
	s.stale = nil
	s.mu.Unlock()
}

// autoSort re-sorts next when auto-sort is on with a real strategy.
func (s *Session) autoSort(ctx context.Context, next *binder.Binder) (*binder.Binder, error) {
	if !next.Settings.AutoSort || next.Settings.SortBy == binder.SortCustom {
		return next, nil
	}
	return s.sorted(ctx, next)
}

func (s *Session) sorted(ctx context.Context, b *binder.Binder) (*binder.Binder, error) {
	details := sorting.Details{}
	if s.deps.details != nil {
		ids := lo.Uniq(lo.Map(b.Cards.Entries(), func(slot binder.Slot, _ int) string {
			return slot.Card.CardID
		}))
		var err error
		if details, err = s.deps.details.Prefetch(ctx, ids); err != nil {
			return nil, err
		}
	}
	return sorting.SortBinder(b, details, s.deps.typeOrder.Get())
}

// disableAutoSort switches a sorted binder to custom order after a manual
// move and returns the strategy it replaced, or "" when nothing changed.
func disableAutoSort(next *binder.Binder) binder.SortStrategy {
	if !next.Settings.AutoSort || next.Settings.SortBy == binder.SortCustom {
		return ""
	}
	previous := next.Settings.SortBy
	next.Settings.AutoSort = false
	next.Settings.SortBy = binder.SortCustom
	return previous
}

func (s *Session) autoSortDisabled(ctx context.Context, previous binder.SortStrategy) {
	if previous == "" {
		return
	}
	s.dispatch(ctx, events.BinderAutoSortDisabled, events.AutoSortDisabledEvent{PreviousStrategy: previous})
}

func (s *Session) clampPage() {
	s.page = min(max(s.page, 1), s.b.Settings.PageCount)
}

// stamp validates a reference and dates it if it has no timestamp.
func stamp(ref binder.CardRef) (binder.CardRef, error) {
	if err := ref.Validate(); err != nil {
		return binder.CardRef{}, fmt.Errorf("%w: %w", ErrInvalidCard, err)
	}
	if ref.AddedAt.IsZero() {
		ref.AddedAt = time.Now().UTC()
	}
	return ref, nil
}
