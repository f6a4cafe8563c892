// Package editor owns open binders. A Session serializes every operation on
// one binder and turns engine results into committed transitions: a history
// entry, a local write, a scheduled remote push and a change event.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/clipboard"
	"github.com/ramonehamilton/binder-companion/internal/binder/history"
	"github.com/ramonehamilton/binder-companion/internal/binder/layout"
	"github.com/ramonehamilton/binder-companion/internal/binder/sorting"
	"github.com/ramonehamilton/binder-companion/internal/events"
	"github.com/ramonehamilton/binder-companion/internal/reconcile"
)

// Syncer persists committed binders. *reconcile.Reconciler implements it.
type Syncer interface {
	Open(ctx context.Context, id string) (*binder.Binder, error)
	Commit(ctx context.Context, b *binder.Binder, journal *reconcile.Journal) error
	Flush(ctx context.Context, id string) (*reconcile.Result, error)
	Forget(id string)
	Delete(ctx context.Context, id string) error
}

// DetailsSource resolves catalog details for sorting. *catalog.Service
// implements it.
type DetailsSource interface {
	Prefetch(ctx context.Context, cardIDs []string) (sorting.Details, error)
}

// Session is one open binder. All methods are safe for concurrent use; they
// run one at a time.
type Session struct {
	mu sync.Mutex

	deps   *deps
	logger *slog.Logger

	b    *binder.Binder
	hist *history.History
	clip *clipboard.Clipboard

	// page is the logical page index the user is looking at.
	page int

	// stale is a newer remote copy the user has not adopted yet.
	stale *binder.Binder
}

// deps are shared by every session of a manager.
type deps struct {
	syncer     Syncer
	clipboards clipboard.Store
	details    DetailsSource
	typeOrder  *sorting.TypeOrderStore
	events     events.Dispatcher
	limits     binder.Limits
	depth      int
}

func newSession(d *deps, logger *slog.Logger, b *binder.Binder, hist *history.History, clip *clipboard.Clipboard) *Session {
	return &Session{
		deps:   d,
		logger: logger.With("binderID", b.ID),
		b:      b,
		hist:   hist,
		clip:   clip,
		page:   1,
	}
}

// ID returns the binder id.
func (s *Session) ID() string {
	return s.b.ID
}

// Binder returns a copy of the current state.
func (s *Session) Binder() *binder.Binder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Clone()
}

// Spreads lays the binder out as two-page spreads.
func (s *Session) Spreads() (layout.Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return layout.ForBinder(s.b)
}

// CardAt returns the card at a position.
func (s *Session) CardAt(position int) (binder.CardRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Cards.Get(position)
}

// Usage reports card and page counts against the configured limits.
func (s *Session) Usage() binder.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Usage(s.deps.limits)
}

// CanUndo reports whether Undo would succeed.
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.CanUndo()
}

// CanRedo reports whether Redo would succeed.
func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.CanRedo()
}

// History returns the recorded entries and the cursor.
func (s *Session) History() ([]history.Entry, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.Entries(), s.hist.Cursor()
}

// Clipboard returns the staged cards.
func (s *Session) Clipboard() []clipboard.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip.Items()
}

// CurrentPage returns the logical page index being viewed.
func (s *Session) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// ViewPage records which logical page the user is looking at. The cover
// cannot receive cards, so index 0 is rejected.
func (s *Session) ViewPage(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 1 || index > s.b.Settings.PageCount {
		return fmt.Errorf("%w: page index %d", binder.ErrOutOfRange, index)
	}
	s.page = index
	return nil
}

// StaleRemote returns the newer remote copy announced by binder:stale, if
// the user has not adopted it yet.
func (s *Session) StaleRemote() *binder.Binder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale == nil {
		return nil
	}
	return s.stale.Clone()
}

// Flush pushes committed changes to the remote now instead of waiting for
// the debounce. The session lock is not held: the push reports back through
// binder:synced.
func (s *Session) Flush(ctx context.Context) (*reconcile.Result, error) {
	return s.deps.syncer.Flush(ctx, s.ID())
}

func (s *Session) placeOptions(allowGrowth bool) binder.PlaceOptions {
	return binder.PlaceOptions{AllowGrowth: allowGrowth, Limits: s.deps.limits}
}

// commit makes next the current state. The history entry, the local write
// and the in-memory swap happen together: if the write fails the history is
// rolled back and the session keeps its previous state.
func (s *Session) commit(ctx context.Context, description string, next *binder.Binder) error {
	entries, cursor := s.hist.Entries(), s.hist.Cursor()

	next.Touch()
	s.hist.Record(description, next.Snapshot())
	if err := s.persist(ctx, next); err != nil {
		if restored, rerr := history.Restore(entries, cursor, s.deps.depth); rerr == nil {
			s.hist = restored
		}
		return err
	}

	s.b = next
	s.changed(ctx, description)
	return nil
}

// persist writes next and the current history without recording anything.
func (s *Session) persist(ctx context.Context, next *binder.Binder) error {
	journal := &reconcile.Journal{Entries: s.hist.Entries(), Cursor: s.hist.Cursor()}
	if err := s.deps.syncer.Commit(ctx, next, journal); err != nil {
		return fmt.Errorf("failed to commit binder %s: %w", next.ID, err)
	}
	return nil
}

func (s *Session) changed(ctx context.Context, description string) {
	s.dispatch(ctx, events.BinderChanged, events.ChangedEvent{
		Description: description,
		CardCount:   s.b.Cards.Len(),
		PageCount:   s.b.Settings.PageCount,
		CanUndo:     s.hist.CanUndo(),
		CanRedo:     s.hist.CanRedo(),
	})
}

func (s *Session) pagesAdded(ctx context.Context, added int) {
	if added <= 0 {
		return
	}
	s.dispatch(ctx, events.BinderPagesAdded, events.PagesAddedEvent{
		Added:     added,
		PageCount: s.b.Settings.PageCount,
	})
}

func (s *Session) dispatch(ctx context.Context, eventType string, data any) {
	if s.deps.events == nil {
		return
	}
	s.deps.events.Dispatch(events.NewTypedEvent(ctx, eventType, s.b.ID, data))
}

func (s *Session) saveClipboard() {
	if err := s.deps.clipboards.Save(s.b.ID, s.clip.Items()); err != nil {
		s.logger.Warn("Failed to save clipboard", "error", err)
	}
}
