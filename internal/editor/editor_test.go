package editor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/clipboard"
	"github.com/ramonehamilton/binder-companion/internal/binder/sorting"
	"github.com/ramonehamilton/binder-companion/internal/events"
	"github.com/ramonehamilton/binder-companion/internal/reconcile"
	"github.com/ramonehamilton/binder-companion/internal/remote"
	"github.com/ramonehamilton/binder-companion/internal/storage"
)

type staticDetails map[string]string

func (d staticDetails) Prefetch(_ context.Context, ids []string) (sorting.Details, error) {
	out := make(sorting.Details, len(ids))
	for _, id := range ids {
		if name, ok := d[id]; ok {
			out[id] = &binder.CardDetails{ID: id, Name: name, Number: "1"}
		} else {
			out[id] = binder.PlaceholderDetails(id)
		}
	}
	return out, nil
}

type fixture struct {
	mgr        *Manager
	rec        *reconcile.Reconciler
	cache      *storage.Service
	clipboards *clipboard.MemoryStore
	events     *events.Recorder
}

func newFixture(t *testing.T, store remote.Store, cache *storage.Service, limits binder.Limits) *fixture {
	t.Helper()

	if cache == nil {
		var err error
		cache, err = storage.OpenMemory()
		require.NoError(t, err)
		t.Cleanup(func() { _ = cache.Close() })
	}

	recorder := &events.Recorder{}
	dispatcher := events.NewEventDispatcher()
	dispatcher.Register(recorder)

	config := reconcile.Config{Local: cache, Events: dispatcher, Debounce: time.Hour}
	if store != nil {
		config.Remote = store
	}
	rec, err := reconcile.New(config)
	require.NoError(t, err)
	t.Cleanup(rec.Close)

	clipboards := clipboard.NewMemoryStore()
	mgr, err := NewManager(Config{
		Syncer:     rec,
		Library:    cache,
		Clipboards: clipboards,
		Details:    staticDetails{"sv1-1": "Zubat", "sv1-2": "Abra", "sv1-3": "Mew", "sv1-4": "Bulbasaur"},
		Events:     dispatcher,
		Limits:     limits,
	})
	require.NoError(t, err)
	dispatcher.Register(mgr)

	return &fixture{mgr: mgr, rec: rec, cache: cache, clipboards: clipboards, events: recorder}
}

func card(id string) binder.CardRef {
	return binder.NewCardRef(id, false)
}

func TestSession_PlaceAndQuery(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Scarlet", binder.Grid3x3)
	require.NoError(t, err)

	_, err = s.Place(ctx, 4, card("sv1-1"), false)
	require.NoError(t, err)

	ref, ok := s.CardAt(4)
	require.True(t, ok)
	assert.Equal(t, "sv1-1", ref.CardID)

	lay, err := s.Spreads()
	require.NoError(t, err)
	assert.Equal(t, 1, lay.PageCount)
	assert.Equal(t, binder.Usage{CardCount: 1, PageCount: 1}, s.Usage())

	_, err = s.Place(ctx, 0, card("sv1-1"), false)
	assert.ErrorIs(t, err, binder.ErrDuplicateEntry)
	_, err = s.Place(ctx, 9, card("sv1-2"), false)
	assert.ErrorIs(t, err, binder.ErrOutOfRange)
	_, err = s.Place(ctx, 1, card(" sv1-2"), false)
	assert.ErrorIs(t, err, ErrInvalidCard)

	cached, err := f.cache.LoadBinder(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Cards.Len())
}

func TestSession_GrowthRaisesPagesAdded(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{MaxPages: 3})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Growth", binder.Grid3x3)
	require.NoError(t, err)

	placement, err := s.Place(ctx, 20, card("sv1-1"), true)
	require.NoError(t, err)
	assert.Equal(t, 2, placement.PagesAdded)
	assert.Equal(t, 3, s.Usage().PageCount)

	added := f.events.Events(events.BinderPagesAdded)
	require.Len(t, added, 1)
	ev, ok := events.GetTypedData[events.PagesAddedEvent](added[0])
	require.True(t, ok)
	assert.Equal(t, 2, ev.Added)

	_, err = s.Place(ctx, 27, card("sv1-2"), true)
	assert.ErrorIs(t, err, binder.ErrOutOfRange)
	assert.ErrorIs(t, s.AddPages(ctx, 1), binder.ErrOutOfRange)
}

func TestSession_UndoRedo(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Undo", binder.Grid3x3)
	require.NoError(t, err)
	opened := s.Binder()

	_, err = s.Place(ctx, 0, card("sv1-1"), false)
	require.NoError(t, err)
	_, err = s.Place(ctx, 1, card("sv1-2"), false)
	require.NoError(t, err)
	_, err = s.MoveCard(ctx, 1, 5)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Undo(ctx))
	}
	assert.True(t, opened.Cards.Equal(s.Binder().Cards))
	assert.ErrorIs(t, s.Undo(ctx), binder.ErrNothingToUndo)

	require.NoError(t, s.Redo(ctx))
	assert.Equal(t, 1, s.Usage().CardCount)

	_, err = s.Place(ctx, 8, card("sv1-3"), false)
	require.NoError(t, err)
	assert.False(t, s.CanRedo())
	assert.ErrorIs(t, s.Redo(ctx), binder.ErrNothingToRedo)

	entries, _ := s.History()
	require.NoError(t, s.RevertTo(ctx, entries[0].ID))
	assert.Equal(t, 0, s.Usage().CardCount)
	assert.True(t, s.CanRedo())
}

func TestSession_HistorySurvivesReopen(t *testing.T) {
	cache, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	ctx := context.Background()

	first := newFixture(t, nil, cache, binder.Limits{})
	s, err := first.mgr.Create(ctx, "Persist", binder.Grid3x3)
	require.NoError(t, err)
	_, err = s.Place(ctx, 0, card("sv1-1"), false)
	require.NoError(t, err)
	_, err = s.Place(ctx, 1, card("sv1-2"), false)
	require.NoError(t, err)
	require.NoError(t, s.Undo(ctx))
	first.mgr.CloseAll(ctx)

	second := newFixture(t, nil, cache, binder.Limits{})
	reopened, err := second.mgr.Open(ctx, s.ID())
	require.NoError(t, err)

	entries, cursor := reopened.History()
	assert.Len(t, entries, 3)
	assert.Equal(t, 1, cursor)
	assert.True(t, reopened.CanRedo())
	require.NoError(t, reopened.Redo(ctx))
	assert.Equal(t, 2, reopened.Usage().CardCount)
}

func TestSession_DeleteEmptySlotRecordsNothing(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Delete", binder.Grid3x3)
	require.NoError(t, err)

	removed, err := s.DeleteCard(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, removed)
	assert.False(t, s.CanUndo())

	_, err = s.Place(ctx, 3, card("sv1-1"), false)
	require.NoError(t, err)
	removed, err = s.DeleteCard(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, "sv1-1", removed.CardID)
}

func TestSession_AddToCurrentPage(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Clipboard", binder.Grid2x2)
	require.NoError(t, err)
	for i, id := range []string{"sv1-1", "sv1-2", "sv1-3", "sv1-4"} {
		_, err := s.Place(ctx, i, card(id), false)
		require.NoError(t, err)
	}
	require.NoError(t, s.AddToClipboard(card("sv2-9")))

	_, err = s.AddToCurrentPage(ctx, 0)
	assert.ErrorIs(t, err, binder.ErrPageFull)
	assert.Len(t, s.Clipboard(), 1, "card stays on the clipboard")

	require.NoError(t, s.AddPages(ctx, 1))
	require.NoError(t, s.ViewPage(2))
	placement, err := s.AddToCurrentPage(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, placement.Position)
	assert.Empty(t, s.Clipboard())

	stored, err := f.clipboards.Load(s.ID())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSession_ClipboardRoundTrip(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Lift", binder.Grid3x3)
	require.NoError(t, err)
	_, err = s.Place(ctx, 2, card("sv1-1"), false)
	require.NoError(t, err)

	lifted, err := s.LiftToClipboard(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "sv1-1", lifted.CardID)
	_, ok := s.CardAt(2)
	assert.False(t, ok)

	result, err := s.ApplyDrag(ctx,
		binder.DragSource{Kind: binder.DragClipboard, Index: 0},
		binder.DragTarget{Kind: binder.DragSlot, Position: 7})
	require.NoError(t, err)
	require.NotNil(t, result.Placement)
	assert.Empty(t, s.Clipboard())
	ref, ok := s.CardAt(7)
	require.True(t, ok)
	assert.True(t, ref.AddedAt.Equal(lifted.AddedAt))

	for i := 0; i < clipboard.Capacity; i++ {
		require.NoError(t, s.AddToClipboard(card("sv3-"+string(rune('a'+i)))))
	}
	_, err = s.LiftToClipboard(ctx, 7)
	assert.ErrorIs(t, err, binder.ErrClipboardFull)
	_, ok = s.CardAt(7)
	assert.True(t, ok, "failed lift leaves the card in place")

	s.ClearClipboard()
	assert.Empty(t, s.Clipboard())
}

func TestSession_AutoSort(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Sorted", binder.Grid3x3)
	require.NoError(t, err)
	for pos, id := range map[int]string{0: "sv1-1", 3: "sv1-2", 7: "sv1-3"} {
		_, err := s.Place(ctx, pos, card(id), false)
		require.NoError(t, err)
	}

	require.NoError(t, s.Sort(ctx, binder.SortName, binder.Ascending))
	require.NoError(t, s.SetAutoSort(ctx, true))
	placement, err := s.Place(ctx, 8, card("sv1-4"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, placement.Position, "placement reports where sorting put the card")

	want := []string{"sv1-2", "sv1-4", "sv1-3", "sv1-1"} // Abra, Bulbasaur, Mew, Zubat
	for pos, id := range want {
		ref, ok := s.CardAt(pos)
		require.True(t, ok, "position %d", pos)
		assert.Equal(t, id, ref.CardID, "position %d", pos)
	}

	_, err = s.MoveCard(ctx, 3, 0)
	require.NoError(t, err)
	settings := s.Binder().Settings
	assert.False(t, settings.AutoSort)
	assert.Equal(t, binder.SortCustom, settings.SortBy)

	disabled := f.events.Events(events.BinderAutoSortDisabled)
	require.Len(t, disabled, 1)
	ev, _ := events.GetTypedData[events.AutoSortDisabledEvent](disabled[0])
	assert.Equal(t, binder.SortName, ev.PreviousStrategy)
}

func TestSession_RegridAndPages(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Regrid", binder.Grid2x2)
	require.NoError(t, err)
	_, err = s.Place(ctx, 9, card("sv1-1"), true)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Usage().PageCount)

	assert.ErrorIs(t, s.MovePages(ctx, 0, 2), binder.ErrCoverPageImmutable)
	require.NoError(t, s.MovePages(ctx, 3, 1))
	assert.Equal(t, []int{0, 3, 1, 2}, s.Binder().Settings.PageOrder)

	require.NoError(t, s.Regrid(ctx, binder.Grid4x4))
	b := s.Binder()
	assert.Equal(t, 1, b.Settings.PageCount)
	assert.Equal(t, []int{0, 1}, b.Settings.PageOrder)
	_, ok := b.Cards.Get(9)
	assert.True(t, ok)

	require.NoError(t, s.AddPages(ctx, 2))
	removed, err := s.TrimPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Error(t, s.Regrid(ctx, "9x9"))
}

func TestSession_RenameAndList(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Draft", "")
	require.NoError(t, err)
	require.NoError(t, s.Rename(ctx, "Paldea", "Scarlet & Violet era"))
	assert.Error(t, s.Rename(ctx, "", ""))

	list, err := f.mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Paldea", list[0].Name)
	assert.Equal(t, "3x3", list[0].GridSize)
}

type failingSyncer struct {
	Syncer
	fail bool
}

func (f *failingSyncer) Commit(ctx context.Context, b *binder.Binder, journal *reconcile.Journal) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Syncer.Commit(ctx, b, journal)
}

func TestSession_FailedCommitLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	syncer := &failingSyncer{Syncer: f.rec}
	mgr, err := NewManager(Config{Syncer: syncer})
	require.NoError(t, err)

	s, err := mgr.Create(ctx, "Fragile", binder.Grid3x3)
	require.NoError(t, err)
	_, err = s.Place(ctx, 0, card("sv1-1"), false)
	require.NoError(t, err)

	syncer.fail = true
	_, err = s.Place(ctx, 1, card("sv1-2"), false)
	require.Error(t, err)
	_, ok := s.CardAt(1)
	assert.False(t, ok)
	entries, cursor := s.History()
	assert.Len(t, entries, 2)
	assert.Equal(t, 1, cursor)

	assert.Error(t, s.Undo(ctx))
	assert.Equal(t, 1, s.Usage().CardCount)
	assert.True(t, s.CanUndo())
}

func TestSession_SyncMergesRemoteChanges(t *testing.T) {
	store := remote.NewMemoryStore()
	f := newFixture(t, store, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Shared", binder.Grid3x3)
	require.NoError(t, err)
	_, err = s.Place(ctx, 0, card("sv1-1"), false)
	require.NoError(t, err)

	res, err := s.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Version)
	assert.Equal(t, int64(1), s.Binder().Version)

	// Another device adds a card.
	_, err = store.Patch(ctx, s.ID(), binder.Diff{Set: map[int]binder.CardRef{5: card("sv1-5")}}, 1)
	require.NoError(t, err)

	_, err = s.Place(ctx, 1, card("sv1-2"), false)
	require.NoError(t, err)
	res, err = s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Version)
	assert.Equal(t, 1, res.Retries)

	b := s.Binder()
	assert.Equal(t, int64(3), b.Version)
	for _, pos := range []int{0, 1, 5} {
		_, ok := b.Cards.Get(pos)
		assert.True(t, ok, "position %d", pos)
	}

	snap, err := store.Fetch(ctx, s.ID())
	require.NoError(t, err)
	assert.True(t, snap.Binder.Cards.Equal(b.Cards))
}

func TestSession_StaleRemoteAdopted(t *testing.T) {
	store := remote.NewMemoryStore()
	ctx := context.Background()

	a := newFixture(t, store, nil, binder.Limits{})
	sa, err := a.mgr.Create(ctx, "Shared", binder.Grid3x3)
	require.NoError(t, err)
	_, err = sa.Flush(ctx)
	require.NoError(t, err)

	b := newFixture(t, store, nil, binder.Limits{})
	sb, err := b.mgr.Open(ctx, sa.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sb.Binder().Version)
	b.mgr.Close(ctx, sa.ID())

	_, err = sa.Place(ctx, 4, card("sv1-1"), false)
	require.NoError(t, err)
	_, err = sa.Flush(ctx)
	require.NoError(t, err)

	sb, err = b.mgr.Open(ctx, sa.ID())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sb.StaleRemote() != nil }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sb.AdoptRemote(ctx))
	adopted := sb.Binder()
	assert.Equal(t, int64(2), adopted.Version)
	_, ok := adopted.Cards.Get(4)
	assert.True(t, ok)
	assert.Nil(t, sb.StaleRemote())
	assert.True(t, sb.CanUndo())
}

func TestManager_ExportImport(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Travel", binder.Grid4x3)
	require.NoError(t, err)
	_, err = s.Place(ctx, 13, card("sv1-1"), true)
	require.NoError(t, err)
	require.NoError(t, s.AddToClipboard(card("sv1-2")))

	data, err := f.mgr.Export(ctx, s.ID(), ExportOptions{History: true, Clipboard: true})
	require.NoError(t, err)

	imported, err := f.mgr.Import(ctx, data, "")
	require.NoError(t, err)
	assert.NotEqual(t, s.ID(), imported.ID())

	orig, copied := s.Binder(), imported.Binder()
	assert.True(t, orig.Cards.Equal(copied.Cards))
	assert.Equal(t, orig.Settings.GridSize, copied.Settings.GridSize)
	assert.Equal(t, orig.Settings.PageCount, copied.Settings.PageCount)
	assert.Len(t, imported.Clipboard(), 1)
	assert.True(t, imported.CanUndo())

	_, err = f.mgr.Import(ctx, []byte(`{"format":"nope"}`), "")
	assert.ErrorIs(t, err, binder.ErrInvalidImportFormat)
}

func TestManager_SealedExport(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Secret", binder.Grid3x3)
	require.NoError(t, err)

	data, err := f.mgr.Export(ctx, s.ID(), ExportOptions{Passphrase: "hunter2"})
	require.NoError(t, err)

	_, err = f.mgr.Import(ctx, data, "")
	assert.Error(t, err)
	imported, err := f.mgr.Import(ctx, data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "Secret", imported.Binder().Metadata.Name)
}

func TestManager_Delete(t *testing.T) {
	store := remote.NewMemoryStore()
	f := newFixture(t, store, nil, binder.Limits{})
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, "Doomed", binder.Grid3x3)
	require.NoError(t, err)
	require.NoError(t, s.AddToClipboard(card("sv1-1")))
	_, err = s.Flush(ctx)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Delete(ctx, s.ID()))

	_, err = f.mgr.Get(s.ID())
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = f.cache.LoadBinder(ctx, s.ID())
	assert.ErrorIs(t, err, storage.ErrBinderNotFound)
	_, err = store.Fetch(ctx, s.ID())
	assert.ErrorIs(t, err, remote.ErrNotFound)
	items, _ := f.clipboards.Load(s.ID())
	assert.Empty(t, items)
	_, err = f.mgr.Open(ctx, s.ID())
	assert.ErrorIs(t, err, reconcile.ErrDeleted)
}

// gatedSyncer holds Open until the gate is closed.
type gatedSyncer struct {
	Syncer
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedSyncer) Open(ctx context.Context, id string) (*binder.Binder, error) {
	g.entered <- struct{}{}
	<-g.gate
	return g.Syncer.Open(ctx, id)
}

func TestManager_SlowOpenDoesNotBlockOtherBinders(t *testing.T) {
	f := newFixture(t, nil, nil, binder.Limits{})
	ctx := context.Background()

	syncer := &gatedSyncer{Syncer: f.rec, entered: make(chan struct{}, 1), gate: make(chan struct{})}
	mgr, err := NewManager(Config{Syncer: syncer})
	require.NoError(t, err)

	slow, err := mgr.Create(ctx, "Slow", binder.Grid3x3)
	require.NoError(t, err)
	slowID := slow.ID()
	mgr.Close(ctx, slowID)

	other, err := mgr.Create(ctx, "Other", binder.Grid3x3)
	require.NoError(t, err)

	type opened struct {
		s   *Session
		err error
	}
	results := make(chan opened, 2)
	go func() {
		s, err := mgr.Open(ctx, slowID)
		results <- opened{s, err}
	}()
	<-syncer.entered

	// A second open of the same binder waits for the first.
	go func() {
		s, err := mgr.Open(ctx, slowID)
		results <- opened{s, err}
	}()

	got, err := mgr.Get(other.ID())
	require.NoError(t, err)
	assert.Same(t, other, got)

	newer := slow.Binder()
	newer.Version = 3
	event := events.NewTypedEvent(ctx, events.BinderStale, slowID, events.StaleEvent{
		LocalVersion:  0,
		RemoteVersion: 3,
		Remote:        newer,
	})
	require.NoError(t, mgr.OnEvent(event))

	close(syncer.gate)
	first, second := <-results, <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Same(t, first.s, second.s)

	stale := first.s.StaleRemote()
	require.NotNil(t, stale, "stale signal raised during open was lost")
	assert.Equal(t, int64(3), stale.Version)
}
