package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/events"
	"github.com/ramonehamilton/binder-companion/internal/remote"
	"github.com/ramonehamilton/binder-companion/internal/storage"
)

type device struct {
	rec    *Reconciler
	cache  *storage.Service
	events *events.Recorder
}

func newDevice(t *testing.T, store remote.Store, debounce time.Duration) *device {
	t.Helper()

	cache, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	recorder := &events.Recorder{}
	dispatcher := events.NewEventDispatcher()
	dispatcher.Register(recorder)

	config := Config{
		Local:    cache,
		Events:   dispatcher,
		Debounce: debounce,
	}
	if store != nil {
		config.Remote = store
	}
	rec, err := New(config)
	require.NoError(t, err)
	t.Cleanup(rec.Close)

	return &device{rec: rec, cache: cache, events: recorder}
}

func place(t *testing.T, b *binder.Binder, pos int, cardID string) *binder.Binder {
	t.Helper()
	next, _, err := binder.Place(b, pos, binder.NewCardRef(cardID, false), binder.PlaceOptions{AllowGrowth: true})
	require.NoError(t, err)
	next.Touch()
	return next
}

// pushed creates a binder on device d and pushes it as version 1.
func pushed(t *testing.T, d *device, cards ...string) *binder.Binder {
	t.Helper()
	ctx := context.Background()

	b := binder.New("Shared", binder.MustGrid(binder.Grid3x3))
	for i, id := range cards {
		b = place(t, b, i, id)
	}
	require.NoError(t, d.rec.Commit(ctx, b, nil))
	res, err := d.rec.Flush(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Version)

	stored, err := d.cache.LoadBinder(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.Version)
	return stored
}

func TestConcurrentStaleSaveRebases(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	a := newDevice(t, store, time.Hour)
	b := newDevice(t, store, time.Hour)

	aCopy := pushed(t, a, "sv1-1", "sv1-2")
	bCopy, err := b.rec.Open(ctx, aCopy.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), bCopy.Version)

	// Both devices edit version 1; A pushes first.
	require.NoError(t, a.rec.Commit(ctx, place(t, aCopy, 3, "sv1-3"), nil))
	resA, err := a.rec.Flush(ctx, aCopy.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), resA.Version)

	require.NoError(t, b.rec.Commit(ctx, place(t, bCopy, 5, "sv1-5"), nil))
	resB, err := b.rec.Flush(ctx, bCopy.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, resB.Retries)
	assert.Equal(t, int64(3), resB.Version)
	assert.Empty(t, resB.Conflicts)
	assert.Equal(t, uint64(1), b.rec.Metrics().GetStats().Conflicts)

	// The remote holds both change sets.
	snap, err := store.Fetch(ctx, aCopy.ID)
	require.NoError(t, err)
	for pos, id := range map[int]string{0: "sv1-1", 1: "sv1-2", 3: "sv1-3", 5: "sv1-5"} {
		ref, ok := snap.Binder.Cards.Get(pos)
		require.True(t, ok, "position %d", pos)
		assert.Equal(t, id, ref.CardID)
	}

	// B learns about A's card through the delta.
	require.Contains(t, resB.Delta.Set, 3)
	assert.Equal(t, "sv1-3", resB.Delta.Set[3].CardID)

	synced := b.events.Events(events.BinderSynced)
	require.NotEmpty(t, synced)
	payload, ok := events.GetTypedData[events.SyncedEvent](synced[len(synced)-1])
	require.True(t, ok)
	assert.Equal(t, int64(3), payload.Version)
}

func TestConcurrentOverlapRemoteWins(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	a := newDevice(t, store, time.Hour)
	b := newDevice(t, store, time.Hour)

	aCopy := pushed(t, a, "sv1-1")
	bCopy, err := b.rec.Open(ctx, aCopy.ID)
	require.NoError(t, err)

	require.NoError(t, a.rec.Commit(ctx, place(t, aCopy, 4, "from-a"), nil))
	_, err = a.rec.Flush(ctx, aCopy.ID)
	require.NoError(t, err)

	require.NoError(t, b.rec.Commit(ctx, place(t, bCopy, 4, "from-b"), nil))
	res, err := b.rec.Flush(ctx, bCopy.ID)
	require.NoError(t, err)

	assert.Equal(t, []int{4}, res.Conflicts)
	ref, _ := res.Remote.Cards.Get(4)
	assert.Equal(t, "from-a", ref.CardID)
	assert.Len(t, b.events.Events(events.BinderConflict), 1)
}

func TestFlush_GivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{MemoryStore: remote.NewMemoryStore()}
	d := newDevice(t, store, time.Hour)
	b := pushed(t, d, "sv1-1")

	store.race = true
	require.NoError(t, d.rec.Commit(ctx, place(t, b, 2, "sv1-2"), nil))
	_, err := d.rec.Flush(ctx, b.ID)
	require.ErrorIs(t, err, binder.ErrConflictingVersion)
	assert.Len(t, d.events.Events(events.SyncFailed), 1)
	assert.Equal(t, uint64(3), d.rec.Metrics().GetStats().Retries)
}

// racingStore bumps the remote version before every patch, as if another
// writer always got there first.
type racingStore struct {
	*remote.MemoryStore
	race bool
}

func (s *racingStore) Patch(ctx context.Context, id string, diff binder.Diff, expected int64) (*remote.Snapshot, error) {
	if s.race {
		snap, err := s.MemoryStore.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, err := s.MemoryStore.Patch(ctx, id, binder.Diff{}, snap.Version); err != nil {
			return nil, err
		}
	}
	return s.MemoryStore.Patch(ctx, id, diff, expected)
}

func TestOpen_NewerRemoteSignalsStale(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	d := newDevice(t, store, time.Hour)

	local := binder.New("Stale", binder.MustGrid(binder.Grid3x3))
	local.Version = 3
	require.NoError(t, d.cache.SaveBinder(ctx, local))

	newer := place(t, local, 0, "sv2-1")
	newer.Version = 5
	store.Put(newer)

	opened, err := d.rec.Open(ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, opened.Cards.Len(), "local copy must be returned untouched")

	require.Eventually(t, func() bool {
		return len(d.events.Events(events.BinderStale)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stale, ok := events.GetTypedData[events.StaleEvent](d.events.Events(events.BinderStale)[0])
	require.True(t, ok)
	assert.Equal(t, int64(3), stale.LocalVersion)
	assert.Equal(t, int64(5), stale.RemoteVersion)
	assert.Equal(t, 1, stale.Remote.Cards.Len())

	cached, err := d.cache.LoadBinder(ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cached.Version, "stale check must not overwrite the cache")
}

func TestOpen_UnpushedEditsArePushed(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	d := newDevice(t, store, 10*time.Millisecond)

	synced := binder.New("Offline", binder.MustGrid(binder.Grid3x3))
	synced.Version = 2
	store.Put(synced)

	edited := place(t, synced, 1, "sv3-1")
	require.NoError(t, d.cache.SaveBinder(ctx, edited))

	_, err := d.rec.Open(ctx, synced.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return store.Patches() == 1 }, 2*time.Second, 10*time.Millisecond)
	snap, err := store.Fetch(ctx, synced.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Version)
	assert.Equal(t, 1, snap.Binder.Cards.Len())
}

func TestOpen_MissingLocallyFetchesRemote(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	d := newDevice(t, store, time.Hour)

	b := place(t, binder.New("Elsewhere", binder.MustGrid(binder.Grid4x4)), 0, "sv4-1")
	b.Version = 7
	store.Put(b)

	opened, err := d.rec.Open(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), opened.Version)

	cached, err := d.cache.LoadBinder(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Cards.Len())

	_, err = d.rec.Open(ctx, "missing-everywhere")
	assert.ErrorIs(t, err, storage.ErrBinderNotFound)
}

func TestDelete_TombstonesBinder(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	d := newDevice(t, store, time.Hour)
	b := pushed(t, d, "sv1-1")

	require.NoError(t, d.rec.Delete(ctx, b.ID))

	_, err := store.Fetch(ctx, b.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = d.cache.LoadBinder(ctx, b.ID)
	assert.ErrorIs(t, err, storage.ErrBinderNotFound)

	assert.ErrorIs(t, d.rec.Commit(ctx, b, nil), ErrDeleted)
	_, err = d.rec.Open(ctx, b.ID)
	assert.ErrorIs(t, err, ErrDeleted)
	assert.Len(t, d.events.Events(events.BinderDeleted), 1)
}

func TestForget_CancelsPendingPush(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	d := newDevice(t, store, 20*time.Millisecond)

	b := binder.New("Navigate", binder.MustGrid(binder.Grid3x3))
	require.NoError(t, d.rec.Commit(ctx, b, nil))
	d.rec.Forget(b.ID)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, store.Patches())

	res, err := d.rec.Flush(ctx, b.ID)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestLocalOnly(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, nil, time.Hour)

	b := place(t, binder.New("Local", binder.MustGrid(binder.Grid2x2)), 0, "sv1-1")
	require.NoError(t, d.rec.Commit(ctx, b, &Journal{Cursor: -1}))

	res, err := d.rec.Flush(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, res)

	opened, err := d.rec.Open(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, opened.Cards.Len())
	assert.NoError(t, d.rec.Watch(ctx))

	_, err = d.rec.Open(ctx, "nope")
	assert.True(t, errors.Is(err, storage.ErrBinderNotFound))
}

// cachedCopy seeds d's cache with b without opening it, so d knows no
// remote base for the binder.
func cachedCopy(t *testing.T, d *device, b *binder.Binder) *binder.Binder {
	t.Helper()
	require.NoError(t, d.cache.SaveBinder(context.Background(), b))
	return b.Clone()
}

func TestFlush_WithoutBaseKeepsRemoval(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	a := newDevice(t, store, time.Hour)
	b := newDevice(t, store, time.Hour)

	shared := pushed(t, a, "sv1-1", "sv1-2")
	local := cachedCopy(t, b, shared)

	removed, _ := binder.Remove(local, 1)
	removed.Touch()
	require.NoError(t, b.rec.Commit(ctx, removed, nil))
	res, err := b.rec.Flush(ctx, shared.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Version)
	assert.Zero(t, res.Retries)

	snap, err := store.Fetch(ctx, shared.ID)
	require.NoError(t, err)
	_, ok := snap.Binder.Cards.Get(1)
	assert.False(t, ok, "remote still holds the removed card")

	cached, err := b.cache.LoadBinder(ctx, shared.ID)
	require.NoError(t, err)
	_, ok = cached.Cards.Get(1)
	assert.False(t, ok, "local cache got the removed card back")
	assert.Equal(t, int64(2), cached.Version)
}

func TestFlush_WithoutBasePushesMove(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	a := newDevice(t, store, time.Hour)
	b := newDevice(t, store, time.Hour)

	shared := pushed(t, a, "sv1-1", "sv1-2")
	local := cachedCopy(t, b, shared)

	moved, _, err := binder.MoveCard(local, 0, 4, binder.PlaceOptions{AllowGrowth: true})
	require.NoError(t, err)
	moved.Touch()
	require.NoError(t, b.rec.Commit(ctx, moved, nil))
	_, err = b.rec.Flush(ctx, shared.ID)
	require.NoError(t, err)

	snap, err := store.Fetch(ctx, shared.ID)
	require.NoError(t, err)
	assert.True(t, snap.Binder.Cards.Equal(moved.Cards))
}

func TestFlush_WithoutBaseRebasesOntoNewerRemote(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	a := newDevice(t, store, time.Hour)
	b := newDevice(t, store, time.Hour)

	shared := pushed(t, a, "sv1-1")
	local := cachedCopy(t, b, shared)

	require.NoError(t, a.rec.Commit(ctx, place(t, shared, 3, "sv1-3"), nil))
	_, err := a.rec.Flush(ctx, shared.ID)
	require.NoError(t, err)

	require.NoError(t, b.rec.Commit(ctx, place(t, local, 5, "sv1-5"), nil))
	res, err := b.rec.Flush(ctx, shared.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Version)

	snap, err := store.Fetch(ctx, shared.ID)
	require.NoError(t, err)
	for pos, id := range map[int]string{0: "sv1-1", 3: "sv1-3", 5: "sv1-5"} {
		ref, ok := snap.Binder.Cards.Get(pos)
		require.True(t, ok, "position %d", pos)
		assert.Equal(t, id, ref.CardID)
	}
}
