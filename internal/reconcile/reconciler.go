// Package reconcile keeps the local cache and the remote copy of each binder
// consistent. Local writes are synchronous; remote writes are debounced,
// version-checked, and rebased onto the remote when another writer got
// there first.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/history"
	"github.com/ramonehamilton/binder-companion/internal/events"
	"github.com/ramonehamilton/binder-companion/internal/metrics"
	"github.com/ramonehamilton/binder-companion/internal/remote"
	"github.com/ramonehamilton/binder-companion/internal/storage"
)

// ErrDeleted is returned for operations on a binder deleted in this process.
var ErrDeleted = errors.New("binder was deleted")

// errDiscarded marks work whose binder was closed or deleted while it ran.
var errDiscarded = errors.New("binder is no longer open")

// LocalCache is the synchronous local store. *storage.Service implements it.
type LocalCache interface {
	LoadBinder(ctx context.Context, id string) (*binder.Binder, error)
	SaveBinder(ctx context.Context, b *binder.Binder) error
	SaveBinderWithHistory(ctx context.Context, b *binder.Binder, entries []history.Entry, cursor int) error
	DeleteBinder(ctx context.Context, id string) error
}

// Journal is the undo history persisted alongside a committed binder.
type Journal struct {
	Entries []history.Entry
	Cursor  int
}

// Config configures the reconciler.
type Config struct {
	Local  LocalCache
	Remote remote.Store // nil keeps binders local only

	Events  events.Dispatcher
	Metrics *metrics.SyncMetrics
	Logger  *slog.Logger

	Debounce     time.Duration // delay before pushing (default: 2s)
	MaxRetries   int           // rebase attempts per flush (default: 3)
	FetchTimeout time.Duration // per remote request (default: 10s)
}

// Result describes a completed push.
type Result struct {
	BinderID string
	Version  int64

	// Remote is the remote copy after the push.
	Remote *binder.Binder

	// Delta turns the pushed copy into Remote: the remote changes the
	// session has not seen yet.
	Delta binder.Diff

	Conflicts []int
	Dropped   []binder.Identity
	Retries   int
}

// Reconciler coordinates the local cache and the remote store.
type Reconciler struct {
	config Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	entries    map[string]*entry
	tombstones map[string]struct{}
	wg         sync.WaitGroup
}

// entry is the sync state of one open binder.
type entry struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	// flushMu orders remote writes for this binder.
	flushMu sync.Mutex

	mu sync.Mutex
	// bases holds remote copies seen for this binder, by version.
	bases map[int64]*binder.Binder
	// pending is the latest committed copy not yet pushed.
	pending *binder.Binder
	// known is the highest remote version seen.
	known int64

	schedule func(func())
}

const maxBases = 4

// New creates a reconciler.
func New(config Config) (*Reconciler, error) {
	if config.Local == nil {
		return nil, fmt.Errorf("local cache is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewSyncMetrics()
	}
	if config.Debounce <= 0 {
		config.Debounce = 2 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		config:     config,
		logger:     config.Logger,
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[string]*entry),
		tombstones: make(map[string]struct{}),
	}, nil
}

// Metrics returns the reconciler's metrics.
func (r *Reconciler) Metrics() *metrics.SyncMetrics {
	return r.config.Metrics
}

// Open returns the binder from the local cache without waiting for the
// remote. The remote copy is checked in the background; a newer one raises
// binder:stale rather than replacing the local copy. A binder missing
// locally is fetched from the remote before returning.
func (r *Reconciler) Open(ctx context.Context, id string) (*binder.Binder, error) {
	if r.deleted(id) {
		return nil, ErrDeleted
	}

	local, err := r.config.Local.LoadBinder(ctx, id)
	if errors.Is(err, storage.ErrBinderNotFound) && r.config.Remote != nil {
		return r.openFromRemote(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	e := r.open(id)
	if r.config.Remote != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.refresh(e, local)
		}()
	}
	return local, nil
}

func (r *Reconciler) openFromRemote(ctx context.Context, id string) (*binder.Binder, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.config.FetchTimeout)
	defer cancel()

	snap, err := r.config.Remote.Fetch(fetchCtx, id)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, storage.ErrBinderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch binder %s: %w", id, err)
	}
	if r.deleted(id) {
		return nil, ErrDeleted
	}
	if err := r.config.Local.SaveBinder(ctx, snap.Binder); err != nil {
		return nil, err
	}

	e := r.open(id)
	e.remember(snap.Binder)
	return snap.Binder.Clone(), nil
}

// refresh compares the remote copy with what was opened.
func (r *Reconciler) refresh(e *entry, local *binder.Binder) {
	ctx, cancel := context.WithTimeout(e.ctx, r.config.FetchTimeout)
	defer cancel()

	snap, err := r.config.Remote.Fetch(ctx, e.id)
	if r.discarded(e) {
		return
	}
	if errors.Is(err, remote.ErrNotFound) {
		r.logger.Info("Binder missing remotely, scheduling push", "binderID", e.id)
		e.setPendingIfNone(local)
		r.schedule(e)
		return
	}
	if err != nil {
		r.logger.Warn("Remote check failed", "binderID", e.id, "error", err)
		return
	}

	known := max(local.Version, e.knownVersion())
	e.remember(snap.Binder)
	switch {
	case snap.Version > known:
		r.config.Metrics.RecordStale()
		r.logger.Info("Remote copy is newer", "binderID", e.id,
			"localVersion", local.Version, "remoteVersion", snap.Version)
		r.dispatch(events.BinderStale, e.id, events.StaleEvent{
			LocalVersion:     local.Version,
			RemoteVersion:    snap.Version,
			RemoteModifiedAt: snap.ModifiedAt,
			Remote:           snap.Binder.Clone(),
		})
	case snap.Version == local.Version && !binder.ComputeDiff(snap.Binder, local).Empty():
		// Edits committed locally but never pushed.
		e.setPendingIfNone(local)
		r.schedule(e)
	}
}

// Commit writes b to the local cache and schedules a remote push. journal
// may be nil to keep the stored history.
func (r *Reconciler) Commit(ctx context.Context, b *binder.Binder, journal *Journal) error {
	if r.deleted(b.ID) {
		return ErrDeleted
	}

	start := time.Now()
	var err error
	if journal != nil {
		err = r.config.Local.SaveBinderWithHistory(ctx, b, journal.Entries, journal.Cursor)
	} else {
		err = r.config.Local.SaveBinder(ctx, b)
	}
	if err != nil {
		return fmt.Errorf("failed to save binder %s: %w", b.ID, err)
	}
	r.config.Metrics.RecordLocalWrite(time.Since(start))

	if r.config.Remote == nil {
		return nil
	}
	e := r.open(b.ID)
	e.mu.Lock()
	e.pending = b.Clone()
	e.mu.Unlock()
	r.schedule(e)
	return nil
}

func (r *Reconciler) schedule(e *entry) {
	e.schedule(func() {
		if r.discarded(e) {
			return
		}
		r.wg.Add(1)
		defer r.wg.Done()
		if _, err := r.Flush(e.ctx, e.id); err != nil && !errors.Is(err, errDiscarded) && !errors.Is(err, context.Canceled) {
			r.logger.Error("Remote push failed", "binderID", e.id, "error", err)
		}
	})
}

// Flush pushes the pending copy of a binder now. It returns nil without
// error when nothing is pending. On a version conflict the local changes
// are rebased onto the fresher remote copy and retried.
func (r *Reconciler) Flush(ctx context.Context, id string) (*Result, error) {
	e := r.lookup(id)
	if e == nil || r.config.Remote == nil {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	pending := e.pending
	var base *binder.Binder
	if pending != nil {
		base = e.bases[pending.Version]
	}
	e.mu.Unlock()
	if pending == nil {
		return nil, nil
	}

	started := time.Now()
	result := &Result{BinderID: id}
	expected := pending.Version
	var diff binder.Diff
	rebased := false

	// Without the copy the edits started from, a full diff would drop
	// removals and collide on moves. Fetch it first.
	if base == nil && expected > 0 {
		fresh, err := r.fetch(ctx, id)
		if r.discarded(e) {
			return nil, errDiscarded
		}
		switch {
		case errors.Is(err, remote.ErrNotFound):
			expected = 0
		case err != nil:
			r.dispatch(events.SyncFailed, id, events.SyncFailedEvent{Error: err.Error()})
			return nil, fmt.Errorf("failed to fetch binder %s: %w", id, err)
		case fresh.Version == expected:
			e.remember(fresh.Binder)
			base = fresh.Binder
		default:
			e.remember(fresh.Binder)
			onto := Rebase(nil, fresh.Binder, binder.ComputeDiff(nil, pending))
			r.noteRebase(id, result, onto, expected, fresh.Version)
			base, diff, expected, rebased = fresh.Binder, onto.Diff, fresh.Version, true
		}
	}

	if !rebased {
		diff = binder.ComputeDiff(base, pending)
		if base != nil && diff.Empty() {
			e.clearPending(pending)
			return &Result{BinderID: id, Version: base.Version, Remote: base.Clone()}, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		patchStart := time.Now()
		snap, err := r.patch(ctx, id, diff, expected)
		r.config.Metrics.RecordRemoteWrite(time.Since(patchStart), err)
		if r.discarded(e) {
			return nil, errDiscarded
		}

		if err == nil {
			e.remember(snap.Binder)
			result.Version = snap.Version
			result.Remote = snap.Binder
			result.Delta = binder.ComputeDiff(pending, snap.Binder)
			if e.clearPending(pending) {
				if err := r.config.Local.SaveBinder(ctx, snap.Binder); err != nil {
					r.logger.Warn("Failed to cache pushed binder", "binderID", id, "error", err)
				}
			}
			r.logger.Debug("Binder pushed", "binderID", id, "version", snap.Version, "retries", result.Retries)
			r.dispatch(events.BinderSynced, id, events.SyncedEvent{
				Version:   snap.Version,
				Retries:   result.Retries,
				Conflicts: result.Conflicts,
				Dropped:   len(result.Dropped),
				Duration:  time.Since(started).Milliseconds(),
				Delta:     result.Delta,
				Remote:    snap.Binder.Clone(),
			})
			return result, nil
		}

		lastErr = err
		var conflict *remote.ConflictError
		if !errors.As(err, &conflict) {
			r.dispatch(events.SyncFailed, id, events.SyncFailedEvent{Error: err.Error(), Retries: result.Retries})
			return nil, err
		}
		r.config.Metrics.RecordConflict()
		if attempt == r.config.MaxRetries {
			break
		}

		fresh, err := r.fetch(ctx, id)
		if r.discarded(e) {
			return nil, errDiscarded
		}
		if errors.Is(err, remote.ErrNotFound) {
			base, diff, expected = nil, binder.ComputeDiff(nil, pending), 0
		} else if err != nil {
			return nil, err
		} else {
			e.remember(fresh.Binder)
			onto := Rebase(base, fresh.Binder, diff)
			r.noteRebase(id, result, onto, conflict.Expected, conflict.Current)
			base, diff, expected = fresh.Binder, onto.Diff, fresh.Version
		}
		result.Retries++
		r.config.Metrics.RecordRetry()
		r.logger.Info("Rebased onto newer remote copy", "binderID", id,
			"version", expected, "conflicts", len(result.Conflicts))
	}

	r.dispatch(events.SyncFailed, id, events.SyncFailedEvent{Error: lastErr.Error(), Retries: result.Retries})
	return nil, lastErr
}

// noteRebase folds a rebase into the result and reports overlaps.
func (r *Reconciler) noteRebase(id string, result *Result, onto Rebased, expected, current int64) {
	if len(onto.Conflicts) > 0 || len(onto.Dropped) > 0 || onto.SettingsConflict {
		r.dispatch(events.BinderConflict, id, events.ConflictEvent{
			ExpectedVersion: expected,
			CurrentVersion:  current,
			Positions:       onto.Conflicts,
		})
	}
	result.Conflicts = append(result.Conflicts, onto.Conflicts...)
	result.Dropped = append(result.Dropped, onto.Dropped...)
}

func (r *Reconciler) patch(ctx context.Context, id string, diff binder.Diff, expected int64) (*remote.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.FetchTimeout)
	defer cancel()
	return r.config.Remote.Patch(ctx, id, diff, expected)
}

func (r *Reconciler) fetch(ctx context.Context, id string) (*remote.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.FetchTimeout)
	defer cancel()
	return r.config.Remote.Fetch(ctx, id)
}

// FlushAll pushes every pending binder, returning the first error.
func (r *Reconciler) FlushAll(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if _, err := r.Flush(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Forget cancels in-flight work for a binder the user navigated away from.
// Unpushed edits stay in the local cache and are pushed on the next Open.
func (r *Reconciler) Forget(id string) {
	r.mu.Lock()
	e := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if e != nil {
		e.cancel()
	}
}

// Delete removes a binder locally and remotely. Responses still in flight
// for it are discarded.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	r.tombstones[id] = struct{}{}
	r.mu.Unlock()
	r.Forget(id)

	if err := r.config.Local.DeleteBinder(ctx, id); err != nil {
		return fmt.Errorf("failed to delete local binder %s: %w", id, err)
	}
	if r.config.Remote != nil {
		if err := r.config.Remote.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete remote binder %s: %w", id, err)
		}
	}
	r.dispatch(events.BinderDeleted, id, struct{}{})
	return nil
}

// Watch follows change notifications from stores that support them and
// re-checks open binders. It returns immediately when the store cannot watch.
func (r *Reconciler) Watch(ctx context.Context) error {
	w, ok := r.config.Remote.(remote.Watcher)
	if !ok {
		return nil
	}
	ids, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for id := range ids {
			e := r.lookup(id)
			if e == nil {
				continue
			}
			local, err := r.config.Local.LoadBinder(ctx, id)
			if err != nil {
				continue
			}
			r.refresh(e, local)
		}
	}()
	return nil
}

// Close cancels background work and waits for it to stop.
func (r *Reconciler) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Reconciler) open(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		return e
	}
	ctx, cancel := context.WithCancel(r.ctx)
	e := &entry{
		id:       id,
		ctx:      ctx,
		cancel:   cancel,
		bases:    make(map[int64]*binder.Binder),
		schedule: debounce.New(r.config.Debounce),
	}
	r.entries[id] = e
	return e
}

func (r *Reconciler) lookup(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

func (r *Reconciler) deleted(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tombstones[id]
	return ok
}

func (r *Reconciler) discarded(e *entry) bool {
	return e.ctx.Err() != nil || r.deleted(e.id)
}

func (r *Reconciler) dispatch(eventType, id string, data any) {
	if r.config.Events == nil {
		return
	}
	r.config.Events.Dispatch(events.NewTypedEvent(r.ctx, eventType, id, data))
}

// remember records a remote copy as a possible diff base.
func (e *entry) remember(b *binder.Binder) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bases[b.Version] = b.Clone()
	e.known = max(e.known, b.Version)
	for len(e.bases) > maxBases {
		oldest := b.Version
		for v := range e.bases {
			oldest = min(oldest, v)
		}
		delete(e.bases, oldest)
	}
}

func (e *entry) knownVersion() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.known
}

func (e *entry) setPendingIfNone(b *binder.Binder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		e.pending = b.Clone()
	}
}

// clearPending drops pushed if no newer commit replaced it.
func (e *entry) clearPending(pushed *binder.Binder) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == pushed {
		e.pending = nil
		return true
	}
	return false
}
