package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/clipboard"
	"github.com/ramonehamilton/binder-companion/internal/binder/history"
	"github.com/ramonehamilton/binder-companion/internal/binder/sorting"
	"github.com/ramonehamilton/binder-companion/internal/events"
	"github.com/ramonehamilton/binder-companion/internal/reconcile"
	"github.com/ramonehamilton/binder-companion/internal/storage/models"
	"github.com/ramonehamilton/binder-companion/internal/transfer"
)

// ErrNotOpen is returned for binders without an open session.
var ErrNotOpen = errors.New("binder is not open")

// Library lists binders and reads their stored history.
// *storage.Service implements it.
type Library interface {
	ListBinders(ctx context.Context) ([]*models.BinderSummary, error)
	LoadHistory(ctx context.Context, id string) ([]history.Entry, int, error)
}

// Config configures a Manager.
type Config struct {
	Syncer     Syncer
	Library    Library         // nil disables listing and history restore
	Clipboards clipboard.Store // default: in memory
	Details    DetailsSource   // nil sorts every card as unknown
	TypeOrder  *sorting.TypeOrderStore
	Events     events.Dispatcher
	Logger     *slog.Logger

	Limits       binder.Limits
	HistoryDepth int               // default: history.DefaultMaxDepth
	DefaultGrid  binder.GridConfig // default: 3x3
}

// Manager keeps one session per open binder and routes sync events to them.
// Register it with the event dispatcher so pushes reach the sessions.
type Manager struct {
	deps        *deps
	lib         Library
	logger      *slog.Logger
	defaultGrid binder.GridConfig

	mu       sync.Mutex
	sessions map[string]*Session
	opening  map[string]*opening
}

// NewManager creates a session manager.
func NewManager(config Config) (*Manager, error) {
	if config.Syncer == nil {
		return nil, fmt.Errorf("syncer is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clipboards == nil {
		config.Clipboards = clipboard.NewMemoryStore()
	}
	if config.TypeOrder == nil {
		config.TypeOrder = sorting.NewTypeOrderStore(nil)
	}
	if config.HistoryDepth <= 0 {
		config.HistoryDepth = history.DefaultMaxDepth
	}
	if config.DefaultGrid.Total == 0 {
		config.DefaultGrid = binder.MustGrid(binder.DefaultGrid)
	}

	return &Manager{
		deps: &deps{
			syncer:     config.Syncer,
			clipboards: config.Clipboards,
			details:    config.Details,
			typeOrder:  config.TypeOrder,
			events:     config.Events,
			limits:     config.Limits,
			depth:      config.HistoryDepth,
		},
		lib:         config.Library,
		logger:      config.Logger,
		defaultGrid: config.DefaultGrid,
		sessions:    make(map[string]*Session),
		opening:     make(map[string]*opening),
	}, nil
}

// TypeOrder returns the process-wide type-order table store.
func (m *Manager) TypeOrder() *sorting.TypeOrderStore {
	return m.deps.typeOrder
}

// Limits returns the configured size limits.
func (m *Manager) Limits() binder.Limits {
	return m.deps.limits
}

// Create makes a new empty binder and opens it. An empty grid name uses the
// configured default.
func (m *Manager) Create(ctx context.Context, name string, gridName binder.GridName) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("binder name cannot be empty")
	}
	grid := m.defaultGrid
	if gridName != "" {
		var err error
		if grid, err = binder.LookupGrid(gridName); err != nil {
			return nil, err
		}
	}

	b := binder.New(name, grid)
	hist := history.New(m.deps.depth)
	hist.Record("Create binder", b.Snapshot())
	return m.start(ctx, b, hist, clipboard.New())
}

// opening tracks a binder being loaded. Sync events that arrive meanwhile
// are kept and replayed once the session exists.
type opening struct {
	done    chan struct{}
	session *Session
	err     error
	missed  []events.Event
}

// Open returns the session for a binder, opening it if needed. Concurrent
// opens of one binder share the load; other binders are not held up.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	if op, ok := m.opening[id]; ok {
		m.mu.Unlock()
		select {
		case <-op.done:
			return op.session, op.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	op := &opening{done: make(chan struct{})}
	m.opening[id] = op
	m.mu.Unlock()

	s, err := m.load(ctx, id)

	m.mu.Lock()
	delete(m.opening, id)
	if err == nil {
		m.sessions[id] = s
	}
	op.session, op.err = s, err
	missed := op.missed
	op.missed = nil
	m.mu.Unlock()
	close(op.done)

	if err != nil {
		return nil, err
	}
	for _, event := range missed {
		if err := m.deliver(s, event); err != nil {
			m.logger.Warn("Failed to apply sync event", "binderID", id, "event", event.Type, "error", err)
		}
	}
	return s, nil
}

func (m *Manager) load(ctx context.Context, id string) (*Session, error) {
	b, err := m.deps.syncer.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	hist := m.loadHistory(ctx, b)

	items, err := m.deps.clipboards.Load(id)
	if err != nil {
		m.logger.Warn("Failed to load clipboard", "binderID", id, "error", err)
	}
	return newSession(m.deps, m.logger, b, hist, clipboard.FromItems(items)), nil
}

// loadHistory restores stored history. A base entry is recorded when the
// stored cursor does not describe the opened state, so undo always leads
// back to what was opened.
func (m *Manager) loadHistory(ctx context.Context, b *binder.Binder) *history.History {
	base := func(h *history.History) *history.History {
		h.Record("Open", b.Snapshot())
		return h
	}
	if m.lib == nil {
		return base(history.New(m.deps.depth))
	}

	entries, cursor, err := m.lib.LoadHistory(ctx, b.ID)
	if err != nil || len(entries) == 0 {
		return base(history.New(m.deps.depth))
	}
	hist, err := history.Restore(entries, cursor, m.deps.depth)
	if err != nil {
		m.logger.Warn("Discarding unreadable history", "binderID", b.ID, "error", err)
		return base(history.New(m.deps.depth))
	}

	current, ok := hist.Current()
	if !ok || !current.Snapshot.Cards.Equal(b.Cards) || !binder.SettingsEqual(current.Snapshot.Settings, b.Settings) {
		return base(hist)
	}
	return hist
}

// start commits a new binder and registers its session.
func (m *Manager) start(ctx context.Context, b *binder.Binder, hist *history.History, clip *clipboard.Clipboard) (*Session, error) {
	journal := &reconcile.Journal{Entries: hist.Entries(), Cursor: hist.Cursor()}
	if err := m.deps.syncer.Commit(ctx, b, journal); err != nil {
		return nil, fmt.Errorf("failed to save binder %s: %w", b.ID, err)
	}

	s := newSession(m.deps, m.logger, b, hist, clip)
	if clip.Len() > 0 {
		s.saveClipboard()
	}

	s.changed(ctx, journal.Entries[journal.Cursor].Description)

	m.mu.Lock()
	m.sessions[b.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, id)
	}
	return s, nil
}

// Sessions returns the ids of open binders.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// List returns summaries of every locally cached binder.
func (m *Manager) List(ctx context.Context) ([]*models.BinderSummary, error) {
	if m.lib == nil {
		return nil, fmt.Errorf("binder listing is not available")
	}
	return m.lib.ListBinders(ctx)
}

// Close pushes pending changes and closes the session. Push failures are
// logged; the changes stay cached and are pushed on the next open.
func (m *Manager) Close(ctx context.Context, id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	if _, err := m.deps.syncer.Flush(ctx, id); err != nil {
		m.logger.Warn("Push on close failed", "binderID", id, "error", err)
	}
	m.deps.syncer.Forget(id)
}

// CloseAll closes every session.
func (m *Manager) CloseAll(ctx context.Context) {
	for _, id := range m.Sessions() {
		m.Close(ctx, id)
	}
}

// Delete removes a binder everywhere: session, local cache with its
// history, clipboard scratch and remote copy. Catalog data is kept.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if err := m.deps.clipboards.Delete(id); err != nil {
		m.logger.Warn("Failed to delete clipboard", "binderID", id, "error", err)
	}
	return m.deps.syncer.Delete(ctx, id)
}

// ExportOptions selects what an export carries.
type ExportOptions struct {
	History    bool
	Clipboard  bool
	Passphrase string // seals the document when set
}

// Export renders a binder as a transfer document, opening it if needed.
func (m *Manager) Export(ctx context.Context, id string, opts ExportOptions) ([]byte, error) {
	s, err := m.Open(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	b := s.b.Clone()
	var extra transfer.ExportOptions
	if opts.History {
		extra.History = s.hist
	}
	if opts.Clipboard {
		extra.Clipboard = s.clip.Items()
	}
	data, err := transfer.Export(b, extra)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if opts.Passphrase == "" {
		return data, nil
	}
	return transfer.Seal(data, transfer.DefaultSealConfig(opts.Passphrase))
}

// Import validates a plain or sealed document and opens it as a new binder.
func (m *Manager) Import(ctx context.Context, data []byte, passphrase string) (*Session, error) {
	var seal *transfer.SealConfig
	if passphrase != "" {
		seal = transfer.DefaultSealConfig(passphrase)
	}
	imported, err := transfer.Decode(data, seal, transfer.ImportOptions{
		Limits:       m.deps.limits,
		HistoryDepth: m.deps.depth,
	})
	if err != nil {
		return nil, err
	}

	hist := imported.History
	if hist == nil {
		hist = history.New(m.deps.depth)
	}
	hist.Record("Import", imported.Binder.Snapshot())
	return m.start(ctx, imported.Binder, hist, clipboard.FromItems(imported.Clipboard))
}

// OnEvent routes sync results to the owning session. Events for a binder
// still being opened are held until its session exists.
func (m *Manager) OnEvent(event events.Event) error {
	m.mu.Lock()
	s, ok := m.sessions[event.BinderID]
	if !ok {
		if op, loading := m.opening[event.BinderID]; loading {
			op.missed = append(op.missed, event)
		}
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.deliver(s, event)
}

func (m *Manager) deliver(s *Session, event events.Event) error {
	ctx := event.Context
	if ctx == nil {
		ctx = context.Background()
	}

	switch event.Type {
	case events.BinderSynced:
		if ev, ok := events.GetTypedData[events.SyncedEvent](event); ok {
			return s.ApplySynced(ctx, ev)
		}
	case events.BinderStale:
		if ev, ok := events.GetTypedData[events.StaleEvent](event); ok {
			s.ApplyStale(ev)
		}
	}
	return nil
}

// GetName returns the observer name.
func (m *Manager) GetName() string {
	return "EditorManager"
}

// ShouldHandle accepts the sync events sessions react to.
func (m *Manager) ShouldHandle(eventType string) bool {
	return eventType == events.BinderSynced || eventType == events.BinderStale
}
