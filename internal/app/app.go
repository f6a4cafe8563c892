// Package app wires the binder services together from a configuration.
// Both the API daemon and the command-line client start from here.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/ramonehamilton/binder-companion/internal/binder/clipboard"
	"github.com/ramonehamilton/binder-companion/internal/binder/sorting"
	"github.com/ramonehamilton/binder-companion/internal/catalog"
	"github.com/ramonehamilton/binder-companion/internal/config"
	"github.com/ramonehamilton/binder-companion/internal/editor"
	"github.com/ramonehamilton/binder-companion/internal/events"
	"github.com/ramonehamilton/binder-companion/internal/metrics"
	"github.com/ramonehamilton/binder-companion/internal/reconcile"
	"github.com/ramonehamilton/binder-companion/internal/remote"
	"github.com/ramonehamilton/binder-companion/internal/storage"
)

// Options adjust how the services are built.
type Options struct {
	// DataDir resolves empty storage paths. Default: config.Dir().
	DataDir string

	// Offline skips the catalog API; details come from the cache only.
	Offline bool

	// CatalogSource replaces the HTTP catalog client.
	CatalogSource catalog.Source

	// Remote replaces the store chosen from the sync configuration.
	Remote remote.Store
}

// App holds the running services.
type App struct {
	Config     *config.Config
	Storage    *storage.Service
	Backups    *storage.BackupManager
	Events     *events.EventDispatcher
	Metrics    *metrics.SyncMetrics
	Remote     remote.Store
	Reconciler *reconcile.Reconciler
	Catalog    *catalog.Service
	TypeOrder  *sorting.TypeOrderStore
	Editor     *editor.Manager

	logger    *slog.Logger
	scheduler *storage.BackupScheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

// New builds every service from cfg. The caller must Close the result.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if opts.DataDir == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		opts.DataDir = dir
	}
	cfg.ResolvePaths(opts.DataDir)

	a := &App{
		Config:  cfg,
		Events:  events.NewEventDispatcher(),
		Metrics: metrics.NewSyncMetrics(),
		logger:  newLogger(cfg.App.DebugMode),
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.openStorage(); err != nil {
		a.cancel()
		return nil, err
	}
	if err := a.build(opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (a *App) openStorage() error {
	path := a.Config.Storage.DatabasePath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	dbConfig := storage.DefaultConfig(path)
	if a.Config.Storage.JournalMode != "" {
		dbConfig.JournalMode = a.Config.Storage.JournalMode
	}
	db, err := storage.Open(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.Storage = storage.NewService(db)
	a.Backups = storage.NewBackupManager(db, a.Config.Storage.BackupDir)
	return nil
}

func (a *App) build(opts Options) error {
	cfg := a.Config

	store, err := a.remoteStore(opts)
	if err != nil {
		return err
	}
	a.Remote = store

	debounce, _ := cfg.GetSyncDebounce()
	fetchTimeout, _ := cfg.GetSyncFetchTimeout()
	a.Reconciler, err = reconcile.New(reconcile.Config{
		Local:        a.Storage,
		Remote:       store,
		Events:       a.Events,
		Metrics:      a.Metrics,
		Logger:       a.logger.With("component", "reconcile"),
		Debounce:     debounce,
		MaxRetries:   cfg.Sync.MaxRetries,
		FetchTimeout: fetchTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %w", err)
	}
	if err := a.Reconciler.Watch(a.ctx); err != nil {
		log.Printf("[App] Remote change notifications unavailable: %v", err)
	}

	source := opts.CatalogSource
	if source == nil && !opts.Offline && cfg.Catalog.BaseURL != "" {
		rateInterval, _ := cfg.GetCatalogRateInterval()
		timeout, _ := cfg.GetCatalogTimeout()
		source = catalog.NewClient(catalog.ClientConfig{
			BaseURL:      cfg.Catalog.BaseURL,
			APIKey:       cfg.Catalog.APIKey,
			RateInterval: rateInterval,
			Timeout:      timeout,
			MaxRetries:   cfg.Catalog.MaxRetries,
		})
	}
	a.Catalog = catalog.NewService(catalog.Config{
		Source:  source,
		Cache:   a.Storage.Catalog(),
		Events:  a.Events,
		Metrics: a.Metrics,
		Logger:  a.logger.With("component", "catalog"),
	})

	a.TypeOrder = sorting.NewTypeOrderStore(a.Storage.Settings())
	if err := a.TypeOrder.Load(a.ctx); err != nil {
		log.Printf("[App] Using default type order: %v", err)
	}

	clipboards, err := clipboard.NewDiskStore(cfg.Storage.ScratchDir)
	if err != nil {
		return fmt.Errorf("failed to open clipboard scratch directory: %w", err)
	}

	a.Editor, err = editor.NewManager(editor.Config{
		Syncer:       a.Reconciler,
		Library:      a.Storage,
		Clipboards:   clipboards,
		Details:      a.Catalog,
		TypeOrder:    a.TypeOrder,
		Events:       a.Events,
		Logger:       a.logger.With("component", "editor"),
		Limits:       cfg.Limits(),
		HistoryDepth: cfg.Binder.HistoryDepth,
		DefaultGrid:  cfg.DefaultGrid(),
	})
	if err != nil {
		return fmt.Errorf("failed to create editor: %w", err)
	}
	a.Events.Register(a.Editor)

	if cfg.App.DebugMode {
		a.Events.Register(events.NewLoggingObserver(true))
	}
	return nil
}

// remoteStore picks the remote from the options or the sync configuration.
// A nil store keeps binders local.
func (a *App) remoteStore(opts Options) (remote.Store, error) {
	if opts.Remote != nil {
		return opts.Remote, nil
	}

	sync := a.Config.Sync
	switch {
	case sync.RemoteURL != "":
		timeout, _ := a.Config.GetSyncFetchTimeout()
		log.Printf("[App] Syncing binders with %s", sync.RemoteURL)
		return remote.NewHTTPStore(sync.RemoteURL,
			remote.WithHTTPClient(&http.Client{Timeout: timeout}),
		), nil
	case sync.RemoteDir != "":
		store, err := remote.NewDiskStore(sync.RemoteDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open remote directory: %w", err)
		}
		log.Printf("[App] Syncing binders through %s", sync.RemoteDir)
		return store, nil
	default:
		return nil, nil
	}
}

// StartBackups runs scheduled cache backups when an interval is configured.
// It reports whether a schedule was started.
func (a *App) StartBackups() (bool, error) {
	interval, err := a.Config.GetBackupInterval()
	if err != nil || interval == 0 {
		return false, err
	}
	a.scheduler = storage.NewBackupScheduler(a.Backups, &storage.SchedulerConfig{
		Interval: interval,
		Keep:     a.Config.Storage.BackupKeep,
		Logger:   a.logger.With("component", "backup"),
	})
	if err := a.scheduler.Start(a.ctx); err != nil {
		return false, fmt.Errorf("failed to start backup schedule: %w", err)
	}
	return true, nil
}

// BackupStatus reports the backup schedule, or nil when none runs.
func (a *App) BackupStatus() *storage.SchedulerStatus {
	if a.scheduler == nil {
		return nil
	}
	status := a.scheduler.Status()
	return &status
}

// Logger returns the structured logger the services share.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Close flushes open binders, then stops the reconciler and closes the
// database and remote store.
func (a *App) Close() error {
	var result *multierror.Error

	if a.Editor != nil {
		a.Editor.CloseAll(context.Background())
	}
	a.cancel()
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.Reconciler != nil {
		a.Reconciler.Close()
	}

	if closer, ok := a.Remote.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close remote: %w", err))
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close database: %w", err))
		}
	}
	return result.ErrorOrNil()
}
