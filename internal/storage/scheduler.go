package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig configures periodic cache backups.
type SchedulerConfig struct {
	// Interval between backups (e.g., 24*time.Hour).
	Interval time.Duration

	// Keep is how many backups to retain; 0 keeps all of them.
	Keep int

	// StartImmediately takes a backup as soon as the scheduler starts.
	StartImmediately bool

	// OnBackupComplete is called after each attempt.
	OnBackupComplete func(info *BackupInfo, err error)

	Logger *slog.Logger
}

// DefaultSchedulerConfig returns daily backups keeping the last seven.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Interval: 24 * time.Hour,
		Keep:     7,
	}
}

// BackupScheduler takes backups on a ticker until its context ends or Stop
// is called.
type BackupScheduler struct {
	manager *BackupManager
	config  *SchedulerConfig
	logger  *slog.Logger

	mu           sync.RWMutex
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
	lastBackup   time.Time
	lastError    error
	backupCount  int
	failureCount int
}

// NewBackupScheduler creates a scheduler. A nil config uses the defaults.
func NewBackupScheduler(manager *BackupManager, config *SchedulerConfig) *BackupScheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &BackupScheduler{manager: manager, config: config, logger: config.Logger}
}

// Start runs the scheduler in the background.
func (s *BackupScheduler) Start(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("backup interval must be positive: %s", s.config.Interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	go s.run(ctx, s.done)
	return nil
}

// Stop halts the scheduler and waits for a running backup to finish.
func (s *BackupScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *BackupScheduler) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	if s.config.StartImmediately {
		s.runBackup(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runBackup(ctx)
		}
	}
}

// runBackup takes one backup and prunes old ones. A started backup is not
// interrupted by Stop.
func (s *BackupScheduler) runBackup(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	info, err := s.manager.Backup(ctx)
	if err == nil {
		if removed, perr := s.manager.Prune(ctx, s.config.Keep); perr != nil {
			s.logger.Warn("Pruning backups failed", "error", perr)
		} else if removed > 0 {
			s.logger.Debug("Pruned backups", "removed", removed)
		}
	}

	s.mu.Lock()
	s.lastBackup = time.Now()
	s.lastError = err
	if err != nil {
		s.failureCount++
	} else {
		s.backupCount++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled backup failed", "error", err)
	} else {
		s.logger.Info("Backed up binder cache", "path", info.Path, "binders", info.Binders)
	}
	if s.config.OnBackupComplete != nil {
		s.config.OnBackupComplete(info, err)
	}
}

// SchedulerStatus reports the scheduler's state.
type SchedulerStatus struct {
	Running      bool          `json:"running"`
	Interval     time.Duration `json:"interval"`
	LastBackup   time.Time     `json:"lastBackup"`
	NextBackup   time.Time     `json:"nextBackup"`
	BackupCount  int           `json:"backupCount"`
	FailureCount int           `json:"failureCount"`
	LastError    string        `json:"lastError,omitempty"`
}

// Status returns the current scheduler status.
func (s *BackupScheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		Running:      s.running,
		Interval:     s.config.Interval,
		LastBackup:   s.lastBackup,
		BackupCount:  s.backupCount,
		FailureCount: s.failureCount,
	}
	if s.running && !s.lastBackup.IsZero() {
		status.NextBackup = s.lastBackup.Add(s.config.Interval)
	}
	if s.lastError != nil {
		status.LastError = s.lastError.Error()
	}
	return status
}

// IsRunning reports whether the scheduler is running.
func (s *BackupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
