// Package config loads and saves the TOML configuration file at
// ~/.binder-companion/config.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

const dirName = ".binder-companion"

// Config represents the application configuration.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Binder  BinderConfig  `toml:"binder"`
	Sync    SyncConfig    `toml:"sync"`
	Catalog CatalogConfig `toml:"catalog"`
	API     APIConfig     `toml:"api"`
	App     AppConfig     `toml:"app"`
}

// StorageConfig locates the local cache and scratch storage.
type StorageConfig struct {
	DatabasePath string `toml:"database_path"` // SQLite cache (empty = <data dir>/binders.db)
	ScratchDir   string `toml:"scratch_dir"`   // Clipboard scratch files (empty = <data dir>/scratch)
	JournalMode  string `toml:"journal_mode"`  // SQLite journal mode

	BackupDir      string `toml:"backup_dir"`      // Cache backups (empty = <data dir>/backups)
	BackupInterval string `toml:"backup_interval"` // Scheduled backups in the daemon (empty = off)
	BackupKeep     int    `toml:"backup_keep"`     // Backups to retain (0 = all)
}

// BinderConfig holds defaults and limits for binders.
type BinderConfig struct {
	DefaultGrid  string `toml:"default_grid"`  // Grid for new binders (e.g., "3x3")
	HistoryDepth int    `toml:"history_depth"` // Undo entries kept per binder
	MaxPages     int    `toml:"max_pages"`     // Card pages per binder (0 = unlimited)
	MaxCards     int    `toml:"max_cards"`     // Cards per binder (0 = unlimited)
}

// SyncConfig configures the remote copy. With neither RemoteURL nor
// RemoteDir set, binders stay local.
type SyncConfig struct {
	RemoteURL    string `toml:"remote_url"`    // HTTP document server
	RemoteDir    string `toml:"remote_dir"`    // Shared directory (e.g., a synced folder)
	Debounce     string `toml:"debounce"`      // Delay before pushing edits (e.g., "2s")
	MaxRetries   int    `toml:"max_retries"`   // Rebase attempts on version conflicts
	FetchTimeout string `toml:"fetch_timeout"` // Per-request timeout (e.g., "10s")
}

// CatalogConfig configures the card catalog client.
type CatalogConfig struct {
	BaseURL      string `toml:"base_url"`      // Catalog REST API
	APIKey       string `toml:"api_key"`       // Optional API key
	RateInterval string `toml:"rate_interval"` // Minimum spacing between requests
	Timeout      string `toml:"timeout"`       // Per-request timeout
	MaxRetries   int    `toml:"max_retries"`   // Retries on transient failures
}

// APIConfig configures the local JSON API.
type APIConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// AppConfig contains general application settings.
type AppConfig struct {
	DebugMode bool `toml:"debug_mode"` // Enable debug logging
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			JournalMode: "WAL",
			BackupKeep:  7,
		},
		Binder: BinderConfig{
			DefaultGrid:  string(binder.Grid3x3),
			HistoryDepth: 50,
			MaxPages:     100,
			MaxCards:     0,
		},
		Sync: SyncConfig{
			Debounce:     "2s",
			MaxRetries:   3,
			FetchTimeout: "10s",
		},
		Catalog: CatalogConfig{
			BaseURL:      "https://api.pokemontcg.io/v2",
			RateInterval: "100ms",
			Timeout:      "15s",
			MaxRetries:   3,
		},
		API: APIConfig{
			Port:        8765,
			CORSOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
	}
}

// Dir returns the data directory, creating it if needed.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	dir := filepath.Join(homeDir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// Path returns the default configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads the configuration from the default path.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration at path. A missing file yields the
// defaults; keys absent from the file keep their default values.
func LoadFrom(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if _, err := binder.LookupGrid(binder.GridName(c.Binder.DefaultGrid)); err != nil {
		return fmt.Errorf("invalid default grid: %w", err)
	}
	if c.Binder.HistoryDepth < 1 {
		return fmt.Errorf("history depth must be at least 1: %d", c.Binder.HistoryDepth)
	}
	if c.Binder.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative: %d", c.Binder.MaxPages)
	}
	if c.Binder.MaxCards < 0 {
		return fmt.Errorf("max cards cannot be negative: %d", c.Binder.MaxCards)
	}

	for name, value := range map[string]string{
		"sync debounce":         c.Sync.Debounce,
		"sync fetch timeout":    c.Sync.FetchTimeout,
		"catalog rate interval": c.Catalog.RateInterval,
		"catalog timeout":       c.Catalog.Timeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}

	if c.Storage.BackupInterval != "" {
		d, err := time.ParseDuration(c.Storage.BackupInterval)
		if err != nil {
			return fmt.Errorf("invalid backup interval %q: %w", c.Storage.BackupInterval, err)
		}
		if d < time.Minute {
			return fmt.Errorf("backup interval must be at least 1m: %s", d)
		}
	}
	if c.Storage.BackupKeep < 0 {
		return fmt.Errorf("backup keep cannot be negative: %d", c.Storage.BackupKeep)
	}

	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync max retries cannot be negative: %d", c.Sync.MaxRetries)
	}
	if c.Sync.RemoteURL != "" && c.Sync.RemoteDir != "" {
		return fmt.Errorf("set either sync remote_url or remote_dir, not both")
	}
	if c.Catalog.MaxRetries < 0 {
		return fmt.Errorf("catalog max retries cannot be negative: %d", c.Catalog.MaxRetries)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port: %d", c.API.Port)
	}
	return nil
}

// Limits returns the binder limits.
func (c *Config) Limits() binder.Limits {
	return binder.Limits{MaxPages: c.Binder.MaxPages, MaxCards: c.Binder.MaxCards}
}

// DefaultGrid returns the grid for new binders, falling back to 3x3.
func (c *Config) DefaultGrid() binder.GridConfig {
	grid, err := binder.LookupGrid(binder.GridName(c.Binder.DefaultGrid))
	if err != nil {
		return binder.MustGrid(binder.Grid3x3)
	}
	return grid
}

// GetSyncDebounce returns the debounce delay as a duration.
func (c *Config) GetSyncDebounce() (time.Duration, error) {
	return time.ParseDuration(c.Sync.Debounce)
}

// GetSyncFetchTimeout returns the remote request timeout as a duration.
func (c *Config) GetSyncFetchTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Sync.FetchTimeout)
}

// GetCatalogRateInterval returns the catalog request spacing as a duration.
func (c *Config) GetCatalogRateInterval() (time.Duration, error) {
	return time.ParseDuration(c.Catalog.RateInterval)
}

// GetCatalogTimeout returns the catalog request timeout as a duration.
func (c *Config) GetCatalogTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Catalog.Timeout)
}

// GetBackupInterval returns the scheduled backup interval; zero means
// scheduled backups are off.
func (c *Config) GetBackupInterval() (time.Duration, error) {
	if c.Storage.BackupInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Storage.BackupInterval)
}

// ResolvePaths fills empty storage paths relative to dataDir.
func (c *Config) ResolvePaths(dataDir string) {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(dataDir, "binders.db")
	}
	if c.Storage.ScratchDir == "" {
		c.Storage.ScratchDir = filepath.Join(dataDir, "scratch")
	}
	if c.Storage.BackupDir == "" {
		c.Storage.BackupDir = filepath.Join(dataDir, "backups")
	}
}
