package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ErrInvalidBackup is returned when a file is not a readable binder cache.
var ErrInvalidBackup = errors.New("invalid cache backup")

const backupExt = ".db"

// BackupManager writes point-in-time copies of the binder cache and
// restores them.
type BackupManager struct {
	db  *DB
	dir string
	now func() time.Time
}

// NewBackupManager creates a manager writing into dir. db may be nil when
// the manager only lists or restores.
func NewBackupManager(db *DB, dir string) *BackupManager {
	return &BackupManager{db: db, dir: dir, now: time.Now}
}

// BackupDir returns the default backup directory for a database path.
func BackupDir(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "backups")
}

// BackupInfo describes one backup file.
type BackupInfo struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	Binders   int       `json:"binders"`
	Checksum  string    `json:"checksum,omitempty"`
}

// Dir returns the backup directory.
func (m *BackupManager) Dir() string {
	return m.dir
}

// Backup copies the open cache with VACUUM INTO, which needs no exclusive
// lock, and verifies the copy. An unreadable copy is removed.
func (m *BackupManager) Backup(ctx context.Context) (*BackupInfo, error) {
	if m.db == nil {
		return nil, fmt.Errorf("backup needs an open database")
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := "binders_" + m.now().UTC().Format("20060102_150405.000")
	name = strings.ReplaceAll(name, ".", "_") + backupExt
	path := filepath.Join(m.dir, name)

	if _, err := m.db.conn.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	info, err := describeBackup(ctx, path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("backup verification failed: %w", err)
	}
	return info, nil
}

// List returns the backups in the directory, newest first.
func (m *BackupManager) List(ctx context.Context) ([]BackupInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := make([]BackupInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != backupExt {
			continue
		}
		info, err := describeBackup(ctx, filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}
		backups = append(backups, *info)
	}

	slices.SortFunc(backups, func(a, b BackupInfo) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Name, a.Name)
	})
	return backups, nil
}

// Prune removes all but the newest keep backups and returns how many it
// removed. keep <= 0 keeps everything.
func (m *BackupManager) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	backups, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, b := range backups[min(keep, len(backups)):] {
		if err := os.Remove(b.Path); err != nil {
			return removed, fmt.Errorf("failed to remove backup %s: %w", b.Name, err)
		}
		removed++
	}
	return removed, nil
}

// VerifyBackup checks that path is an intact binder cache and returns its
// details.
func VerifyBackup(ctx context.Context, path string) (*BackupInfo, error) {
	return describeBackup(ctx, path)
}

func describeBackup(ctx context.Context, path string) (*BackupInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	defer func() { _ = conn.Close() }()

	var check string
	if err := conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&check); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if check != "ok" {
		return nil, fmt.Errorf("%w: integrity check: %s", ErrInvalidBackup, check)
	}

	var binders int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM binders").Scan(&binders); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	checksum, err := fileChecksum(path)
	if err != nil {
		return nil, err
	}

	return &BackupInfo{
		Path:      path,
		Name:      filepath.Base(path),
		Size:      stat.Size(),
		CreatedAt: stat.ModTime(),
		Binders:   binders,
		Checksum:  checksum,
	}, nil
}

// RestoreBackup replaces the cache at dbPath with a verified backup. The
// cache must be closed. The replaced file is kept beside it with an .old
// suffix.
func RestoreBackup(ctx context.Context, backupPath, dbPath string) error {
	if _, err := VerifyBackup(ctx, backupPath); err != nil {
		return err
	}

	tempPath := dbPath + ".restore.tmp"
	if err := copyFile(backupPath, tempPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to copy backup: %w", err)
	}

	if _, err := os.Stat(dbPath); err == nil {
		old := dbPath + ".old." + time.Now().Format("20060102_150405")
		if err := os.Rename(dbPath, old); err != nil {
			_ = os.Remove(tempPath)
			return fmt.Errorf("failed to move current cache aside: %w", err)
		}
		// Journal files belong to the replaced database.
		for _, suffix := range []string{"-wal", "-shm"} {
			_ = os.Remove(dbPath + suffix)
		}
	}

	if err := os.Rename(tempPath, dbPath); err != nil {
		return fmt.Errorf("failed to replace cache with backup: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
