package storage

import (
	"path/filepath"
	"testing"
)

// setupTestService creates a test service backed by a temporary database file.
func setupTestService(t *testing.T) *Service {
	t.Helper()
	service, _ := openFileService(t)
	return service
}

// openFileService opens a migrated cache file and returns it with its path.
func openFileService(t *testing.T) (*Service, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(DefaultConfig(dbPath))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	service := NewService(db)
	t.Cleanup(func() {
		_ = service.Close()
	})
	return service, dbPath
}
