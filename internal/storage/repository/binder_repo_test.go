package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ramonehamilton/binder-companion/internal/storage/models"
)

func setupBinderTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE binders (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			grid_size TEXT NOT NULL,
			page_count INTEGER NOT NULL,
			card_count INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0,
			history_cursor INTEGER NOT NULL DEFAULT -1,
			document TEXT NOT NULL,
			created_at TEXT NOT NULL,
			modified_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE history_entries (
			binder_id TEXT NOT NULL,
			entry_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			description TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (binder_id, entry_id),
			FOREIGN KEY (binder_id) REFERENCES binders(id) ON DELETE CASCADE
		);
		CREATE TABLE catalog_cards (
			card_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL,
			fetched_at TEXT NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}
	return db
}

func testBinderRow(id string, modified time.Time) *models.Binder {
	return &models.Binder{
		ID:         id,
		Name:       "Binder " + id,
		GridSize:   "3x3",
		PageCount:  1,
		CardCount:  2,
		Document:   []byte(`{"id":"` + id + `"}`),
		CreatedAt:  modified.Add(-time.Hour),
		ModifiedAt: modified,
	}
}

func TestBinderRepository_UpsertAndGet(t *testing.T) {
	db := setupBinderTestDB(t)
	repo := NewBinderRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	row := testBinderRow("b1", now)
	if err := repo.Upsert(ctx, row); err != nil {
		t.Fatalf("Failed to upsert binder: %v", err)
	}

	got, err := repo.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("Failed to get binder: %v", err)
	}
	if got.Name != "Binder b1" || got.CardCount != 2 {
		t.Errorf("Unexpected row: %+v", got)
	}
	if !got.ModifiedAt.Equal(now) {
		t.Errorf("Expected modified %v, got %v", now, got.ModifiedAt)
	}
	if got.HistoryCursor != -1 {
		t.Errorf("Expected default cursor -1, got %d", got.HistoryCursor)
	}

	row.Name = "Renamed"
	row.Version = 3
	if err := repo.Upsert(ctx, row); err != nil {
		t.Fatalf("Failed to update binder: %v", err)
	}
	got, _ = repo.Get(ctx, "b1")
	if got.Name != "Renamed" || got.Version != 3 {
		t.Errorf("Update not applied: %+v", got)
	}
}

func TestBinderRepository_GetMissing(t *testing.T) {
	db := setupBinderTestDB(t)
	repo := NewBinderRepository(db)

	_, err := repo.Get(context.Background(), "nope")
	if !errors.Is(err, ErrBinderNotFound) {
		t.Errorf("Expected ErrBinderNotFound, got %v", err)
	}
	if err := repo.SetHistoryCursor(context.Background(), "nope", 2); !errors.Is(err, ErrBinderNotFound) {
		t.Errorf("Expected ErrBinderNotFound from SetHistoryCursor, got %v", err)
	}
}

func TestBinderRepository_ListOrdersByModified(t *testing.T) {
	db := setupBinderTestDB(t)
	repo := NewBinderRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "mid"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		if err := repo.Upsert(ctx, testBinderRow(id, base.Add(offsets[i]))); err != nil {
			t.Fatalf("Failed to upsert %s: %v", id, err)
		}
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list binders: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 binders, got %d", len(list))
	}
	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}
}

func TestHistoryRepository_ReplaceAndCascade(t *testing.T) {
	db := setupBinderTestDB(t)
	binders := NewBinderRepository(db)
	history := NewHistoryRepository(db)
	ctx := context.Background()

	if err := binders.Upsert(ctx, testBinderRow("b1", time.Now())); err != nil {
		t.Fatalf("Failed to upsert binder: %v", err)
	}

	entries := []*models.HistoryEntry{
		{EntryID: 4, Description: "Open", Snapshot: []byte(`{}`), CreatedAt: time.Now()},
		{EntryID: 5, Description: "Place", Snapshot: []byte(`{}`), CreatedAt: time.Now()},
	}
	if err := history.Replace(ctx, "b1", entries); err != nil {
		t.Fatalf("Failed to replace history: %v", err)
	}
	if err := history.Replace(ctx, "b1", entries[1:]); err != nil {
		t.Fatalf("Failed to replace history again: %v", err)
	}

	got, err := history.List(ctx, "b1")
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(got) != 1 || got[0].EntryID != 5 {
		t.Fatalf("Expected only entry 5, got %+v", got)
	}

	if err := binders.Delete(ctx, "b1"); err != nil {
		t.Fatalf("Failed to delete binder: %v", err)
	}
	got, _ = history.List(ctx, "b1")
	if len(got) != 0 {
		t.Errorf("Expected history to cascade, %d entries left", len(got))
	}
}

func TestCatalogRepository(t *testing.T) {
	db := setupBinderTestDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "sv1-1"); !errors.Is(err, ErrCatalogCardNotCached) {
		t.Errorf("Expected ErrCatalogCardNotCached, got %v", err)
	}

	card := &models.CatalogCard{CardID: "sv1-1", Name: "Sprigatito", Data: []byte(`{"id":"sv1-1"}`), FetchedAt: time.Now()}
	if err := repo.Put(ctx, card); err != nil {
		t.Fatalf("Failed to cache card: %v", err)
	}
	got, err := repo.Get(ctx, "sv1-1")
	if err != nil {
		t.Fatalf("Failed to get cached card: %v", err)
	}
	if string(got.Data) != `{"id":"sv1-1"}` {
		t.Errorf("Unexpected data %s", got.Data)
	}

	n, _ := repo.Count(ctx)
	if n != 1 {
		t.Errorf("Expected 1 cached card, got %d", n)
	}
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	n, _ = repo.Count(ctx)
	if n != 0 {
		t.Errorf("Expected empty cache, got %d", n)
	}
}
