package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/history"
	"github.com/ramonehamilton/binder-companion/internal/storage/models"
	"github.com/ramonehamilton/binder-companion/internal/storage/repository"
)

// ErrBinderNotFound is returned when the cache has no copy of a binder.
var ErrBinderNotFound = repository.ErrBinderNotFound

// Service is the local binder cache. Writes are synchronous; every call
// returns once the data is committed.
type Service struct {
	db       *DB
	binders  repository.BinderRepository
	history  repository.HistoryRepository
	settings repository.SettingsRepository
	catalog  repository.CatalogRepository
}

// NewService creates a new storage service.
func NewService(db *DB) *Service {
	return &Service{
		db:       db,
		binders:  repository.NewBinderRepository(db.Conn()),
		history:  repository.NewHistoryRepository(db.Conn()),
		settings: repository.NewSettingsRepository(db.Conn()),
		catalog:  repository.NewCatalogRepository(db.Conn()),
	}
}

// LoadBinder returns the cached binder or ErrBinderNotFound.
func (s *Service) LoadBinder(ctx context.Context, id string) (*binder.Binder, error) {
	row, err := s.binders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeBinder(row)
}

// SaveBinder writes the binder, keeping any stored history.
func (s *Service) SaveBinder(ctx context.Context, b *binder.Binder) error {
	row, err := encodeBinder(b)
	if err != nil {
		return err
	}
	return s.binders.Upsert(ctx, row)
}

// SaveBinderWithHistory writes the binder and replaces its history in one
// transaction.
func (s *Service) SaveBinderWithHistory(ctx context.Context, b *binder.Binder, entries []history.Entry, cursor int) error {
	row, err := encodeBinder(b)
	if err != nil {
		return err
	}
	rows, err := encodeHistory(b.ID, entries)
	if err != nil {
		return err
	}

	return s.db.withRepos(ctx, func(r txRepos) error {
		if err := r.binders.Upsert(ctx, row); err != nil {
			return err
		}
		if err := r.history.Replace(ctx, b.ID, rows); err != nil {
			return err
		}
		return r.binders.SetHistoryCursor(ctx, b.ID, cursor)
	})
}

// LoadHistory returns a binder's stored entries and cursor. A binder without
// stored history yields no entries and cursor -1.
func (s *Service) LoadHistory(ctx context.Context, id string) ([]history.Entry, int, error) {
	row, err := s.binders.Get(ctx, id)
	if err != nil {
		return nil, -1, err
	}
	rows, err := s.history.List(ctx, id)
	if err != nil {
		return nil, -1, err
	}
	if len(rows) == 0 {
		return nil, -1, nil
	}

	entries := make([]history.Entry, 0, len(rows))
	for _, r := range rows {
		var snapshot binder.State
		if err := json.Unmarshal(r.Snapshot, &snapshot); err != nil {
			return nil, -1, fmt.Errorf("failed to decode history entry %d of %s: %w", r.EntryID, id, err)
		}
		entries = append(entries, history.Entry{
			ID:          r.EntryID,
			Timestamp:   r.CreatedAt,
			Description: r.Description,
			Snapshot:    snapshot,
		})
	}

	cursor := row.HistoryCursor
	if cursor < 0 || cursor >= len(entries) {
		cursor = len(entries) - 1
	}
	return entries, cursor, nil
}

// DeleteBinder removes a binder and, through the foreign key, its history.
// Deleting a missing binder is not an error.
func (s *Service) DeleteBinder(ctx context.Context, id string) error {
	return s.db.withRepos(ctx, func(r txRepos) error {
		if err := r.history.DeleteByBinder(ctx, id); err != nil {
			return err
		}
		return r.binders.Delete(ctx, id)
	})
}

// ListBinders returns summaries of every cached binder, most recent first.
func (s *Service) ListBinders(ctx context.Context) ([]*models.BinderSummary, error) {
	return s.binders.List(ctx)
}

// Settings returns the installation-wide settings repository.
func (s *Service) Settings() repository.SettingsRepository {
	return s.settings
}

// Catalog returns the catalog cache repository.
func (s *Service) Catalog() repository.CatalogRepository {
	return s.catalog
}

// DB returns the underlying database.
func (s *Service) DB() *DB {
	return s.db
}

// Close closes the database connection.
func (s *Service) Close() error {
	return s.db.Close()
}

func encodeBinder(b *binder.Binder) (*models.Binder, error) {
	doc, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode binder %s: %w", b.ID, err)
	}
	return &models.Binder{
		ID:          b.ID,
		Name:        b.Metadata.Name,
		Description: b.Metadata.Description,
		GridSize:    string(b.Settings.GridSize.Name),
		PageCount:   b.Settings.PageCount,
		CardCount:   b.Cards.Len(),
		Version:     b.Version,
		Document:    doc,
		CreatedAt:   b.Metadata.CreatedAt,
		ModifiedAt:  b.ModifiedAt,
	}, nil
}

func decodeBinder(row *models.Binder) (*binder.Binder, error) {
	var b binder.Binder
	if err := json.Unmarshal(row.Document, &b); err != nil {
		return nil, fmt.Errorf("failed to decode binder %s: %w", row.ID, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("cached binder %s is corrupt: %w", row.ID, err)
	}
	return &b, nil
}

func encodeHistory(binderID string, entries []history.Entry) ([]*models.HistoryEntry, error) {
	rows := make([]*models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		snapshot, err := json.Marshal(e.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to encode history entry %d: %w", e.ID, err)
		}
		rows = append(rows, &models.HistoryEntry{
			BinderID:    binderID,
			EntryID:     e.ID,
			Description: e.Description,
			Snapshot:    snapshot,
			CreatedAt:   e.Timestamp,
		})
	}
	return rows, nil
}
