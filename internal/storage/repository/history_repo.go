package repository

import (
	"context"
	"fmt"

	"github.com/ramonehamilton/binder-companion/internal/storage/models"
)

// HistoryRepository handles the undo log of each binder.
type HistoryRepository interface {
	// List returns a binder's entries oldest first.
	List(ctx context.Context, binderID string) ([]*models.HistoryEntry, error)

	// Replace swaps a binder's stored entries for the given ones.
	Replace(ctx context.Context, binderID string, entries []*models.HistoryEntry) error

	// DeleteByBinder removes every entry of a binder.
	DeleteByBinder(ctx context.Context, binderID string) error
}

type historyRepository struct {
	db DBTX
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db DBTX) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) List(ctx context.Context, binderID string) ([]*models.HistoryEntry, error) {
	query := `
		SELECT binder_id, entry_id, seq, description, snapshot, created_at
		FROM history_entries
		WHERE binder_id = ?
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, binderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", binderID, err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error - cleanup operation
	}()

	var entries []*models.HistoryEntry
	for rows.Next() {
		var (
			e         models.HistoryEntry
			snapshot  string
			createdAt string
		)
		if err := rows.Scan(&e.BinderID, &e.EntryID, &e.Seq, &e.Description, &snapshot, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Snapshot = []byte(snapshot)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return entries, nil
}

// Replace should run inside a transaction so readers never see a partial log.
func (r *historyRepository) Replace(ctx context.Context, binderID string, entries []*models.HistoryEntry) error {
	if err := r.DeleteByBinder(ctx, binderID); err != nil {
		return err
	}

	query := `
		INSERT INTO history_entries (binder_id, entry_id, seq, description, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for i, e := range entries {
		_, err := r.db.ExecContext(ctx, query,
			binderID, e.EntryID, i, e.Description, string(e.Snapshot), formatTime(e.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert history entry %d for %s: %w", e.EntryID, binderID, err)
		}
	}
	return nil
}

func (r *historyRepository) DeleteByBinder(ctx context.Context, binderID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM history_entries WHERE binder_id = ?", binderID); err != nil {
		return fmt.Errorf("failed to delete history for %s: %w", binderID, err)
	}
	return nil
}
