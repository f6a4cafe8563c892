package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ramonehamilton/binder-companion/internal/storage/models"
)

// ErrBinderNotFound is returned when a binder row does not exist.
var ErrBinderNotFound = errors.New("binder not found")

// BinderRepository handles binder rows.
type BinderRepository interface {
	// Get returns the binder row or ErrBinderNotFound.
	Get(ctx context.Context, id string) (*models.Binder, error)

	// Upsert inserts or replaces a binder row. The stored history cursor is
	// left untouched on update.
	Upsert(ctx context.Context, b *models.Binder) error

	// Delete removes a binder row; history rows cascade.
	Delete(ctx context.Context, id string) error

	// List returns summaries ordered by most recently modified.
	List(ctx context.Context) ([]*models.BinderSummary, error)

	// SetHistoryCursor stores the undo cursor for a binder.
	SetHistoryCursor(ctx context.Context, id string, cursor int) error
}

type binderRepository struct {
	db DBTX
}

// NewBinderRepository creates a new binder repository.
func NewBinderRepository(db DBTX) BinderRepository {
	return &binderRepository{db: db}
}

func (r *binderRepository) Get(ctx context.Context, id string) (*models.Binder, error) {
	query := `
		SELECT id, name, description, grid_size, page_count, card_count, version,
		       history_cursor, document, created_at, modified_at, updated_at
		FROM binders
		WHERE id = ?
	`

	var (
		b                                 models.Binder
		document                          string
		createdAt, modifiedAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Name, &b.Description, &b.GridSize, &b.PageCount, &b.CardCount, &b.Version,
		&b.HistoryCursor, &document, &createdAt, &modifiedAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrBinderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get binder %s: %w", id, err)
	}

	b.Document = []byte(document)
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *binderRepository) Upsert(ctx context.Context, b *models.Binder) error {
	query := `
		INSERT INTO binders (
			id, name, description, grid_size, page_count, card_count, version,
			document, created_at, modified_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			grid_size = excluded.grid_size,
			page_count = excluded.page_count,
			card_count = excluded.card_count,
			version = excluded.version,
			document = excluded.document,
			modified_at = excluded.modified_at,
			updated_at = excluded.updated_at
	`

	b.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.Name, b.Description, b.GridSize, b.PageCount, b.CardCount, b.Version,
		string(b.Document), formatTime(b.CreatedAt), formatTime(b.ModifiedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save binder %s: %w", b.ID, err)
	}
	return nil
}

func (r *binderRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM binders WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete binder %s: %w", id, err)
	}
	return nil
}

func (r *binderRepository) List(ctx context.Context) ([]*models.BinderSummary, error) {
	query := `
		SELECT id, name, grid_size, page_count, card_count, version, modified_at
		FROM binders
		ORDER BY modified_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list binders: %w", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error - cleanup operation
	}()

	var summaries []*models.BinderSummary
	for rows.Next() {
		var (
			s          models.BinderSummary
			modifiedAt string
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.GridSize, &s.PageCount, &s.CardCount, &s.Version, &modifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan binder: %w", err)
		}
		if s.ModifiedAt, err = parseTime(modifiedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating binders: %w", err)
	}
	return summaries, nil
}

func (r *binderRepository) SetHistoryCursor(ctx context.Context, id string, cursor int) error {
	result, err := r.db.ExecContext(ctx, "UPDATE binders SET history_cursor = ? WHERE id = ?", cursor, id)
	if err != nil {
		return fmt.Errorf("failed to set history cursor for %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set history cursor for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrBinderNotFound, id)
	}
	return nil
}
