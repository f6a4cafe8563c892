package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ramonehamilton/binder-companion/internal/storage/models"
)

// ErrCatalogCardNotCached is returned when a card has no cached entry.
var ErrCatalogCardNotCached = errors.New("catalog card not cached")

// CatalogRepository caches catalog responses.
type CatalogRepository interface {
	Get(ctx context.Context, cardID string) (*models.CatalogCard, error)
	Put(ctx context.Context, card *models.CatalogCard) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

type catalogRepository struct {
	db DBTX
}

// NewCatalogRepository creates a new catalog cache repository.
func NewCatalogRepository(db DBTX) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) Get(ctx context.Context, cardID string) (*models.CatalogCard, error) {
	var (
		c         models.CatalogCard
		data      string
		fetchedAt string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT card_id, name, data, fetched_at FROM catalog_cards WHERE card_id = ?", cardID,
	).Scan(&c.CardID, &c.Name, &data, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrCatalogCardNotCached, cardID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog card %s: %w", cardID, err)
	}
	c.Data = []byte(data)
	if c.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *catalogRepository) Put(ctx context.Context, c *models.CatalogCard) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO catalog_cards (card_id, name, data, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(card_id) DO UPDATE SET
			name = excluded.name, data = excluded.data, fetched_at = excluded.fetched_at
	`, c.CardID, c.Name, string(c.Data), formatTime(c.FetchedAt))
	if err != nil {
		return fmt.Errorf("failed to cache catalog card %s: %w", c.CardID, err)
	}
	return nil
}

func (r *catalogRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_cards").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count catalog cards: %w", err)
	}
	return n, nil
}

func (r *catalogRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM catalog_cards"); err != nil {
		return fmt.Errorf("failed to clear catalog cache: %w", err)
	}
	return nil
}
