package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ramonehamilton/binder-companion/internal/storage/repository"
)

// TxFunc is a function that runs within a transaction.
type TxFunc func(*sql.Tx) error

// WithTransaction executes the given function within a database transaction.
// It automatically commits on success or rolls back on error.
// If the function panics, the transaction is rolled back and the panic is re-raised.
func (db *DB) WithTransaction(ctx context.Context, fn TxFunc) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
			}
		} else {
			err = tx.Commit()
			if err != nil {
				err = fmt.Errorf("failed to commit transaction: %w", err)
			}
		}
	}()

	err = fn(tx)
	return err
}

// txRepos are repositories bound to one transaction.
type txRepos struct {
	binders  repository.BinderRepository
	history  repository.HistoryRepository
	settings repository.SettingsRepository
}

// withRepos runs fn with repositories bound to a fresh transaction.
func (db *DB) withRepos(ctx context.Context, fn func(r txRepos) error) error {
	return db.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(txRepos{
			binders:  repository.NewBinderRepository(tx),
			history:  repository.NewHistoryRepository(tx),
			settings: repository.NewSettingsRepository(tx),
		})
	})
}
