package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrSettingNotFound is returned by Get and GetTyped for unknown keys.
var ErrSettingNotFound = errors.New("setting not found")

// SettingsRepository provides access to installation-wide settings such as
// the sort engine's type order.
type SettingsRepository interface {
	// Get retrieves a setting value by key.
	// Returns the JSON-encoded value or ErrSettingNotFound.
	Get(ctx context.Context, key string) (string, error)

	// GetTyped retrieves a setting and unmarshals it to the target type.
	GetTyped(ctx context.Context, key string, target interface{}) error

	// Set stores a setting value.
	// The value is JSON-encoded before storage.
	Set(ctx context.Context, key string, value interface{}) error

	// GetAll retrieves all settings as a map.
	GetAll(ctx context.Context) (map[string]interface{}, error)

	// Delete removes a setting.
	Delete(ctx context.Context, key string) error
}

// settingsRepository implements SettingsRepository using SQLite.
type settingsRepository struct {
	db DBTX
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db DBTX) SettingsRepository {
	return &settingsRepository{db: db}
}

// Get retrieves a setting value by key.
func (r *settingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%w: %s", ErrSettingNotFound, key)
		}
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// GetTyped retrieves a setting and unmarshals it to the target type.
func (r *settingsRepository) GetTyped(ctx context.Context, key string, target interface{}) error {
	value, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), target); err != nil {
		return fmt.Errorf("failed to unmarshal setting %s: %w", key, err)
	}
	return nil
}

// Set stores a setting value.
func (r *settingsRepository) Set(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal setting %s: %w", key, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(jsonValue), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAll retrieves all settings as a map.
func (r *settingsRepository) GetAll(ctx context.Context) (map[string]interface{}, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error - cleanup operation
	}()

	settings := make(map[string]interface{})
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}

		// Try to unmarshal JSON value
		var parsed interface{}
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			// If unmarshal fails, use raw string
			settings[key] = value
		} else {
			settings[key] = parsed
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return settings, nil
}

// Delete removes a setting.
func (r *settingsRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}
