package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/repository"
)

// StateRepository persists the small key/value resumption state.
type StateRepository struct {
	db *DB
}

// NewStateRepository creates a new StateRepository
func NewStateRepository(db *DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get returns the value for key, or repository.ErrNotFound.
func (r *StateRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM tracker_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %q: %w", key, err)
	}
	return value, nil
}

// Set upserts the value for key.
func (r *StateRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO tracker_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set state %q: %w", key, err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are not an error.
func (r *StateRepository) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := r.db.ExecContext(ctx,
			`DELETE FROM tracker_state WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete state %q: %w", key, err)
		}
	}
	return nil
}
