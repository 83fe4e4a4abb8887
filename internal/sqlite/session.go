package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/session"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/repository"
)

// SessionRepository persists logging sessions.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	query := `
		INSERT INTO sessions (id, owner_id, task_id, description, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		sess.ID,
		sess.OwnerID,
		sess.TaskID,
		sess.Description,
		sess.StartedAt,
		sess.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	query := `
		SELECT id, owner_id, task_id, description, started_at, ended_at
		FROM sessions
		WHERE id = ?
	`

	var sess session.Session
	var endedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID,
		&sess.OwnerID,
		&sess.TaskID,
		&sess.Description,
		&sess.StartedAt,
		&endedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}

	return &sess, nil
}

// GetActive returns the most recent session without an end time.
func (r *SessionRepository) GetActive(ctx context.Context) (*session.Session, error) {
	query := `
		SELECT id, owner_id, task_id, description, started_at, ended_at
		FROM sessions
		WHERE ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`

	var sess session.Session
	var endedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query).Scan(
		&sess.ID,
		&sess.OwnerID,
		&sess.TaskID,
		&sess.Description,
		&sess.StartedAt,
		&endedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}

	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}

	return &sess, nil
}

// Close sets a session's end time
func (r *SessionRepository) Close(ctx context.Context, id string, endedAt time.Time) error {
	query := `UPDATE sessions SET ended_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, endedAt, id)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Prune keeps only the most recent keep sessions.
func (r *SessionRepository) Prune(ctx context.Context, keep int) error {
	query := `
		DELETE FROM sessions
		WHERE id NOT IN (
			SELECT id FROM sessions ORDER BY started_at DESC LIMIT ?
		)
	`

	if _, err := r.db.ExecContext(ctx, query, keep); err != nil {
		return fmt.Errorf("failed to prune sessions: %w", err)
	}
	return nil
}
