package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/queue"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/repository"
)

// QueueRepository persists the pending sync queue.
type QueueRepository struct {
	db *DB
}

// NewQueueRepository creates a new QueueRepository
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue appends a pending record and assigns its id.
func (r *QueueRepository) Enqueue(ctx context.Context, rec *queue.Record) error {
	query := `
		INSERT INTO pending_records (kind, payload, created_at, attempts, quarantined)
		VALUES (?, ?, ?, 0, 0)
	`

	result, err := r.db.ExecContext(ctx, query, rec.Kind, string(rec.Payload), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get record id: %w", err)
	}
	rec.ID = id

	return nil
}

// ListPending returns non-quarantined records in creation order, oldest first.
func (r *QueueRepository) ListPending(ctx context.Context) ([]queue.Record, error) {
	query := `
		SELECT id, kind, payload, created_at, attempts, quarantined
		FROM pending_records
		WHERE quarantined = 0
		ORDER BY id ASC
	`

	return r.list(ctx, query)
}

// ListQuarantined returns records removed from active retry, kept for inspection.
func (r *QueueRepository) ListQuarantined(ctx context.Context) ([]queue.Record, error) {
	query := `
		SELECT id, kind, payload, created_at, attempts, quarantined
		FROM pending_records
		WHERE quarantined = 1
		ORDER BY id ASC
	`

	return r.list(ctx, query)
}

// Remove deletes a record. Called only after the server acknowledged it.
func (r *QueueRepository) Remove(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pending_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove record: %w", err)
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

// IncrementAttempts bumps a record's failed-attempt counter and returns the
// new value.
func (r *QueueRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE pending_records SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}

	var attempts int
	err := r.db.QueryRowContext(ctx,
		`SELECT attempts FROM pending_records WHERE id = ?`, id).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read attempts: %w", err)
	}

	return attempts, nil
}

// Quarantine flags a record so replay skips it but keeps it for inspection.
func (r *QueueRepository) Quarantine(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE pending_records SET quarantined = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to quarantine record: %w", err)
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

// CountPending returns the number of non-quarantined records.
func (r *QueueRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_records WHERE quarantined = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return count, nil
}

func (r *QueueRepository) list(ctx context.Context, query string) ([]queue.Record, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []queue.Record
	for rows.Next() {
		var rec queue.Record
		var payload string
		var quarantined int
		if err := rows.Scan(&rec.ID, &rec.Kind, &payload, &rec.CreatedAt, &rec.Attempts, &quarantined); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Payload = []byte(payload)
		rec.Quarantined = quarantined != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}
