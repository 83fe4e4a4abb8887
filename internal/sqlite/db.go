package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer keeps the transactional queue semantics simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations creates the schema if it does not exist.
func (db *DB) RunMigrations() error {
	migration := `
-- Sessions: one row per logging period, pruned to the most recent N
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    task_id TEXT NOT NULL,
    description TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

-- Pending sync queue: offline activity intervals and screenshots
CREATE TABLE IF NOT EXISTS pending_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL CHECK(kind IN ('activity', 'screenshot')),
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    quarantined INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_pending_created ON pending_records(created_at);
CREATE INDEX IF NOT EXISTS idx_pending_quarantined ON pending_records(quarantined);

-- Resumption state: small key/value pairs surviving process restarts
CREATE TABLE IF NOT EXISTS tracker_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

	if _, err := db.Exec(migration); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
