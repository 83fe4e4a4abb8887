package session

import (
	"context"
	"time"
)

// Repository manages session persistence
type Repository interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetActive(ctx context.Context) (*Session, error)
	Close(ctx context.Context, id string, endedAt time.Time) error
	Prune(ctx context.Context, keep int) error
}

// StateStore manages the persisted resumption state
type StateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Connectivity reports and receives online/offline signals
type Connectivity interface {
	Online() bool
	MarkOffline()
}

// IntervalCloser closes the currently open activity interval with its final
// deltas. Implemented by the interval accountant, which owns the interval.
// It must not call back into the state machine; the machine passes in the
// session and interval identity and applies the returned totals itself.
type IntervalCloser interface {
	CloseInterval(ctx context.Context, sess Session, intervalID string) (*Totals, error)
}
