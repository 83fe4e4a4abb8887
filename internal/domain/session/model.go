package session

import "time"

// State represents the lifecycle state of the logging machine
type State string

const (
	StateIdle       State = "idle"
	StateLogging    State = "logging"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
)

// Session represents one continuous logging period for an owner and task
type Session struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	TaskID      string     `json:"task_id"`
	Description string     `json:"description"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the session is still open.
func (s *Session) Active() bool {
	return s != nil && s.EndedAt == nil
}

// Totals is the tracked/idle accumulator for the current session, in seconds.
// While offline it grows from local estimates; whenever a server round-trip
// succeeds it is replaced by the server's authoritative values.
type Totals struct {
	TrackedSeconds int64 `json:"tracked_seconds"`
	IdleSeconds    int64 `json:"idle_seconds"`
}
