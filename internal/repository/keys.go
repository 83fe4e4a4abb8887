package repository

// Keys of the persisted resumption state. All reads and writes go through
// the session state machine and the connectivity monitor; no other
// component touches these directly.
const (
	StateOwnerID            = "owner_id"
	StateTaskID             = "task_id"
	StateDescription        = "description"
	StateSessionID          = "session_id"
	StateIntervalID         = "interval_id"
	StateIsLogging          = "is_logging"
	StateTrackedSeconds     = "tracked_seconds"
	StateIdleSeconds        = "idle_seconds"
	StateManualOfflineUntil = "manual_offline_until"
	StateLastUpdateCheck    = "last_update_check"
)
