package session

import "errors"

var (
	// ErrValidation indicates required session fields are missing.
	ErrValidation = errors.New("owner, task and description are required")
	// ErrAlreadyLogging indicates a session is already active.
	ErrAlreadyLogging = errors.New("a logging session is already active")
	// ErrNotLogging indicates no session is active.
	ErrNotLogging = errors.New("no logging session is active")
	// ErrStopFailed indicates the server round-trip for stop did not
	// complete; the session remains active locally.
	ErrStopFailed = errors.New("stop was not confirmed by the server")
)
