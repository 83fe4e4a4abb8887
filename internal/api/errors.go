package api

import (
	"errors"
	"fmt"
)

// ErrNetwork wraps transport-level failures. These are transient and
// trigger the offline fallback path.
var ErrNetwork = errors.New("network error")

// StatusError is a non-2xx response from the backend. 4xx responses are
// surfaced to the user and never retried automatically; 5xx responses
// trigger a connectivity health probe.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Message)
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// IsRejected reports whether err is a 4xx rejection.
func IsRejected(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// IsServerFailure reports whether err is a 5xx response.
func IsServerFailure(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 500
}

// Transient reports whether err should flip the client to the offline
// path: transport failures and 5xx responses, but not 4xx rejections.
func Transient(err error) bool {
	return IsNetwork(err) || IsServerFailure(err)
}
