// Package capture defines the contract between the OS-level input capture
// backend and the sample collector.
package capture

import (
	"context"
	"time"
)

// Sample is one point-in-time observation of the desktop.
type Sample struct {
	// App is the focused application or site, empty when unknown.
	App string
	// Title is the focused window title.
	Title string
	// IdleFor is how long the system has seen no user input.
	IdleFor time.Duration
	// At is when the sample was taken.
	At time.Time
}

// Backend is an OS-level capture source polled on the capture cadence.
// Raw click/keystroke events arrive separately through the collector's
// Record method from the platform listener.
type Backend interface {
	Poll(ctx context.Context) (Sample, error)
	Close() error
}
