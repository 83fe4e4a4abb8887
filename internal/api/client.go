// Package api defines the backend REST contract the tracker core consumes.
package api

import (
	"context"
	"time"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/queue"
)

// StartActivityRequest opens a server-side activity-detail record.
type StartActivityRequest struct {
	OwnerID     string    `json:"ownerId"`
	TaskID      string    `json:"projectTaskId"`
	Description string    `json:"description"`
	SessionID   string    `json:"sessionId"`
	StartedAt   time.Time `json:"startTime"`
	IPAddress   string    `json:"ipAddress,omitempty"`
}

// StartActivityResponse carries the server-assigned interval id.
type StartActivityResponse struct {
	ID string `json:"id"`
}

// EndActivityRequest closes a server-side activity-detail record.
type EndActivityRequest struct {
	OwnerID     string           `json:"ownerId"`
	ActivityID  string           `json:"activityId"`
	EndedAt     time.Time        `json:"endTime"`
	Idle        bool             `json:"idle"`
	ClickDelta  int64            `json:"mouseClick"`
	ScrollDelta int64            `json:"scroll"`
	KeyDelta    int64            `json:"keystroke"`
	KeyText     string           `json:"keyPressedText,omitempty"`
	AppUsage    []queue.AppUsage `json:"appWebsiteUsage,omitempty"`
}

// EndActivityResponse returns the server's authoritative session totals.
type EndActivityResponse struct {
	TrackedSeconds int64 `json:"totalTime"`
	IdleSeconds    int64 `json:"idleTime"`
}

// Activity is the server-side view of an activity-detail record.
type Activity struct {
	ID      string     `json:"id"`
	EndedAt *time.Time `json:"endTime,omitempty"`
}

// Client is the backend REST API consumed by the tracking core. All calls
// carry the configured bearer token and are JSON over POST, except media
// upload which is multipart.
type Client interface {
	// StartActivity opens an activity-detail record and returns its id.
	StartActivity(ctx context.Context, req StartActivityRequest) (*StartActivityResponse, error)
	// EndActivity closes an activity-detail record and returns the
	// authoritative cumulative totals for the session.
	EndActivity(ctx context.Context, req EndActivityRequest) (*EndActivityResponse, error)
	// GetActivity fetches a record, used at resume time to detect a
	// server-side timeout closure.
	GetActivity(ctx context.Context, ownerID, activityID string) (*Activity, error)
	// RemoveTimeout clears a stale timeout flag before restarting.
	RemoveTimeout(ctx context.Context, ownerID, activityID string) error
	// SubmitOfflineActivity submits a buffered interval as an offline
	// catch-up record tagged with its original timestamps.
	SubmitOfflineActivity(ctx context.Context, payload queue.ActivityPayload) error
	// UploadMedia uploads a screenshot file and returns its media id.
	UploadMedia(ctx context.Context, ownerID, path string) (string, error)
	// AddScreenshot links an uploaded media id to an activity record.
	AddScreenshot(ctx context.Context, ownerID, activityID, mediaID string) error
	// Health probes the backend health endpoint.
	Health(ctx context.Context) error
}
