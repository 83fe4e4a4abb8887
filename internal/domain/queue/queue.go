package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates pending sync records.
type Kind string

const (
	KindActivity   Kind = "activity"
	KindScreenshot Kind = "screenshot"
)

// Record is one durably queued unit of work that must reach the server
// exactly once. Records are created only while offline and removed only
// after the server acknowledges persistence.
type Record struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"kind"`
	Payload     []byte    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
	Attempts    int       `json:"attempts"`
	Quarantined bool      `json:"quarantined"`
}

// AppUsage is time attributed to one application or website.
type AppUsage struct {
	Name    string `json:"name"`
	Seconds int64  `json:"seconds"`
}

// ActivityPayload is an offline activity interval awaiting catch-up
// submission, tagged with its original start/end timestamps.
type ActivityPayload struct {
	LocalID      string     `json:"local_id"`
	SessionID    string     `json:"session_id"`
	OwnerID      string     `json:"owner_id"`
	TaskID       string     `json:"task_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      time.Time  `json:"ended_at"`
	Idle         bool       `json:"idle"`
	ClickDelta   int64      `json:"click_delta"`
	ScrollDelta  int64      `json:"scroll_delta"`
	KeyDelta     int64      `json:"key_delta"`
	KeyText      string     `json:"key_text,omitempty"`
	AppUsage     []AppUsage `json:"app_usage,omitempty"`
	IPAddress    string     `json:"ip_address,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	NetworkSpeed *float64   `json:"network_speed,omitempty"`
}

// ScreenshotPayload is a locally stored screenshot awaiting upload.
// ActivityID is the interval open at capture time, empty when the session
// had no server identity yet.
type ScreenshotPayload struct {
	FilePath   string    `json:"file_path"`
	OwnerID    string    `json:"owner_id"`
	SessionID  string    `json:"session_id"`
	ActivityID string    `json:"activity_id,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewActivityRecord marshals an activity payload into a pending record.
func NewActivityRecord(p ActivityPayload, createdAt time.Time) (*Record, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal activity payload: %w", err)
	}
	return &Record{Kind: KindActivity, Payload: data, CreatedAt: createdAt}, nil
}

// NewScreenshotRecord marshals a screenshot payload into a pending record.
func NewScreenshotRecord(p ScreenshotPayload, createdAt time.Time) (*Record, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal screenshot payload: %w", err)
	}
	return &Record{Kind: KindScreenshot, Payload: data, CreatedAt: createdAt}, nil
}

// Activity decodes the record payload as an activity interval.
func (r *Record) Activity() (ActivityPayload, error) {
	var p ActivityPayload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return ActivityPayload{}, fmt.Errorf("decode activity payload: %w", err)
	}
	return p, nil
}

// Screenshot decodes the record payload as a screenshot.
func (r *Record) Screenshot() (ScreenshotPayload, error) {
	var p ScreenshotPayload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return ScreenshotPayload{}, fmt.Errorf("decode screenshot payload: %w", err)
	}
	return p, nil
}
