// Package screenshot captures periodic screen images and routes them to
// the backend or the offline queue.
package screenshot

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/api"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/queue"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/session"
)

// Capturer takes one screen capture and returns the saved file path.
// Image encoding is the capture backend's concern, not this package's.
type Capturer interface {
	Capture(ctx context.Context, dir string) (string, error)
}

// SessionState is the slice of the session state machine the scheduler
// consumes.
type SessionState interface {
	IsLogging() bool
	Current() *session.Session
	IntervalID() string
}

// Queue enqueues pending sync records.
type Queue interface {
	Enqueue(ctx context.Context, rec *queue.Record) error
}

// Connectivity reports and receives online/offline signals.
type Connectivity interface {
	Online() bool
	MarkOffline()
}

// Scheduler captures one image per tick. Online captures upload and link
// immediately; offline captures are stored locally and queued for the
// replay engine. Capture failures are logged and skipped, never retried
// within the same tick.
type Scheduler struct {
	capturer Capturer
	client   api.Client
	sessions SessionState
	pending  Queue
	conn     Connectivity
	dir      string
	logger   *slog.Logger

	nowFn func() time.Time
}

func NewScheduler(capturer Capturer, client api.Client, sessions SessionState, pending Queue, conn Connectivity, dir string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		capturer: capturer,
		client:   client,
		sessions: sessions,
		pending:  pending,
		conn:     conn,
		dir:      dir,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// Tick captures and dispatches one screenshot.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.sessions.IsLogging() {
		return
	}
	sess := s.sessions.Current()
	if sess == nil {
		return
	}

	path, err := s.capturer.Capture(ctx, s.dir)
	if err != nil {
		s.logger.Warn("screen capture failed, skipping tick", "error", err)
		return
	}

	intervalID := s.sessions.IntervalID()
	if s.conn.Online() && intervalID != "" {
		if err := s.upload(ctx, sess.OwnerID, intervalID, path); err == nil {
			return
		} else if api.Transient(err) {
			s.conn.MarkOffline()
		} else {
			s.logger.Warn("screenshot upload rejected, queueing", "error", err)
		}
	}

	s.enqueue(ctx, sess, intervalID, path)
}

func (s *Scheduler) upload(ctx context.Context, ownerID, activityID, path string) error {
	mediaID, err := s.client.UploadMedia(ctx, ownerID, path)
	if err != nil {
		return err
	}
	if err := s.client.AddScreenshot(ctx, ownerID, activityID, mediaID); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing uploaded screenshot failed", "path", path, "error", err)
	}
	return nil
}

func (s *Scheduler) enqueue(ctx context.Context, sess *session.Session, intervalID, path string) {
	rec, err := queue.NewScreenshotRecord(queue.ScreenshotPayload{
		FilePath:   path,
		OwnerID:    sess.OwnerID,
		SessionID:  sess.ID,
		ActivityID: intervalID,
		CapturedAt: s.nowFn(),
	}, s.nowFn())
	if err != nil {
		s.logger.Error("building screenshot record failed", "error", err)
		return
	}
	if err := s.pending.Enqueue(ctx, rec); err != nil {
		s.logger.Error("queueing screenshot failed", "error", err)
	}
}
