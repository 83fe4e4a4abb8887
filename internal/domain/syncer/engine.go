// Package syncer replays the buffered offline queue to the backend when
// connectivity resumes.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/api"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/queue"
)

// ErrReplayInProgress indicates a replay is already draining; concurrent
// triggers coalesce into the running pass.
var ErrReplayInProgress = errors.New("replay already in progress")

// Queue is the slice of the pending-record store the engine consumes.
type Queue interface {
	ListPending(ctx context.Context) ([]queue.Record, error)
	Remove(ctx context.Context, id int64) error
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	Quarantine(ctx context.Context, id int64) error
}

// Summary reports the outcome of one replay pass.
type Summary struct {
	Submitted   int
	Uploaded    int
	Failed      int
	Quarantined int
}

// Engine drains the pending queue in creation order, exactly once per
// record. Session-total reconciliation is not done here: the server's
// authoritative totals arrive on the first post-reconnect interval end.
type Engine struct {
	pending    Queue
	client     api.Client
	logger     *slog.Logger
	attemptCap int

	mu      sync.Mutex
	syncing atomic.Bool

	removeFile func(string) error
}

// New creates a replay engine. attemptCap bounds retries per record before
// it is quarantined.
func New(pending Queue, client api.Client, attemptCap int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		pending:    pending,
		client:     client,
		logger:     logger,
		attemptCap: attemptCap,
		removeFile: os.Remove,
	}
}

// Syncing reports whether a drain is in progress, for the UI layer's
// "syncing" indicator.
func (e *Engine) Syncing() bool {
	return e.syncing.Load()
}

// Replay drains the queue oldest-first. Activity records preserve order:
// the first activity failure halts the drain unless the record exceeded
// the retry cap and was quarantined. Screenshot failures are skipped and
// retried on the next pass. Safe to call concurrently; a replay already in
// progress short-circuits with ErrReplayInProgress.
func (e *Engine) Replay(ctx context.Context) (*Summary, error) {
	if !e.mu.TryLock() {
		return nil, ErrReplayInProgress
	}
	defer e.mu.Unlock()

	e.syncing.Store(true)
	defer e.syncing.Store(false)

	records, err := e.pending.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending records: %w", err)
	}
	if len(records) == 0 {
		return &Summary{}, nil
	}

	e.logger.Info("replay started", "pending", len(records))

	var summary Summary
	for _, rec := range records {
		var halt bool
		switch rec.Kind {
		case queue.KindActivity:
			halt = e.replayActivity(ctx, rec, &summary)
		case queue.KindScreenshot:
			e.replayScreenshot(ctx, rec, &summary)
		default:
			e.logger.Warn("unknown pending record kind, quarantining", "id", rec.ID, "kind", rec.Kind)
			e.quarantine(ctx, rec.ID, &summary)
		}
		if halt {
			break
		}
	}

	e.logger.Info("replay finished",
		"submitted", summary.Submitted,
		"uploaded", summary.Uploaded,
		"failed", summary.Failed,
		"quarantined", summary.Quarantined,
	)
	return &summary, nil
}

// replayActivity submits one buffered interval. Returns true when the
// drain must halt to preserve chronological order.
func (e *Engine) replayActivity(ctx context.Context, rec queue.Record, summary *Summary) bool {
	payload, err := rec.Activity()
	if err != nil {
		// Undecodable payloads never succeed; keep them for inspection.
		e.logger.Error("poisoned activity record", "id", rec.ID, "error", err)
		e.quarantine(ctx, rec.ID, summary)
		return false
	}

	if err := e.client.SubmitOfflineActivity(ctx, payload); err != nil {
		return e.recordFailure(ctx, rec, err, summary)
	}

	if err := e.pending.Remove(ctx, rec.ID); err != nil {
		e.logger.Error("removing submitted record failed", "id", rec.ID, "error", err)
		return true
	}
	summary.Submitted++
	return false
}

func (e *Engine) replayScreenshot(ctx context.Context, rec queue.Record, summary *Summary) {
	payload, err := rec.Screenshot()
	if err != nil {
		e.logger.Error("poisoned screenshot record", "id", rec.ID, "error", err)
		e.quarantine(ctx, rec.ID, summary)
		return
	}

	mediaID, err := e.client.UploadMedia(ctx, payload.OwnerID, payload.FilePath)
	if err != nil {
		e.recordFailure(ctx, rec, err, summary)
		return
	}
	if err := e.client.AddScreenshot(ctx, payload.OwnerID, payload.ActivityID, mediaID); err != nil {
		e.recordFailure(ctx, rec, err, summary)
		return
	}

	if err := e.pending.Remove(ctx, rec.ID); err != nil {
		e.logger.Error("removing uploaded record failed", "id", rec.ID, "error", err)
		return
	}
	if err := e.removeFile(payload.FilePath); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("removing screenshot file failed", "path", payload.FilePath, "error", err)
	}
	summary.Uploaded++
}

// recordFailure bumps the attempt counter and quarantines records past the
// cap so one poisoned record cannot block the queue forever. Returns true
// when the drain should halt.
func (e *Engine) recordFailure(ctx context.Context, rec queue.Record, cause error, summary *Summary) bool {
	attempts, err := e.pending.IncrementAttempts(ctx, rec.ID)
	if err != nil {
		e.logger.Error("incrementing attempts failed", "id", rec.ID, "error", err)
		return true
	}

	if attempts >= e.attemptCap {
		e.logger.Warn("record exceeded retry cap, quarantining",
			"id", rec.ID, "attempts", attempts, "error", cause)
		e.quarantine(ctx, rec.ID, summary)
		return false
	}

	summary.Failed++
	e.logger.Warn("replaying record failed, will retry",
		"id", rec.ID, "attempts", attempts, "error", cause)
	return true
}

func (e *Engine) quarantine(ctx context.Context, id int64, summary *Summary) {
	if err := e.pending.Quarantine(ctx, id); err != nil {
		e.logger.Error("quarantining record failed", "id", id, "error", err)
		return
	}
	summary.Quarantined++
}
