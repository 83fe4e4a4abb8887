// Package tracker wires the tracking core together and exposes the
// contract the UI layer consumes.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/capture"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/config"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/connectivity"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/collector"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/interval"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/screenshot"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/session"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/syncer"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/schedule"
)

// Stats is the live counter view exposed to the UI.
type Stats struct {
	Clicks     int64
	Scrolls    int64
	Keys       int64
	LastActive time.Time
}

// HourDetails is the tracked/idle accumulator view exposed to the UI.
type HourDetails struct {
	TrackedHourInSeconds int64
	IdleTime             int64
}

// Params are the assembled collaborators.
type Params struct {
	Config      config.Config
	Collector   *collector.Collector
	Sessions    *session.Service
	Accountant  *interval.Accountant
	Engine      *syncer.Engine
	Screenshots *screenshot.Scheduler
	Monitor     *connectivity.Monitor
	Backend     capture.Backend
	Logger      *slog.Logger
}

// Tracker is the facade over the tracking core.
type Tracker struct {
	cfg         config.Config
	collector   *collector.Collector
	sessions    *session.Service
	accountant  *interval.Accountant
	engine      *syncer.Engine
	screenshots *screenshot.Scheduler
	monitor     *connectivity.Monitor
	backend     capture.Backend
	logger      *slog.Logger

	mu           sync.Mutex
	runCtx       context.Context
	baseTasks    []*schedule.Task
	sessionTasks []*schedule.Task
}

func New(p Params) *Tracker {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:         p.Config,
		collector:   p.Collector,
		sessions:    p.Sessions,
		accountant:  p.Accountant,
		engine:      p.Engine,
		screenshots: p.Screenshots,
		monitor:     p.Monitor,
		backend:     p.Backend,
		logger:      logger,
	}
}

// Run restores persisted state, resumes a surviving session and starts the
// background cadences. It returns once running; Close stops everything.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	t.runCtx = ctx
	t.mu.Unlock()

	t.monitor.Restore(ctx)

	resumed, err := t.sessions.Resume(ctx)
	if err != nil {
		return err
	}

	t.monitor.Subscribe(func(online bool) {
		if online && t.sessions.IsLogging() {
			go t.replay(ctx)
		}
	})

	t.mu.Lock()
	t.baseTasks = append(t.baseTasks,
		schedule.Every(ctx, t.cfg.Tracker.HealthInterval, t.monitor.Probe))
	if t.backend != nil {
		t.baseTasks = append(t.baseTasks,
			schedule.Every(ctx, t.cfg.Tracker.CaptureInterval, t.pollCapture))
	}
	t.mu.Unlock()

	if resumed != nil {
		t.accountant.Rebase()
		t.startSessionTasks(ctx)
		if t.monitor.Online() {
			go t.replay(ctx)
		}
	}

	return nil
}

// StartLogging starts a new session for the configured owner and task.
func (t *Tracker) StartLogging(ctx context.Context, ownerID, taskID, description string) error {
	_, err := t.sessions.Start(ctx, session.StartRequest{
		OwnerID:     ownerID,
		TaskID:      taskID,
		Description: description,
	})
	if err != nil {
		return err
	}

	t.accountant.Rebase()
	t.startSessionTasks(t.runContext())
	return nil
}

// StopLogging stops the active session. Accounting timers are cancelled
// before the stop round-trip; if the server does not confirm, the session
// stays active locally and the timers restart so no time is lost.
func (t *Tracker) StopLogging(ctx context.Context) (session.Totals, error) {
	t.stopSessionTasks()

	totals, err := t.sessions.Stop(ctx)
	if err != nil {
		if t.sessions.IsLogging() {
			t.startSessionTasks(t.runContext())
		}
		return session.Totals{}, err
	}

	t.collector.Reset()
	return *totals, nil
}

// HardReset clears all session state, local counters included.
func (t *Tracker) HardReset(ctx context.Context) error {
	t.stopSessionTasks()
	if err := t.sessions.HardReset(ctx); err != nil {
		return err
	}
	t.collector.Reset()
	return nil
}

// IsLogging reports whether a session is active.
func (t *Tracker) IsLogging() bool {
	return t.sessions.IsLogging()
}

// IsSyncing reports whether an offline replay drain is in progress.
func (t *Tracker) IsSyncing() bool {
	return t.engine.Syncing()
}

// Stats returns the live counters.
func (t *Tracker) Stats() Stats {
	snap := t.collector.Snapshot()
	return Stats{
		Clicks:     snap.Clicks,
		Scrolls:    snap.Scrolls,
		Keys:       snap.Keys,
		LastActive: snap.LastActive,
	}
}

// TrackedHourDetails returns the tracked/idle totals for the current
// session.
func (t *Tracker) TrackedHourDetails() HourDetails {
	totals := t.sessions.Totals()
	return HourDetails{
		TrackedHourInSeconds: totals.TrackedSeconds,
		IdleTime:             totals.IdleSeconds,
	}
}

// SetManualOffline switches the agent offline by user request.
func (t *Tracker) SetManualOffline(ctx context.Context) error {
	return t.monitor.SetManualOffline(ctx)
}

// Close cancels all cadences and releases the capture backend.
func (t *Tracker) Close() error {
	t.stopSessionTasks()

	t.mu.Lock()
	base := t.baseTasks
	t.baseTasks = nil
	t.mu.Unlock()
	for _, task := range base {
		task.Stop()
	}

	if t.backend != nil {
		return t.backend.Close()
	}
	return nil
}

func (t *Tracker) startSessionTasks(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sessionTasks) > 0 {
		return
	}
	t.sessionTasks = append(t.sessionTasks,
		schedule.Every(ctx, t.cfg.Tracker.ActivityInterval, t.accountant.Tick))
	if t.screenshots != nil {
		t.sessionTasks = append(t.sessionTasks,
			schedule.Every(ctx, t.cfg.Tracker.ScreenshotInterval, t.screenshots.Tick))
	}
}

func (t *Tracker) stopSessionTasks() {
	t.mu.Lock()
	tasks := t.sessionTasks
	t.sessionTasks = nil
	t.mu.Unlock()

	for _, task := range tasks {
		task.Stop()
	}
}

func (t *Tracker) runContext() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runCtx != nil {
		return t.runCtx
	}
	return context.Background()
}

func (t *Tracker) replay(ctx context.Context) {
	summary, err := t.engine.Replay(ctx)
	if err != nil {
		if !errors.Is(err, syncer.ErrReplayInProgress) {
			t.logger.Error("replay failed", "error", err)
		}
		return
	}
	if summary.Submitted > 0 || summary.Uploaded > 0 {
		t.logger.Info("offline queue drained",
			"submitted", summary.Submitted, "uploaded", summary.Uploaded)
	}
}

// pollCapture samples the desktop and feeds the collector. Focus time is
// not attributed while the system is idle.
func (t *Tracker) pollCapture(ctx context.Context) {
	sample, err := t.backend.Poll(ctx)
	if err != nil {
		t.logger.Debug("capture poll failed", "error", err)
		return
	}
	if sample.App == "" || sample.IdleFor >= t.cfg.Tracker.CaptureInterval {
		return
	}
	t.collector.RecordUsage(sample.App, int64(t.cfg.Tracker.CaptureInterval.Seconds()))
}
