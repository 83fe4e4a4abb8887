// Package interval implements the accounting tick: it turns raw counter
// growth into activity-detail records, online or offline.
package interval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/api"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/collector"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/idle"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/queue"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/session"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/netinfo"
	"github.com/google/uuid"
)

// SessionState is the slice of the session state machine the accountant
// consumes.
type SessionState interface {
	IsLogging() bool
	Current() *session.Session
	IntervalID() string
	SetIntervalID(ctx context.Context, id string) error
	ApplyServerTotals(ctx context.Context, t session.Totals) error
	ApplyOfflineTick(ctx context.Context, trackedSeconds, idleSeconds int64) error
}

// Queue enqueues pending sync records.
type Queue interface {
	Enqueue(ctx context.Context, rec *queue.Record) error
}

// CounterSource provides cumulative counters on demand.
type CounterSource interface {
	Snapshot() collector.Counters
}

// Connectivity reports and receives online/offline signals.
type Connectivity interface {
	Online() bool
	MarkOffline()
}

// Deltas is one tick's non-negative counter growth.
type Deltas struct {
	Clicks   int64
	Scrolls  int64
	Keys     int64
	Text     string
	AppUsage []queue.AppUsage
}

// Accountant computes per-tick deltas against a baseline snapshot and
// dispatches them online or appends them to the offline queue, never both.
type Accountant struct {
	source   CounterSource
	sessions SessionState
	pending  Queue
	client   api.Client
	conn     Connectivity
	net      netinfo.Prober
	logger   *slog.Logger

	mu        sync.Mutex
	baseline  collector.Counters
	lastTick  time.Time
	estimator *idle.Estimator

	nowFn func() time.Time
}

// New creates an accountant with the given idle-tick threshold.
func New(source CounterSource, sessions SessionState, pending Queue, client api.Client, conn Connectivity, net netinfo.Prober, idleThreshold int, logger *slog.Logger) *Accountant {
	if logger == nil {
		logger = slog.Default()
	}
	if net == nil {
		net = netinfo.LocalProber{}
	}
	return &Accountant{
		source:    source,
		sessions:  sessions,
		pending:   pending,
		client:    client,
		conn:      conn,
		net:       net,
		logger:    logger,
		estimator: idle.NewEstimator(idleThreshold),
		nowFn:     time.Now,
	}
}

// Rebase resets the baseline to the current counters. Called when logging
// starts or resumes so stale counters never produce negative deltas.
func (a *Accountant) Rebase() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.baseline = a.source.Snapshot()
	a.lastTick = a.nowFn()
	a.estimator.Reset()
}

// Tick runs one accounting pass. The snapshot-then-branch step is atomic
// with respect to concurrent ticks: the baseline is read and replaced under
// the lock, then the network branch runs without it so the cadence never
// blocks on I/O against the next snapshot.
func (a *Accountant) Tick(ctx context.Context) {
	if !a.sessions.IsLogging() {
		return
	}
	sess := a.sessions.Current()
	if sess == nil {
		return
	}

	a.mu.Lock()
	snap := a.source.Snapshot()
	deltas := diff(a.baseline, snap)
	// Baseline advances unconditionally so repeated ticks never double-count.
	a.baseline = snap
	last := a.lastTick
	now := a.nowFn()
	a.lastTick = now
	verdict := a.estimator.Observe(deltas.Clicks, deltas.Scrolls, deltas.Keys)
	a.mu.Unlock()

	if a.conn.Online() {
		a.onlineTick(ctx, sess, deltas, verdict, last, now)
	} else {
		a.offlineTick(ctx, sess, deltas, verdict, last, now)
	}
}

// CloseInterval closes the open interval with its final deltas, for the
// session state machine's stop path. The baseline is committed only when
// the server confirms the end, so a failed stop keeps accruing correctly.
func (a *Accountant) CloseInterval(ctx context.Context, sess session.Session, intervalID string) (*session.Totals, error) {
	a.mu.Lock()
	snap := a.source.Snapshot()
	deltas := diff(a.baseline, snap)
	now := a.nowFn()
	a.mu.Unlock()

	if !a.conn.Online() {
		return nil, api.ErrNetwork
	}
	if intervalID == "" {
		// The interval never got server identity; nothing to end remotely.
		a.commit(snap, now)
		return nil, nil
	}

	resp, err := a.client.EndActivity(ctx, api.EndActivityRequest{
		OwnerID:     sess.OwnerID,
		ActivityID:  intervalID,
		EndedAt:     now,
		Idle:        false,
		ClickDelta:  deltas.Clicks,
		ScrollDelta: deltas.Scrolls,
		KeyDelta:    deltas.Keys,
		KeyText:     deltas.Text,
		AppUsage:    deltas.AppUsage,
	})
	if err != nil {
		if api.Transient(err) {
			a.conn.MarkOffline()
		}
		return nil, err
	}

	a.commit(snap, now)
	return &session.Totals{TrackedSeconds: resp.TrackedSeconds, IdleSeconds: resp.IdleSeconds}, nil
}

func (a *Accountant) commit(snap collector.Counters, now time.Time) {
	a.mu.Lock()
	a.baseline = snap
	a.lastTick = now
	a.mu.Unlock()
}

// onlineTick issues the paired end-previous/start-next calls. A failed end
// does not block the start: interval identity continuity is best-effort,
// because stalling new accounting on a failed close would stall everything.
func (a *Accountant) onlineTick(ctx context.Context, sess *session.Session, deltas Deltas, verdict idle.Verdict, last, now time.Time) {
	prevID := a.sessions.IntervalID()

	if prevID != "" {
		resp, err := a.client.EndActivity(ctx, api.EndActivityRequest{
			OwnerID:     sess.OwnerID,
			ActivityID:  prevID,
			EndedAt:     now,
			Idle:        verdict.CountsAsIdle,
			ClickDelta:  deltas.Clicks,
			ScrollDelta: deltas.Scrolls,
			KeyDelta:    deltas.Keys,
			KeyText:     deltas.Text,
			AppUsage:    deltas.AppUsage,
		})
		switch {
		case err == nil:
			if applyErr := a.sessions.ApplyServerTotals(ctx, session.Totals{
				TrackedSeconds: resp.TrackedSeconds,
				IdleSeconds:    resp.IdleSeconds,
			}); applyErr != nil {
				a.logger.Error("applying server totals failed", "error", applyErr)
			}
		case api.Transient(err):
			// Lost the server mid-tick: the deltas were not delivered,
			// so this tick becomes an offline record instead.
			a.conn.MarkOffline()
			a.offlineTick(ctx, sess, deltas, verdict, last, now)
			return
		default:
			// Already ended or rejected; the start is still attempted.
			a.logger.Warn("ending interval rejected", "interval", prevID, "error", err)
		}
	}

	info := a.net.Info()
	resp, err := a.client.StartActivity(ctx, api.StartActivityRequest{
		OwnerID:     sess.OwnerID,
		TaskID:      sess.TaskID,
		Description: sess.Description,
		SessionID:   sess.ID,
		StartedAt:   now,
		IPAddress:   info.IP,
	})
	if err != nil {
		a.logger.Warn("starting interval failed", "error", err)
		if api.Transient(err) {
			a.conn.MarkOffline()
		}
		if setErr := a.sessions.SetIntervalID(ctx, ""); setErr != nil {
			a.logger.Error("clearing interval id failed", "error", setErr)
		}
		return
	}
	if err := a.sessions.SetIntervalID(ctx, resp.ID); err != nil {
		a.logger.Error("persisting interval id failed", "error", err)
	}
}

// offlineTick appends the tick to the durable queue using actual elapsed
// wall-clock time, which stays correct across suspend/resume gaps, and
// accrues the local accumulator directly.
func (a *Accountant) offlineTick(ctx context.Context, sess *session.Session, deltas Deltas, verdict idle.Verdict, last, now time.Time) {
	elapsed := int64(now.Sub(last).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	info := a.net.Info()
	payload := queue.ActivityPayload{
		LocalID:      uuid.NewString(),
		SessionID:    sess.ID,
		OwnerID:      sess.OwnerID,
		TaskID:       sess.TaskID,
		StartedAt:    last,
		EndedAt:      now,
		Idle:         verdict.CountsAsIdle,
		ClickDelta:   deltas.Clicks,
		ScrollDelta:  deltas.Scrolls,
		KeyDelta:     deltas.Keys,
		KeyText:      deltas.Text,
		AppUsage:     deltas.AppUsage,
		IPAddress:    info.IP,
		Latitude:     info.Latitude,
		Longitude:    info.Longitude,
		NetworkSpeed: info.SpeedMbps,
	}

	rec, err := queue.NewActivityRecord(payload, now)
	if err != nil {
		a.logger.Error("building offline record failed", "error", err)
		return
	}
	if err := a.pending.Enqueue(ctx, rec); err != nil {
		// Fatal to this tick only; accounting resumes on the next one.
		a.logger.Error("enqueueing offline record failed", "error", err)
		return
	}

	tracked, idleSecs := elapsed, int64(0)
	if verdict.CountsAsIdle {
		tracked, idleSecs = 0, elapsed
	}
	if err := a.sessions.ApplyOfflineTick(ctx, tracked, idleSecs); err != nil {
		a.logger.Error("persisting offline totals failed", "error", err)
	}
}

// diff computes non-negative counter deltas. A baseline newer than the
// current counters (logging restarted) clamps to zero rather than going
// negative.
func diff(baseline, current collector.Counters) Deltas {
	d := Deltas{
		Clicks:  clamp(current.Clicks - baseline.Clicks),
		Scrolls: clamp(current.Scrolls - baseline.Scrolls),
		Keys:    clamp(current.Keys - baseline.Keys),
	}

	if len(current.Text) > len(baseline.Text) {
		d.Text = current.Text[len(baseline.Text):]
	}

	for _, usage := range current.UsageList() {
		delta := clamp(usage.Seconds - baseline.AppUsage[usage.Name])
		if delta > 0 {
			d.AppUsage = append(d.AppUsage, queue.AppUsage{Name: usage.Name, Seconds: delta})
		}
	}
	return d
}

func clamp(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
