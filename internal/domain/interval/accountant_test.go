package interval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/api"
	apimocks "github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/api/mocks"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/collector"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/queue"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/session"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/netinfo"
)

type stubSessions struct {
	logging    bool
	sess       *session.Session
	intervalID string

	serverTotals   *session.Totals
	offlineTracked int64
	offlineIdle    int64
}

func (s *stubSessions) IsLogging() bool           { return s.logging }
func (s *stubSessions) Current() *session.Session { return s.sess }
func (s *stubSessions) IntervalID() string        { return s.intervalID }

func (s *stubSessions) SetIntervalID(ctx context.Context, id string) error {
	s.intervalID = id
	return nil
}

func (s *stubSessions) ApplyServerTotals(ctx context.Context, t session.Totals) error {
	s.serverTotals = &t
	return nil
}

func (s *stubSessions) ApplyOfflineTick(ctx context.Context, trackedSeconds, idleSeconds int64) error {
	s.offlineTracked += trackedSeconds
	s.offlineIdle += idleSeconds
	return nil
}

type stubConn struct {
	online  bool
	offline bool
}

func (c *stubConn) Online() bool { return c.online }
func (c *stubConn) MarkOffline() { c.offline = true; c.online = false }

type stubQueue struct {
	records []*queue.Record
	err     error
}

func (q *stubQueue) Enqueue(ctx context.Context, rec *queue.Record) error {
	if q.err != nil {
		return q.err
	}
	rec.ID = int64(len(q.records) + 1)
	q.records = append(q.records, rec)
	return nil
}

type stubProber struct{}

func (stubProber) Info() netinfo.Info { return netinfo.Info{IP: "192.0.2.10"} }

type fixture struct {
	acct      *Accountant
	collector *collector.Collector
	sessions  *stubSessions
	pending   *stubQueue
	client    *apimocks.Client
	conn      *stubConn
	clock     time.Time
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	f := &fixture{
		collector: collector.New(),
		sessions: &stubSessions{
			logging: true,
			sess: &session.Session{
				ID:          "s1",
				OwnerID:     "owner-1",
				TaskID:      "task-1",
				Description: "working on reports",
				StartedAt:   time.Now().Add(-time.Hour),
			},
		},
		pending: &stubQueue{},
		client:  new(apimocks.Client),
		conn:    &stubConn{online: online},
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.acct = New(f.collector, f.sessions, f.pending, f.client, f.conn, stubProber{}, 2, nil)
	f.acct.nowFn = func() time.Time { return f.clock }
	f.acct.Rebase()
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) click(n int) {
	for i := 0; i < n; i++ {
		f.collector.Record(collector.Event{Type: collector.EventClick, At: f.clock})
	}
}

func TestTickSkippedWhenNotLogging(t *testing.T) {
	f := newFixture(t, true)
	f.sessions.logging = false

	f.acct.Tick(context.Background())

	f.client.AssertNotCalled(t, "EndActivity", mock.Anything, mock.Anything)
	f.client.AssertNotCalled(t, "StartActivity", mock.Anything, mock.Anything)
}

func TestOnlineTickEndStartPair(t *testing.T) {
	f := newFixture(t, true)
	f.sessions.intervalID = "act-1"
	ctx := context.Background()

	f.click(5)
	f.advance(time.Minute)

	var ended api.EndActivityRequest
	f.client.On("EndActivity", ctx, mock.AnythingOfType("api.EndActivityRequest")).
		Run(func(args mock.Arguments) { ended = args.Get(1).(api.EndActivityRequest) }).
		Return(&api.EndActivityResponse{TrackedSeconds: 60, IdleSeconds: 0}, nil)

	var started api.StartActivityRequest
	f.client.On("StartActivity", ctx, mock.AnythingOfType("api.StartActivityRequest")).
		Run(func(args mock.Arguments) { started = args.Get(1).(api.StartActivityRequest) }).
		Return(&api.StartActivityResponse{ID: "act-2"}, nil)

	f.acct.Tick(ctx)

	require.Equal(t, "act-1", ended.ActivityID)
	require.Equal(t, int64(5), ended.ClickDelta)
	require.False(t, ended.Idle)

	require.Equal(t, "s1", started.SessionID)
	require.Equal(t, "192.0.2.10", started.IPAddress)
	require.Equal(t, "act-2", f.sessions.intervalID)

	// Server totals replaced the local accumulator.
	require.NotNil(t, f.sessions.serverTotals)
	require.Equal(t, int64(60), f.sessions.serverTotals.TrackedSeconds)
	require.Empty(t, f.pending.records)
}

func TestOnlineTickWithoutPreviousIntervalOnlyStarts(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.client.On("StartActivity", ctx, mock.Anything).
		Return(&api.StartActivityResponse{ID: "act-1"}, nil)

	f.acct.Tick(ctx)

	require.Equal(t, "act-1", f.sessions.intervalID)
	f.client.AssertNotCalled(t, "EndActivity", mock.Anything, mock.Anything)
}

func TestOnlineTickTransientFailureBecomesOfflineRecord(t *testing.T) {
	f := newFixture(t, true)
	f.sessions.intervalID = "act-1"
	ctx := context.Background()

	f.click(3)
	f.advance(time.Minute)

	f.client.On("EndActivity", ctx, mock.Anything).
		Return(nil, fmt.Errorf("%w: connection reset", api.ErrNetwork))

	f.acct.Tick(ctx)

	require.True(t, f.conn.offline)
	f.client.AssertNotCalled(t, "StartActivity", mock.Anything, mock.Anything)

	// The undelivered deltas landed in the queue exactly once.
	require.Len(t, f.pending.records, 1)
	payload, err := f.pending.records[0].Activity()
	require.NoError(t, err)
	require.Equal(t, int64(3), payload.ClickDelta)
	require.Equal(t, int64(60), f.sessions.offlineTracked)

	// The next tick starts from a fresh baseline: no double count.
	f.advance(time.Minute)
	f.acct.Tick(ctx)
	require.Len(t, f.pending.records, 2)
	second, err := f.pending.records[1].Activity()
	require.NoError(t, err)
	require.Zero(t, second.ClickDelta)
}

func TestOnlineTickRejectedEndStillStarts(t *testing.T) {
	f := newFixture(t, true)
	f.sessions.intervalID = "act-1"
	ctx := context.Background()

	f.client.On("EndActivity", ctx, mock.Anything).
		Return(nil, &api.StatusError{Code: 400, Message: "already ended"})
	f.client.On("StartActivity", ctx, mock.Anything).
		Return(&api.StartActivityResponse{ID: "act-2"}, nil)

	f.acct.Tick(ctx)

	require.False(t, f.conn.offline)
	require.Equal(t, "act-2", f.sessions.intervalID)
	require.Empty(t, f.pending.records)
}

func TestOfflineTickUsesElapsedWallClock(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.click(2)
	// A suspend gap longer than the cadence still accounts fully.
	f.advance(3 * time.Minute)

	f.acct.Tick(ctx)

	require.Len(t, f.pending.records, 1)
	payload, err := f.pending.records[0].Activity()
	require.NoError(t, err)
	require.Equal(t, int64(2), payload.ClickDelta)
	require.Equal(t, "192.0.2.10", payload.IPAddress)
	require.NotEmpty(t, payload.LocalID)
	require.Equal(t, int64(180), int64(payload.EndedAt.Sub(payload.StartedAt).Seconds()))

	require.Equal(t, int64(180), f.sessions.offlineTracked)
	require.Zero(t, f.sessions.offlineIdle)
}

func TestOfflineIdleTicksPastThreshold(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// Three idle ticks with threshold 2: the first two accrue as active.
	for i := 0; i < 3; i++ {
		f.advance(time.Minute)
		f.acct.Tick(ctx)
	}

	require.Equal(t, int64(120), f.sessions.offlineTracked)
	require.Equal(t, int64(60), f.sessions.offlineIdle)
}

func TestDiffClampsToZero(t *testing.T) {
	baseline := collector.Counters{Clicks: 10, Scrolls: 5, Keys: 20, Text: "hello world"}
	current := collector.Counters{Clicks: 3, Scrolls: 8, Keys: 20, Text: "hi"}

	d := diff(baseline, current)
	require.Zero(t, d.Clicks)
	require.Equal(t, int64(3), d.Scrolls)
	require.Zero(t, d.Keys)
	require.Empty(t, d.Text)
}

func TestDiffAppUsage(t *testing.T) {
	baseline := collector.Counters{AppUsage: map[string]int64{"firefox": 30, "code": 60}}
	current := collector.Counters{AppUsage: map[string]int64{"firefox": 45, "code": 60, "zsh": 5}}

	d := diff(baseline, current)
	require.Equal(t, []queue.AppUsage{
		{Name: "firefox", Seconds: 15},
		{Name: "zsh", Seconds: 5},
	}, d.AppUsage)
}

func TestCloseIntervalOffline(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.acct.CloseInterval(context.Background(), *f.sessions.sess, "act-1")
	require.ErrorIs(t, err, api.ErrNetwork)
}

func TestCloseIntervalSuccess(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.click(4)
	f.advance(time.Minute)

	var ended api.EndActivityRequest
	f.client.On("EndActivity", ctx, mock.Anything).
		Run(func(args mock.Arguments) { ended = args.Get(1).(api.EndActivityRequest) }).
		Return(&api.EndActivityResponse{TrackedSeconds: 3600, IdleSeconds: 120}, nil)

	totals, err := f.acct.CloseInterval(ctx, *f.sessions.sess, "act-1")
	require.NoError(t, err)
	require.Equal(t, int64(3600), totals.TrackedSeconds)
	require.Equal(t, int64(120), totals.IdleSeconds)
	require.Equal(t, "act-1", ended.ActivityID)
	require.Equal(t, int64(4), ended.ClickDelta)
}

func TestCloseIntervalFailureKeepsBaseline(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.click(4)
	f.advance(time.Minute)

	f.client.On("EndActivity", ctx, mock.Anything).
		Return(nil, fmt.Errorf("%w: timeout", api.ErrNetwork)).Once()

	_, err := f.acct.CloseInterval(ctx, *f.sessions.sess, "act-1")
	require.Error(t, err)
	require.True(t, f.conn.offline)

	// The uncommitted deltas are still there for the next attempt.
	f.conn.online = true
	var ended api.EndActivityRequest
	f.client.On("EndActivity", ctx, mock.Anything).
		Run(func(args mock.Arguments) { ended = args.Get(1).(api.EndActivityRequest) }).
		Return(&api.EndActivityResponse{}, nil).Once()

	_, err = f.acct.CloseInterval(ctx, *f.sessions.sess, "act-1")
	require.NoError(t, err)
	require.Equal(t, int64(4), ended.ClickDelta)
}

func TestCloseIntervalWithoutServerIdentity(t *testing.T) {
	f := newFixture(t, true)

	totals, err := f.acct.CloseInterval(context.Background(), *f.sessions.sess, "")
	require.NoError(t, err)
	require.Nil(t, totals)
	f.client.AssertNotCalled(t, "EndActivity", mock.Anything, mock.Anything)
}
