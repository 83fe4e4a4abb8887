package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/api"
	apimocks "github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/api/mocks"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/session"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/repository"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/repository/mocks"
)

type stubConn struct {
	online  bool
	offline bool
}

func (c *stubConn) Online() bool { return c.online }
func (c *stubConn) MarkOffline() { c.offline = true; c.online = false }

type stubCloser struct {
	totals *session.Totals
	err    error

	gotSession  session.Session
	gotInterval string
	calls       int
}

func (c *stubCloser) CloseInterval(ctx context.Context, sess session.Session, intervalID string) (*session.Totals, error) {
	c.calls++
	c.gotSession = sess
	c.gotInterval = intervalID
	return c.totals, c.err
}

type serviceFixture struct {
	svc      *session.Service
	sessions *mocks.SessionRepository
	state    *mocks.StateStore
	client   *apimocks.Client
	conn     *stubConn
}

func newFixture(t *testing.T, online bool) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		sessions: new(mocks.SessionRepository),
		state:    new(mocks.StateStore),
		client:   new(apimocks.Client),
		conn:     &stubConn{online: online},
	}
	f.svc = session.NewService(f.sessions, f.state, f.client, f.conn, 20, nil)
	return f
}

func validStart() session.StartRequest {
	return session.StartRequest{
		OwnerID:     "owner-1",
		TaskID:      "task-1",
		Description: "working on reports",
	}
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t, true)

	for _, req := range []session.StartRequest{
		{TaskID: "t", Description: "d"},
		{OwnerID: "o", Description: "d"},
		{OwnerID: "o", TaskID: "t"},
	} {
		_, err := f.svc.Start(context.Background(), req)
		require.ErrorIs(t, err, session.ErrValidation)
	}

	f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestStartOnline(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.sessions.On("Create", ctx, mock.AnythingOfType("*session.Session")).Return(nil)
	f.sessions.On("Prune", ctx, 20).Return(nil)
	f.state.On("Set", ctx, mock.Anything, mock.Anything).Return(nil)
	f.client.On("StartActivity", ctx, mock.AnythingOfType("api.StartActivityRequest")).
		Return(&api.StartActivityResponse{ID: "act-1"}, nil)

	sess, err := f.svc.Start(ctx, validStart())
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.True(t, sess.Active())
	require.True(t, f.svc.IsLogging())
	require.Equal(t, session.StateLogging, f.svc.State())
	require.Equal(t, "act-1", f.svc.IntervalID())

	f.sessions.AssertExpectations(t)
	f.client.AssertExpectations(t)
}

func TestStartOfflineSkipsServer(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.sessions.On("Prune", ctx, 20).Return(nil)
	f.state.On("Set", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Start(ctx, validStart())
	require.NoError(t, err)
	require.True(t, f.svc.IsLogging())
	require.Empty(t, f.svc.IntervalID())

	f.client.AssertNotCalled(t, "StartActivity", mock.Anything, mock.Anything)
}

func TestStartTransientFailureFallsBackOffline(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.sessions.On("Prune", ctx, 20).Return(nil)
	f.state.On("Set", ctx, mock.Anything, mock.Anything).Return(nil)
	f.client.On("StartActivity", ctx, mock.Anything).
		Return(nil, fmt.Errorf("%w: dial tcp", api.ErrNetwork))

	_, err := f.svc.Start(ctx, validStart())
	require.NoError(t, err)
	require.True(t, f.svc.IsLogging())
	require.Empty(t, f.svc.IntervalID())
	require.True(t, f.conn.offline)
}

func TestStartAlreadyLogging(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.sessions.On("Prune", ctx, 20).Return(nil)
	f.state.On("Set", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Start(ctx, validStart())
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, validStart())
	require.ErrorIs(t, err, session.ErrAlreadyLogging)
}

func TestStopNotLogging(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.Stop(context.Background())
	require.ErrorIs(t, err, session.ErrNotLogging)
}

func TestStopSuccess(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.sessions.On("Prune", ctx, 20).Return(nil)
	f.sessions.On("Close", ctx, mock.Anything, mock.Anything).Return(nil)
	f.state.On("Set", ctx, mock.Anything, mock.Anything).Return(nil)
	f.state.On("Delete", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.client.On("StartActivity", ctx, mock.Anything).
		Return(&api.StartActivityResponse{ID: "act-1"}, nil)

	closer := &stubCloser{totals: &session.Totals{TrackedSeconds: 3600, IdleSeconds: 60}}
	f.svc.SetIntervalCloser(closer)

	started, err := f.svc.Start(ctx, validStart())
	require.NoError(t, err)

	totals, err := f.svc.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3600), totals.TrackedSeconds)
	require.Equal(t, int64(60), totals.IdleSeconds)

	require.Equal(t, 1, closer.calls)
	require.Equal(t, started.ID, closer.gotSession.ID)
	require.Equal(t, "act-1", closer.gotInterval)

	require.False(t, f.svc.IsLogging())
	require.Equal(t, session.StateIdle, f.svc.State())
	require.Nil(t, f.svc.Current())
	require.Zero(t, f.svc.Totals())
}

func TestStopNetworkFailureKeepsSession(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.sessions.On("Prune", ctx, 20).Return(nil)
	f.state.On("Set", ctx, mock.Anything, mock.Anything).Return(nil)

	closer := &stubCloser{err: api.ErrNetwork}
	f.svc.SetIntervalCloser(closer)

	_, err := f.svc.Start(ctx, validStart())
	require.NoError(t, err)

	_, err = f.svc.Stop(ctx)
	require.ErrorIs(t, err, session.ErrStopFailed)

	// Session survives locally; nothing persisted was cleared.
	require.True(t, f.svc.IsLogging())
	require.NotNil(t, f.svc.Current())
	f.sessions.AssertNotCalled(t, "Close", mock.Anything, mock.Anything, mock.Anything)
}

func TestResumeNoPersistedState(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.state.On("Get", ctx, repository.StateIsLogging).Return("", repository.ErrNotFound)

	sess, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	require.Nil(t, sess)
	require.False(t, f.svc.IsLogging())
}

func TestResumeRestoresSession(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	active := &session.Session{
		ID:          "s1",
		OwnerID:     "owner-1",
		TaskID:      "task-1",
		Description: "working on reports",
		StartedAt:   time.Now().Add(-time.Hour),
	}

	f.state.On("Get", ctx, repository.StateIsLogging).Return("true", nil)
	f.sessions.On("GetActive", ctx).Return(active, nil)
	f.state.On("Get", ctx, repository.StateIntervalID).Return("act-9", nil)
	f.state.On("Get", ctx, repository.StateTrackedSeconds).Return("300", nil)
	f.state.On("Get", ctx, repository.StateIdleSeconds).Return("30", nil)

	sess, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	require.Equal(t, "s1", sess.ID)
	require.True(t, f.svc.IsLogging())
	require.Equal(t, "act-9", f.svc.IntervalID())
	require.Equal(t, session.Totals{TrackedSeconds: 300, IdleSeconds: 30}, f.svc.Totals())

	// Offline resume never touches the server.
	f.client.AssertNotCalled(t, "GetActivity", mock.Anything, mock.Anything, mock.Anything)
}

func TestResumeIdempotent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	active := &session.Session{ID: "s1", OwnerID: "o", TaskID: "t", StartedAt: time.Now()}
	f.state.On("Get", ctx, repository.StateIsLogging).Return("true", nil).Once()
	f.sessions.On("GetActive", ctx).Return(active, nil).Once()
	f.state.On("Get", ctx, repository.StateIntervalID).Return("", repository.ErrNotFound).Once()
	f.state.On("Get", ctx, repository.StateTrackedSeconds).Return("", repository.ErrNotFound).Once()
	f.state.On("Get", ctx, repository.StateIdleSeconds).Return("", repository.ErrNotFound).Once()

	first, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	f.sessions.AssertExpectations(t)
	f.state.AssertExpectations(t)
}

func TestResumeStaleFlagCleared(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.state.On("Get", ctx, repository.StateIsLogging).Return("true", nil)
	f.sessions.On("GetActive", ctx).Return(nil, repository.ErrNotFound)
	f.state.On("Delete", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	sess, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	require.Nil(t, sess)
	require.False(t, f.svc.IsLogging())
}

func TestResumeServerTimedOutInterval(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	active := &session.Session{ID: "s1", OwnerID: "owner-1", TaskID: "task-1", StartedAt: time.Now()}
	ended := time.Now().Add(-10 * time.Minute)

	f.state.On("Get", ctx, repository.StateIsLogging).Return("true", nil)
	f.sessions.On("GetActive", ctx).Return(active, nil)
	f.state.On("Get", ctx, repository.StateIntervalID).Return("stale-act", nil)
	f.state.On("Get", ctx, repository.StateTrackedSeconds).Return("100", nil)
	f.state.On("Get", ctx, repository.StateIdleSeconds).Return("0", nil)

	f.client.On("GetActivity", ctx, "owner-1", "stale-act").
		Return(&api.Activity{ID: "stale-act", EndedAt: &ended}, nil)
	f.client.On("RemoveTimeout", ctx, "owner-1", "stale-act").Return(nil)
	f.state.On("Delete", ctx, repository.StateIntervalID).Return(nil)
	f.client.On("StartActivity", ctx, mock.Anything).
		Return(&api.StartActivityResponse{ID: "fresh-act"}, nil)
	f.state.On("Set", ctx, repository.StateIntervalID, "fresh-act").Return(nil)

	sess, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.True(t, f.svc.IsLogging())
	require.Equal(t, "fresh-act", f.svc.IntervalID())

	// The stale interval's counts were acknowledged, never re-sent.
	f.client.AssertNotCalled(t, "EndActivity", mock.Anything, mock.Anything)
	f.client.AssertExpectations(t)
}

func TestResumeStillOpenIntervalKept(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	active := &session.Session{ID: "s1", OwnerID: "owner-1", TaskID: "task-1", StartedAt: time.Now()}

	f.state.On("Get", ctx, repository.StateIsLogging).Return("true", nil)
	f.sessions.On("GetActive", ctx).Return(active, nil)
	f.state.On("Get", ctx, repository.StateIntervalID).Return("act-9", nil)
	f.state.On("Get", ctx, repository.StateTrackedSeconds).Return("0", nil)
	f.state.On("Get", ctx, repository.StateIdleSeconds).Return("0", nil)
	f.client.On("GetActivity", ctx, "owner-1", "act-9").
		Return(&api.Activity{ID: "act-9"}, nil)

	_, err := f.svc.Resume(ctx)
	require.NoError(t, err)
	require.Equal(t, "act-9", f.svc.IntervalID())
	f.client.AssertNotCalled(t, "RemoveTimeout", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyServerTotalsWins(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.sessions.On("Prune", ctx, 20).Return(nil)
	f.state.On("Set", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Start(ctx, validStart())
	require.NoError(t, err)

	require.NoError(t, f.svc.ApplyOfflineTick(ctx, 60, 0))
	require.NoError(t, f.svc.ApplyOfflineTick(ctx, 60, 60))
	require.Equal(t, session.Totals{TrackedSeconds: 120, IdleSeconds: 60}, f.svc.Totals())

	// The server estimate replaces, never adds to, the local one.
	require.NoError(t, f.svc.ApplyServerTotals(ctx, session.Totals{TrackedSeconds: 90, IdleSeconds: 45}))
	require.Equal(t, session.Totals{TrackedSeconds: 90, IdleSeconds: 45}, f.svc.Totals())
}

func TestHardReset(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.sessions.On("Prune", ctx, 20).Return(nil)
	f.sessions.On("Close", ctx, mock.Anything, mock.Anything).Return(nil)
	f.state.On("Set", ctx, mock.Anything, mock.Anything).Return(nil)
	f.state.On("Delete", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Start(ctx, validStart())
	require.NoError(t, err)

	require.NoError(t, f.svc.HardReset(ctx))
	require.False(t, f.svc.IsLogging())
	require.Nil(t, f.svc.Current())
	require.Zero(t, f.svc.Totals())
	require.Equal(t, session.StateIdle, f.svc.State())
}
