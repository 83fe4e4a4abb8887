package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/api"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/repository"
	"github.com/google/uuid"
)

// Service is the session state machine. It exclusively owns the current
// Session, the open-interval identifier and the tracked/idle accumulator;
// every write to that shared state goes through here.
type Service struct {
	sessions Repository
	state    StateStore
	client   api.Client
	conn     Connectivity
	logger   *slog.Logger
	retained int

	mu         sync.Mutex
	machine    State
	current    *Session
	intervalID string
	totals     Totals
	closer     IntervalCloser

	nowFn func() time.Time
}

// NewService creates the session state machine.
func NewService(sessions Repository, state StateStore, client api.Client, conn Connectivity, retained int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions: sessions,
		state:    state,
		client:   client,
		conn:     conn,
		logger:   logger,
		retained: retained,
		machine:  StateIdle,
		nowFn:    time.Now,
	}
}

// SetIntervalCloser wires the interval accountant in after construction.
func (s *Service) SetIntervalCloser(closer IntervalCloser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closer = closer
}

// StartRequest describes a logging start request.
type StartRequest struct {
	OwnerID     string
	TaskID      string
	Description string
}

// Start transitions Idle -> Logging: creates a session, persists its
// identity and opens the first activity interval.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if req.OwnerID == "" || req.TaskID == "" || req.Description == "" {
		return nil, ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine == StateLogging || s.machine == StateRestarting {
		return nil, ErrAlreadyLogging
	}

	now := s.nowFn()
	sess := &Session{
		ID:          uuid.NewString(),
		OwnerID:     req.OwnerID,
		TaskID:      req.TaskID,
		Description: req.Description,
		StartedAt:   now,
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	if err := s.sessions.Prune(ctx, s.retained); err != nil {
		s.logger.Warn("pruning old sessions failed", "error", err)
	}

	s.current = sess
	s.totals = Totals{}
	s.intervalID = ""

	if err := s.persistIdentityLocked(ctx); err != nil {
		return nil, err
	}
	if err := s.persistTotalsLocked(ctx); err != nil {
		return nil, err
	}

	s.openIntervalLocked(ctx, now)

	s.machine = StateLogging
	s.logger.Info("logging started", "session", sess.ID, "owner", sess.OwnerID, "task", sess.TaskID)
	return s.copyCurrentLocked(), nil
}

// Stop transitions Logging -> Stopped -> Idle. The open interval is closed
// with its final deltas; if that server round-trip fails the session is NOT
// cleared locally and the error is surfaced for retry.
func (s *Service) Stop(ctx context.Context) (*Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine != StateLogging && s.machine != StateRestarting {
		return nil, ErrNotLogging
	}

	if s.closer != nil {
		totals, err := s.closer.CloseInterval(ctx, *s.current, s.intervalID)
		if err != nil {
			s.logger.Warn("stop not confirmed, session stays active", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrStopFailed, err)
		}
		if totals != nil {
			s.totals = *totals
		}
	}

	final := s.totals
	if err := s.finishLocked(ctx); err != nil {
		return nil, err
	}
	return &final, nil
}

// Resume restores the machine from persisted state at process start. It is
// idempotent; a second call is a no-op returning the current session. When
// the server reports the previously open interval already ended (timeout),
// the machine passes through Restarting: it acknowledges the stale end and
// opens a fresh interval without re-sending the closed interval's counts.
func (s *Service) Resume(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine != StateIdle {
		return s.copyCurrentLocked(), nil
	}

	logging, err := s.state.Get(ctx, repository.StateIsLogging)
	if errors.Is(err, repository.ErrNotFound) || logging != "true" {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading logging flag: %w", err)
	}

	sess, err := s.sessions.GetActive(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		// Flag without a session row: stale state, clear it.
		s.clearPersistedLocked(ctx)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading active session: %w", err)
	}

	s.current = sess
	s.intervalID = s.stateValueLocked(ctx, repository.StateIntervalID)
	s.totals = s.loadTotalsLocked(ctx)

	if s.conn.Online() && s.intervalID != "" {
		s.recoverIntervalLocked(ctx)
	}

	s.machine = StateLogging
	s.logger.Info("logging resumed", "session", sess.ID, "interval", s.intervalID)
	return s.copyCurrentLocked(), nil
}

// HardReset clears all persisted identifiers and returns the machine to
// Idle regardless of its current state. Used on logout.
func (s *Service) HardReset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.Active() {
		if err := s.sessions.Close(ctx, s.current.ID, s.nowFn()); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("closing session on reset failed", "error", err)
		}
	}
	s.clearPersistedLocked(ctx)
	s.current = nil
	s.intervalID = ""
	s.totals = Totals{}
	s.machine = StateIdle
	s.logger.Info("state machine hard reset")
	return nil
}

// State returns the current machine state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine
}

// IsLogging reports whether a session is conceptually active.
func (s *Service) IsLogging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine == StateLogging || s.machine == StateRestarting
}

// Current returns a copy of the active session, or nil.
func (s *Service) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyCurrentLocked()
}

// IntervalID returns the currently open activity-interval id ("" while the
// interval has no server identity).
func (s *Service) IntervalID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervalID
}

// SetIntervalID persists a new open-interval id.
func (s *Service) SetIntervalID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setIntervalIDLocked(ctx, id)
}

// Totals returns the tracked/idle accumulator.
func (s *Service) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// ApplyServerTotals replaces the accumulator with the server's
// authoritative values. The server always wins over the local estimate.
func (s *Service) ApplyServerTotals(ctx context.Context, t Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = t
	return s.persistTotalsLocked(ctx)
}

// ApplyOfflineTick accrues a locally estimated tick to the accumulator.
func (s *Service) ApplyOfflineTick(ctx context.Context, trackedSeconds, idleSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.TrackedSeconds += trackedSeconds
	s.totals.IdleSeconds += idleSeconds
	return s.persistTotalsLocked(ctx)
}

func (s *Service) copyCurrentLocked() *Session {
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// openIntervalLocked opens a server-side interval when online. Failure is
// not fatal: the interval stays without server identity and ticks go to the
// offline queue until connectivity resumes.
func (s *Service) openIntervalLocked(ctx context.Context, at time.Time) {
	if !s.conn.Online() {
		return
	}

	resp, err := s.client.StartActivity(ctx, api.StartActivityRequest{
		OwnerID:     s.current.OwnerID,
		TaskID:      s.current.TaskID,
		Description: s.current.Description,
		SessionID:   s.current.ID,
		StartedAt:   at,
	})
	if err != nil {
		s.logger.Warn("opening interval failed, falling back to offline", "error", err)
		if api.Transient(err) {
			s.conn.MarkOffline()
		}
		return
	}
	if err := s.setIntervalIDLocked(ctx, resp.ID); err != nil {
		s.logger.Error("persisting interval id failed", "error", err)
	}
}

// recoverIntervalLocked handles the Logging -> Restarting -> Logging path:
// if the server already closed the open interval (timeout), acknowledge the
// stale end and open a fresh interval. The closed interval's counts are
// never re-sent.
func (s *Service) recoverIntervalLocked(ctx context.Context) {
	act, err := s.client.GetActivity(ctx, s.current.OwnerID, s.intervalID)
	if err != nil {
		if api.Transient(err) {
			s.conn.MarkOffline()
		} else {
			s.logger.Warn("interval lookup failed at resume", "error", err)
		}
		return
	}
	if act.EndedAt == nil {
		return
	}

	s.machine = StateRestarting
	s.logger.Info("server ended interval by timeout, restarting", "interval", s.intervalID)

	if err := s.client.RemoveTimeout(ctx, s.current.OwnerID, s.intervalID); err != nil {
		s.logger.Warn("clearing timeout flag failed", "error", err)
	}
	if err := s.setIntervalIDLocked(ctx, ""); err != nil {
		s.logger.Error("clearing stale interval id failed", "error", err)
	}
	s.openIntervalLocked(ctx, s.nowFn())
}

func (s *Service) finishLocked(ctx context.Context) error {
	now := s.nowFn()
	if err := s.sessions.Close(ctx, s.current.ID, now); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	s.current.EndedAt = &now

	s.machine = StateStopped
	s.clearPersistedLocked(ctx)
	s.current = nil
	s.intervalID = ""
	s.totals = Totals{}
	s.machine = StateIdle
	s.logger.Info("logging stopped")
	return nil
}

func (s *Service) persistIdentityLocked(ctx context.Context) error {
	pairs := map[string]string{
		repository.StateOwnerID:     s.current.OwnerID,
		repository.StateTaskID:      s.current.TaskID,
		repository.StateDescription: s.current.Description,
		repository.StateSessionID:   s.current.ID,
		repository.StateIsLogging:   "true",
	}
	for key, value := range pairs {
		if err := s.state.Set(ctx, key, value); err != nil {
			return fmt.Errorf("persisting session identity: %w", err)
		}
	}
	return nil
}

func (s *Service) persistTotalsLocked(ctx context.Context) error {
	if err := s.state.Set(ctx, repository.StateTrackedSeconds, strconv.FormatInt(s.totals.TrackedSeconds, 10)); err != nil {
		return fmt.Errorf("persisting tracked seconds: %w", err)
	}
	if err := s.state.Set(ctx, repository.StateIdleSeconds, strconv.FormatInt(s.totals.IdleSeconds, 10)); err != nil {
		return fmt.Errorf("persisting idle seconds: %w", err)
	}
	return nil
}

func (s *Service) setIntervalIDLocked(ctx context.Context, id string) error {
	s.intervalID = id
	if id == "" {
		return s.state.Delete(ctx, repository.StateIntervalID)
	}
	return s.state.Set(ctx, repository.StateIntervalID, id)
}

func (s *Service) clearPersistedLocked(ctx context.Context) {
	err := s.state.Delete(ctx,
		repository.StateSessionID,
		repository.StateIntervalID,
		repository.StateIsLogging,
		repository.StateTrackedSeconds,
		repository.StateIdleSeconds,
	)
	if err != nil {
		s.logger.Error("clearing persisted state failed", "error", err)
	}
}

func (s *Service) stateValueLocked(ctx context.Context, key string) string {
	value, err := s.state.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("reading persisted state failed", "key", key, "error", err)
		}
		return ""
	}
	return value
}

func (s *Service) loadTotalsLocked(ctx context.Context) Totals {
	var t Totals
	if raw := s.stateValueLocked(ctx, repository.StateTrackedSeconds); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t.TrackedSeconds = n
		}
	}
	if raw := s.stateValueLocked(ctx, repository.StateIdleSeconds); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t.IdleSeconds = n
		}
	}
	return t
}
