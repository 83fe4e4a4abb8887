// Package connectivity tracks the single online/offline signal the
// tracking core consumes.
package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/repository"
)

// ErrCooldownActive indicates the manual-offline toggle was used within
// the cooldown window.
var ErrCooldownActive = errors.New("manual offline cooldown is active")

// HealthProber probes the backend health endpoint.
type HealthProber interface {
	Health(ctx context.Context) error
}

// StateStore persists the manual-offline cooldown across restarts.
type StateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Monitor emits a boolean online signal fed by health probes, explicit
// marks from failed API calls, and the manual-offline switch.
type Monitor struct {
	prober   HealthProber
	state    StateStore
	logger   *slog.Logger
	cooldown time.Duration

	mu          sync.Mutex
	online      bool
	manualUntil time.Time
	subscribers []func(online bool)

	nowFn func() time.Time
}

// NewMonitor creates a monitor that starts online; the first probe or
// failed call corrects that if needed.
func NewMonitor(prober HealthProber, state StateStore, cooldown time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		prober:   prober,
		state:    state,
		logger:   logger,
		cooldown: cooldown,
		online:   true,
		nowFn:    time.Now,
	}
}

// Restore loads a persisted manual-offline cooldown so a restart respects
// an in-progress cooldown.
func (m *Monitor) Restore(ctx context.Context) {
	raw, err := m.state.Get(ctx, repository.StateManualOfflineUntil)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			m.logger.Warn("reading manual offline state failed", "error", err)
		}
		return
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	until := time.Unix(unix, 0)

	m.mu.Lock()
	m.manualUntil = until
	active := m.nowFn().Before(until)
	if active {
		m.online = false
	}
	m.mu.Unlock()

	if active {
		m.logger.Info("manual offline restored", "until", until)
	}
}

// Online returns the current signal.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback invoked on every online/offline
// transition. Callbacks run outside the monitor lock.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// MarkOffline flips the signal to offline. Called on network-down events,
// failed calls and system suspend.
func (m *Monitor) MarkOffline() {
	m.transition(false)
}

// MarkOnline flips the signal to online unless a manual-offline cooldown
// is still active.
func (m *Monitor) MarkOnline() {
	m.mu.Lock()
	manual := m.nowFn().Before(m.manualUntil)
	m.mu.Unlock()
	if manual {
		return
	}
	m.transition(true)
}

// SetManualOffline switches to offline by user request, rate-limited to
// one transition per cooldown. The cooldown expiry is persisted.
func (m *Monitor) SetManualOffline(ctx context.Context) error {
	m.mu.Lock()
	now := m.nowFn()
	if now.Before(m.manualUntil) {
		m.mu.Unlock()
		return ErrCooldownActive
	}
	until := now.Add(m.cooldown)
	m.manualUntil = until
	m.mu.Unlock()

	if err := m.state.Set(ctx, repository.StateManualOfflineUntil, strconv.FormatInt(until.Unix(), 10)); err != nil {
		m.logger.Error("persisting manual offline state failed", "error", err)
	}

	m.logger.Info("manual offline enabled", "until", until)
	m.transition(false)
	return nil
}

// Probe runs one health check and updates the signal.
func (m *Monitor) Probe(ctx context.Context) {
	if err := m.prober.Health(ctx); err != nil {
		m.logger.Debug("health probe failed", "error", err)
		m.MarkOffline()
		return
	}
	m.MarkOnline()
}

func (m *Monitor) transition(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subscribers := make([]func(bool), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	if online {
		m.logger.Info("connectivity restored")
	} else {
		m.logger.Warn("connectivity lost")
	}
	for _, fn := range subscribers {
		fn(online)
	}
}
