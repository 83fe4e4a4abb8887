// Package schedule runs fixed-cadence tasks with explicit cancel-on-stop
// semantics. Components expose plain Tick methods and stay testable
// without wall-clock timers; only this package touches time.Ticker.
package schedule

import (
	"context"
	"sync"
	"time"
)

// TickFunc is one cadence callback.
type TickFunc func(ctx context.Context)

// Task is a running fixed-cadence job.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every runs fn every interval until the task is stopped or ctx is
// cancelled. The first run happens after one full interval.
func Every(ctx context.Context, interval time.Duration, fn TickFunc) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(task.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()

	return task
}

// Stop cancels the task and waits for any in-flight tick to return.
func (t *Task) Stop() {
	t.once.Do(func() {
		t.cancel()
		<-t.done
	})
}
