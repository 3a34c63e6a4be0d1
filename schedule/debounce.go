// Package schedule provides a keyed delayed-task scheduler. Rapid
// submissions for the same key coalesce: only the last one runs after
// the delay, and every submission gets an awaitable completion.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrSuperseded completes a submission that was displaced by a newer
	// one for the same key before its delay elapsed.
	ErrSuperseded = errors.New("superseded by a newer submission")

	// ErrStopped completes pending submissions when the scheduler shuts
	// down.
	ErrStopped = errors.New("scheduler stopped")
)

// Task is the unit of deferred work. The context is canceled when the
// scheduler stops.
type Task func(ctx context.Context) error

type pendingTask struct {
	timer *time.Timer
	done  chan error
}

// Debouncer defers tasks per key. Each key has at most one pending
// task; resubmitting resets the delay and supersedes the previous
// waiter.
type Debouncer struct {
	delay  time.Duration
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*pendingTask
	firing  sync.WaitGroup
	stopped bool
}

// NewDebouncer creates a scheduler with the given coalescing delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		delay:   delay,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*pendingTask),
	}
}

// Submit schedules task to run after the delay, replacing any task
// still pending for key. The returned channel receives exactly one
// value: the task's error, ErrSuperseded, or ErrStopped.
func (d *Debouncer) Submit(key string, task Task) <-chan error {
	done := make(chan error, 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		done <- ErrStopped
		return done
	}

	if prev, ok := d.pending[key]; ok {
		// Stop returns false when the timer already fired; in that case
		// the previous waiter gets its task's real result.
		if prev.timer.Stop() {
			prev.done <- ErrSuperseded
			d.firing.Done()
		}
	}

	p := &pendingTask{done: done}
	d.firing.Add(1)
	p.timer = time.AfterFunc(d.delay, func() {
		defer d.firing.Done()

		d.mu.Lock()
		if d.pending[key] == p {
			delete(d.pending, key)
		}
		d.mu.Unlock()

		done <- task(d.ctx)
	})
	d.pending[key] = p

	return done
}

// Stop cancels all pending tasks, waits for any task already firing to
// finish, and rejects further submissions.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for key, p := range d.pending {
		if p.timer.Stop() {
			p.done <- ErrStopped
			d.firing.Done()
		}
		delete(d.pending, key)
	}
	d.mu.Unlock()

	d.cancel()
	d.firing.Wait()
}
