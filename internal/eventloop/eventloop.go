// Package eventloop is a single-threaded cooperative task loop. All broker
// session state and every command handler run on the loop goroutine. A task
// that must wait for a later task (a broker callback) calls WaitUntil, which
// keeps running queued tasks until its condition holds.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotRunning is returned by WaitUntil when called outside a loop task.
var ErrNotRunning = errors.New("eventloop: WaitUntil called outside the loop")

// Loop runs posted tasks one at a time on the goroutine that called Run.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	notify chan struct{}

	depth   int // nesting level of the task currently executing; loop goroutine only
	running atomic.Bool
}

// New creates an idle loop.
func New() *Loop {
	return &Loop{notify: make(chan struct{}, 1)}
}

// Post schedules fn to run on the loop. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Running reports whether Run is active.
func (l *Loop) Running() bool { return l.running.Load() }

// Run executes tasks until ctx is cancelled. It must be called from exactly
// one goroutine.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	defer l.running.Store(false)
	for {
		if !l.runOne() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.notify:
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// WaitUntil runs queued tasks on the current (loop) goroutine until cond
// returns true or ctx is done. It may only be called from inside a task.
func (l *Loop) WaitUntil(ctx context.Context, cond func() bool) error {
	if l.depth == 0 {
		return ErrNotRunning
	}
	for !cond() {
		if l.runOne() {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
		}
	}
	return nil
}

// Depth returns how many tasks are on the call stack. Loop goroutine only.
func (l *Loop) Depth() int { return l.depth }

func (l *Loop) runOne() bool {
	l.mu.Lock()
	if len(l.tasks) == 0 {
		l.mu.Unlock()
		return false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	l.mu.Unlock()

	l.depth++
	defer func() { l.depth-- }()
	fn()
	return true
}

// Every posts fn to the loop every d until ctx is done or stop is called.
// A tick is not posted while the previous one is still queued or running,
// so a slow fn never accumulates a backlog.
func (l *Loop) Every(ctx context.Context, d time.Duration, fn func()) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var pending atomic.Bool
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !pending.CompareAndSwap(false, true) {
					continue
				}
				l.Post(func() {
					defer pending.Store(false)
					if ctx.Err() == nil {
						fn()
					}
				})
			}
		}
	}()
	return cancel
}
