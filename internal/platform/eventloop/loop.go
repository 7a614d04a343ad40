// Package eventloop provides a single-goroutine executor. Everything posted to
// a Loop runs sequentially on the goroutine that called Run, so state touched
// only from posted tasks needs no locking.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Call once the loop stopped accepting work.
var ErrClosed = errors.New("event loop closed")

// Loop is an unbounded FIFO of tasks drained by one goroutine.
// Post never blocks, so tasks may post further tasks.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// New returns a loop that is not yet running.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start runs the loop on a new goroutine and returns l.
func (l *Loop) Start() *Loop {
	go l.Run()
	return l
}

// Run drains tasks until Close is called and the queue is empty.
func (l *Loop) Run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.tasks) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.tasks
		l.tasks = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

// Post schedules fn. It reports false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.cond.Signal()
	return true
}

// Call runs fn on the loop and waits for it to return.
// It must not be called from a task running on the same loop.
func (l *Loop) Call(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	<-finished
	return nil
}

// Drain waits until the loop has run out of queued work, including tasks
// posted by the tasks it ran. Timers that have not fired yet are not waited
// for. Like Call, it must not be used from the loop itself.
func (l *Loop) Drain() error {
	for {
		empty := false
		if err := l.Call(func() {
			l.mu.Lock()
			empty = len(l.tasks) == 0
			l.mu.Unlock()
		}); err != nil {
			return err
		}
		if empty {
			return nil
		}
	}
}

// AfterFunc runs fn on the loop after d, unless ctx is cancelled first.
// The returned stop function cancels the timer; it is safe to call twice.
func (l *Loop) AfterFunc(ctx context.Context, d time.Duration, fn func()) (stop func()) {
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if ctx.Err() == nil {
				fn()
			}
		})
	})
	unregister := context.AfterFunc(ctx, func() { t.Stop() })
	return func() {
		unregister()
		t.Stop()
	}
}

// Close stops accepting tasks. Tasks already queued still run.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
