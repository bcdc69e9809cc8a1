package sched

import (
	"context"
	"sync"
	"time"
)

// Limiter bounds how a provider client talks to a rate-limited remote API:
// at most MaxConcurrent calls in flight, and consecutive dispatches at least
// MinInterval apart. Pending tasks queue FIFO; a slot freeing up or the pacing
// timer firing re-drains the queue. Each provider instantiates its own Limiter
// so two providers never contend on shared scheduling state.
type Limiter struct {
	maxConcurrent int
	minInterval   time.Duration

	mu           sync.Mutex
	inFlight     int
	lastDispatch time.Time
	queue        []*waiter
	timerArmed   bool
}

type waiter struct {
	ready    chan struct{}
	canceled bool
}

func NewLimiter(maxConcurrent int, minInterval time.Duration) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if minInterval < 0 {
		minInterval = 0
	}
	return &Limiter{maxConcurrent: maxConcurrent, minInterval: minInterval}
}

// Do runs fn once a dispatch slot is available, blocking until then or until
// ctx is done. The slot is held for fn's full duration; back-pressure is
// cooperative, not preemptive.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return fn(ctx)
}

// Schedule is Do with a typed result.
func Schedule[T any](ctx context.Context, l *Limiter, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := l.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (l *Limiter) acquire(ctx context.Context) error {
	w := &waiter{ready: make(chan struct{})}
	l.mu.Lock()
	l.queue = append(l.queue, w)
	l.drainLocked()
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-w.ready:
			// lost the race: already dispatched, give the slot back
			l.mu.Unlock()
			l.release()
		default:
			w.canceled = true
			l.mu.Unlock()
		}
		return ctx.Err()
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	l.inFlight--
	l.drainLocked()
	l.mu.Unlock()
}

// drainLocked dispatches queued waiters while a slot is free and the pacing
// floor has elapsed. When only the pacing floor blocks, it arms a single
// timer and returns; the timer callback re-drains. Caller holds l.mu.
func (l *Limiter) drainLocked() {
	for len(l.queue) > 0 {
		if l.queue[0].canceled {
			l.queue = l.queue[1:]
			continue
		}
		if l.inFlight >= l.maxConcurrent {
			return
		}
		if wait := l.minInterval - time.Since(l.lastDispatch); wait > 0 {
			if !l.timerArmed {
				l.timerArmed = true
				time.AfterFunc(wait, func() {
					l.mu.Lock()
					l.timerArmed = false
					l.drainLocked()
					l.mu.Unlock()
				})
			}
			return
		}
		w := l.queue[0]
		l.queue = l.queue[1:]
		l.inFlight++
		l.lastDispatch = time.Now()
		close(w.ready)
	}
}
