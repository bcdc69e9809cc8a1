package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiterConcurrencyBound(t *testing.T) {
	l := NewLimiter(3, 0)
	var cur, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func(context.Context) error {
				n := atomic.AddInt32(&cur, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&cur, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	if peak > 3 {
		t.Fatalf("concurrency bound violated: peak=%d", peak)
	}
	if peak < 2 {
		t.Fatalf("expected some parallelism, peak=%d", peak)
	}
}

func TestLimiterPacingFloor(t *testing.T) {
	const interval = 20 * time.Millisecond
	l := NewLimiter(4, interval)
	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	if len(starts) != 5 {
		t.Fatalf("expected 5 dispatches, got %d", len(starts))
	}
	// dispatch order is FIFO but goroutine start order is not; sort by time
	for i := 1; i < len(starts); i++ {
		for j := i; j > 0 && starts[j].Before(starts[j-1]); j-- {
			starts[j], starts[j-1] = starts[j-1], starts[j]
		}
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < interval-2*time.Millisecond {
			t.Fatalf("dispatch %d only %s after previous (floor %s)", i, gap, interval)
		}
	}
}

func TestLimiterQueueIsFIFO(t *testing.T) {
	l := NewLimiter(1, 0)
	release := make(chan struct{})
	started := make(chan struct{})
	go l.Do(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		// stagger enqueues so queue order is deterministic
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	wg.Wait()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestLimiterContextCancelWhileQueued(t *testing.T) {
	l := NewLimiter(1, 0)
	release := make(chan struct{})
	started := make(chan struct{})
	go l.Do(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Do(ctx, func(context.Context) error { return nil })
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)

	// limiter must still dispatch after a canceled waiter
	if err := l.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("limiter wedged after cancellation: %v", err)
	}
}

func TestScheduleReturnsValue(t *testing.T) {
	l := NewLimiter(2, 0)
	v, err := Schedule(context.Background(), l, func(context.Context) (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("Schedule=%d,%v want 42,nil", v, err)
	}
}
