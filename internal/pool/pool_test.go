package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapPreservesOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	results := Map(context.Background(), items, 4, func(_ context.Context, i int) (string, error) {
		// finish out of order on purpose
		time.Sleep(time.Duration(10-i) * time.Millisecond)
		return fmt.Sprintf("v%d", i), nil
	})
	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.Err != nil || r.Value != fmt.Sprintf("v%d", i) {
			t.Fatalf("slot %d: %q/%v", i, r.Value, r.Err)
		}
	}
}

func TestMapPartialFailureIsolation(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	failAt := 2
	results := Map(context.Background(), items, 3, func(_ context.Context, i int) (int, error) {
		if i == failAt {
			return 0, errors.New("boom")
		}
		return i * 10, nil
	})
	if len(results) != len(items) {
		t.Fatalf("failure reduced result count: %d", len(results))
	}
	for i, r := range results {
		if i == failAt {
			if r.Err == nil {
				t.Fatalf("slot %d should carry the error", i)
			}
			continue
		}
		if r.Err != nil || r.Value != i*10 {
			t.Fatalf("neighbor slot %d corrupted: %d/%v", i, r.Value, r.Err)
		}
	}
}

func TestMapBoundsConcurrency(t *testing.T) {
	var cur, peak int32
	Map(context.Background(), make([]int, 30), 3, func(_ context.Context, _ int) (int, error) {
		n := atomic.AddInt32(&cur, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&cur, -1)
		return 0, nil
	})
	if peak > 3 {
		t.Fatalf("concurrency bound violated: peak=%d", peak)
	}
}

func TestMapEmptyAndSmallInputs(t *testing.T) {
	if got := Map(context.Background(), nil, 8, func(_ context.Context, i int) (int, error) { return i, nil }); len(got) != 0 {
		t.Fatalf("empty input should yield empty results")
	}
	// more workers than items must not deadlock or duplicate work
	var calls int32
	got := Map(context.Background(), []int{1, 2}, 16, func(_ context.Context, i int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return i, nil
	})
	if len(got) != 2 || calls != 2 {
		t.Fatalf("results=%d calls=%d", len(got), calls)
	}
}

func TestMapRecoversPanics(t *testing.T) {
	results := Map(context.Background(), []int{0, 1, 2}, 2, func(_ context.Context, i int) (int, error) {
		if i == 1 {
			panic("kaboom")
		}
		return i, nil
	})
	if results[1].Err == nil {
		t.Fatalf("panic should surface as the item's error")
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("panic leaked into sibling results")
	}
}
