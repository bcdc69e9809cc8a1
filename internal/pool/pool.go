package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Result holds the outcome for one input item. Exactly one of Value/Err is
// meaningful: Err != nil marks the item as failed.
type Result[R any] struct {
	Value R
	Err   error
}

// Map runs fn over items with at most concurrency workers and returns one
// Result per item, in input order. A failing item records an error at its
// slot and never cancels or corrupts its siblings; this is what gives the
// sync engine its partial-failure tolerance. A panicking fn is captured as
// that item's error.
func Map[T, R any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	var cursor int64 = -1
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1))
				if i >= len(items) {
					return
				}
				results[i] = run(ctx, items[i], fn)
			}
		}()
	}
	wg.Wait()
	return results
}

func run[T, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (res Result[R]) {
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	res.Value, res.Err = fn(ctx, item)
	return res
}
