package stage

import (
	"context"
	"sync"
)

// RunPool fans n independent work units out across a bounded worker set and
// returns the per-unit errors, indexed by unit. Cancellation stops the
// fan-out: units that never started report the context error while units
// already running finish and report their own result. Slice slots are owned
// by exactly one goroutine, so callers may read the result without locking.
func RunPool(ctx context.Context, workers, n int, fn func(ctx context.Context, index int) error) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	units := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for index := range units {
				errs[index] = fn(ctx, index)
			}
		}()
	}

	next := 0
feed:
	for ; next < n; next++ {
		select {
		case units <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(units)
	wg.Wait()

	for ; next < n; next++ {
		errs[next] = ctx.Err()
	}
	return errs
}
