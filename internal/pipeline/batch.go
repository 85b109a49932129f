package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// batchOptions controls forEachBatch. Zero Size means everything in
// one batch; zero Delay means no pause between batches.
type batchOptions[R any] struct {
	// Size is the number of items processed concurrently per batch.
	Size int
	// Delay is slept between consecutive batches.
	Delay time.Duration
	// SkipDelay, when set, is consulted with the batch that just
	// finished; returning true suppresses the inter-batch delay.
	SkipDelay func(batch []R) bool
	// sleep is replaceable in tests. Nil means time.Sleep.
	sleep func(time.Duration)
}

// forEachBatch runs fn over items in fixed-size batches: items within a
// batch run concurrently, batches run sequentially with a delay between
// them. Results come back in input order. The first error cancels the
// current batch and aborts the run.
func forEachBatch[T, R any](ctx context.Context, items []T, opts batchOptions[R], fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	size := opts.Size
	if size <= 0 {
		size = len(items)
	}
	sleep := opts.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	results := make([]R, len(items))
	for offset := 0; offset < len(items); offset += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := offset + size
		if end > len(items) {
			end = len(items)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := offset; i < end; i++ {
			i := i
			g.Go(func() error {
				r, err := fn(gctx, items[i])
				if err != nil {
					return err
				}
				results[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if end < len(items) && opts.Delay > 0 {
			batch := results[offset:end]
			if opts.SkipDelay == nil || !opts.SkipDelay(batch) {
				sleep(opts.Delay)
			}
		}
	}
	return results, nil
}
