package workers

import (
	"context"
	"sync"
)

// ItemFunc processes the item at index i. It is called at most once per index.
type ItemFunc func(ctx context.Context, i int) error

// BatchConfig holds configuration for a bounded batch run.
type BatchConfig struct {
	// Concurrency is the number of items processed at once.
	Concurrency int
}

// DefaultBatchConfig returns sensible defaults for per-item stage work.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{Concurrency: 4}
}

// RunBatch executes fn for every index in [0, n) with bounded concurrency and
// returns the per-index errors. Completion order is unconstrained; results are
// reported by index so callers can merge them back in input order. A cancelled
// context stops new items from starting; in-flight items run to completion.
func RunBatch(ctx context.Context, n int, cfg BatchConfig, fn ItemFunc) []error {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultBatchConfig().Concurrency
	}

	errs := make([]error, n)
	sem := make(chan struct{}, cfg.Concurrency)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = fn(ctx, i)
		}(i)
	}

	wg.Wait()
	return errs
}
