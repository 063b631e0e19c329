// Package parallel fans independent per-element work out over a bounded
// number of goroutines.
//
// Callers share read-only state (spatial indexes, grids) with the workers
// and write results into disjoint slots of a preallocated slice, so no
// locking is needed inside fn.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minChunk keeps tiny inputs from paying goroutine start-up costs.
const minChunk = 256

// ctxCheckMask sets how often workers poll for cancellation.
const ctxCheckMask = 1023

// Workers resolves a requested worker count: values below 1 mean
// runtime.GOMAXPROCS(0).
func Workers(requested int) int {
	if requested < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return requested
}

// For calls fn(i) for every i in [0, n). Indices are split into contiguous
// chunks, one per worker. The first error returned by fn cancels the
// remaining chunks and is returned. A cancelled ctx stops work at the next
// polling point.
func For(ctx context.Context, n, workers int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	workers = Workers(workers)
	if workers > n/minChunk {
		workers = max(1, n/minChunk)
	}
	if workers == 1 {
		for i := 0; i < n; i++ {
			if i&ctxCheckMask == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for start := 0; start < n; start += chunk {
		lo, hi := start, min(start+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)&ctxCheckMask == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Range is For without error propagation from fn.
func Range(ctx context.Context, n, workers int, fn func(i int)) error {
	return For(ctx, n, workers, func(i int) error {
		fn(i)
		return nil
	})
}
