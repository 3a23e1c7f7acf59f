package ops

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// parallelFor splits [0, n) into contiguous chunks and runs fn on each
// from a bounded worker group. Chunks are disjoint, so kernels that write
// distinct output regions per index need no further coordination. Small
// ranges run inline.
func parallelFor(n int, fn func(start, end int)) {
	workers := runtime.GOMAXPROCS(0)
	if n < 2 || workers < 2 {
		fn(0, n)
		return
	}
	if workers > n {
		workers = n
	}

	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (n + workers - 1) / workers
	for start := 0; start < n; start += chunk {
		start := start // per-iteration copy for the closure below (pre-1.22 loop semantics)
		end := start + chunk
		if end > n {
			end = n
		}
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	// Workers never return errors; Wait only fences completion.
	_ = g.Wait()
}
