package dynamo

import (
	"golang.org/x/sync/errgroup"
)

// parallelFor executes fn over [0, n) in contiguous chunks on at most
// workers goroutines and waits for all of them. The first error wins.
func parallelFor(n, minChunk, workers int, fn func(start, end int) error) error {
	if n == 0 {
		return nil
	}
	if n <= minChunk || workers <= 1 {
		return fn(0, n)
	}

	chunks := workers
	if n/minChunk < chunks {
		chunks = n / minChunk
	}
	if chunks < 1 {
		chunks = 1
	}
	chunkSize := (n + chunks - 1) / chunks

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		g.Go(func() error { return fn(start, end) })
	}
	return g.Wait()
}
