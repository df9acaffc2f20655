// Package parallel provides chunked parallel loops for the vectorized device.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Maximum number of concurrently running goroutines.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 4096, // Elementwise kernels are memory bound.
	}
}

// Chunks returns the number of chunks ForRange splits n items into.
func (cfg Config) Chunks(n int) int {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*cfg.MinChunkSize {
		return 1
	}
	return min(cfg.NumWorkers, n/max(cfg.MinChunkSize, 1))
}

// ForRange calls f(lo, hi) over disjoint ranges covering [0, n) and
// returns once every call has finished.
// Falls back to a single sequential call if parallelism is disabled or n is
// too small.
func ForRange(n int, cfg Config, f func(lo, hi int)) {
	chunks := cfg.Chunks(n)
	if chunks <= 1 {
		if n > 0 {
			f(0, n)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	size := (n + chunks - 1) / chunks
	for start := 0; start < n; start += size {
		lo, hi := start, min(start+size, n)
		g.Go(func() error {
			f(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// For executes f(i) for i in [0, n) with optional parallelism.
func For(n int, f func(i int), cfg Config) {
	ForRange(n, cfg, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	})
}
