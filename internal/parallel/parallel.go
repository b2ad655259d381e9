// Package parallel splits index ranges across goroutines for CPU kernels
// whose iterations write disjoint memory.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a range is split.
type Config struct {
	Workers  int // upper bound on goroutines; <= 1 runs inline
	MinChunk int // smallest range handed to one goroutine
}

// DefaultConfig uses one worker per CPU and chunks of at least one index.
func DefaultConfig() Config {
	return Config{Workers: runtime.NumCPU(), MinChunk: 1}
}

// Ranges returns the half-open chunks [lo, hi) that For would hand out
// for n indices, in order.
func (c Config) Ranges(n int) [][2]int {
	if n <= 0 {
		return nil
	}
	workers := max(c.Workers, 1)
	chunk := max((n+workers-1)/workers, c.MinChunk, 1)
	out := make([][2]int, 0, (n+chunk-1)/chunk)
	for lo := 0; lo < n; lo += chunk {
		out = append(out, [2]int{lo, min(lo+chunk, n)})
	}
	return out
}

// For calls f once per chunk of [0, n) and waits for all of them.
// A single chunk runs on the calling goroutine.
//
// The result is deterministic as long as f only writes memory owned by
// its own range.
func For(n int, cfg Config, f func(lo, hi int)) {
	ranges := cfg.Ranges(n)
	switch len(ranges) {
	case 0:
		return
	case 1:
		f(ranges[0][0], ranges[0][1])
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(ranges))
	for _, r := range ranges {
		go func(lo, hi int) {
			defer wg.Done()
			f(lo, hi)
		}(r[0], r[1])
	}
	wg.Wait()
}
