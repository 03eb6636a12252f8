// Package parallel splits row-oriented image work across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Pool bounds the number of goroutines that run band work at once.
// A Pool is safe for concurrent use; several renders may share one.
type Pool struct {
	workers int
	sem     chan struct{}
}

// NewPool creates a pool with the given worker count.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers, sem: make(chan struct{}, workers)}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// For splits [0, total) into contiguous bands and calls fn for each band,
// waiting until every band completes. Small totals run inline.
func (p *Pool) For(total int, fn func(start, end int)) {
	if total <= 0 {
		return
	}
	workers := p.workers
	if workers > total {
		workers = total
	}
	if workers <= 1 {
		fn(0, total)
		return
	}
	step := (total + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < total; start += step {
		end := min(start+step, total)
		p.sem <- struct{}{}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			defer func() { <-p.sem }()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ExecuteAll runs every function on the pool and waits for all of them.
func (p *Pool) ExecuteAll(work []func()) {
	p.For(len(work), func(start, end int) {
		for _, fn := range work[start:end] {
			fn()
		}
	})
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns a process-wide pool sized to GOMAXPROCS.
func Default() *Pool {
	defaultOnce.Do(func() {
		defaultPool = NewPool(0)
	})
	return defaultPool
}
