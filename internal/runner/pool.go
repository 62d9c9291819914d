package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many workers run at once. Up to pre workers are built
// upfront; more are built on demand until max exist. Idle workers are reused.
type Pool[T any] struct {
	sem   *semaphore.Weighted
	max   int
	newFn func() T

	mu        sync.Mutex
	idle      []T
	allocated int

	active atomic.Int64
	peak   atomic.Int64
}

func NewPool[T any](pre, size int, newFn func() T) (*Pool[T], error) {
	if size < 1 {
		return nil, fmt.Errorf("pool: max workers must be at least 1, got %d", size)
	}
	if pre < 0 || pre > size {
		return nil, fmt.Errorf("pool: pre-allocated workers must be within [0, %d], got %d", size, pre)
	}
	if newFn == nil {
		return nil, fmt.Errorf("pool: no worker constructor")
	}

	p := &Pool[T]{
		sem:   semaphore.NewWeighted(int64(size)),
		max:   size,
		newFn: newFn,
		idle:  make([]T, 0, pre),
	}
	for i := 0; i < pre; i++ {
		p.idle = append(p.idle, newFn())
	}
	p.allocated = pre
	return p, nil
}

// TryAcquire takes a worker without waiting. It never lets more than max
// workers be active.
func (p *Pool[T]) TryAcquire() (T, bool) {
	if !p.sem.TryAcquire(1) {
		var zero T
		return zero, false
	}
	return p.take(), true
}

// Acquire waits for a worker until ctx is done.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, err
	}
	return p.take(), nil
}

func (p *Pool[T]) take() T {
	n := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if k := len(p.idle); k > 0 {
		w := p.idle[k-1]
		p.idle = p.idle[:k-1]
		return w
	}
	p.allocated++
	return p.newFn()
}

// Release hands w back. Every acquired worker must be released exactly once.
func (p *Pool[T]) Release(w T) {
	p.mu.Lock()
	p.idle = append(p.idle, w)
	p.mu.Unlock()
	p.active.Add(-1)
	p.sem.Release(1)
}

func (p *Pool[T]) Max() int { return p.max }

// Active is the number of workers currently acquired.
func (p *Pool[T]) Active() int { return int(p.active.Load()) }

// Peak is the highest Active ever observed.
func (p *Pool[T]) Peak() int { return int(p.peak.Load()) }

// Allocated is the number of workers built so far.
func (p *Pool[T]) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}
