package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_Validation(t *testing.T) {
	mk := func() int { return 0 }

	_, err := NewPool(0, 0, mk)
	assert.Error(t, err)
	_, err = NewPool(3, 2, mk)
	assert.Error(t, err)
	_, err = NewPool(-1, 2, mk)
	assert.Error(t, err)
	_, err = NewPool[int](0, 2, nil)
	assert.Error(t, err)
}

func TestPool_PreAllocates(t *testing.T) {
	built := 0
	p, err := NewPool(3, 10, func() int { built++; return built })
	require.NoError(t, err)
	assert.Equal(t, 3, built)
	assert.Equal(t, 3, p.Allocated())
	assert.Equal(t, 0, p.Active())

	// pre-built workers are handed out before any new one is made
	var got []int
	for i := 0; i < 3; i++ {
		w, ok := p.TryAcquire()
		require.True(t, ok)
		got = append(got, w)
	}
	assert.ElementsMatch(t, []int{1, 2, 3}, got)
	assert.Equal(t, 3, built)

	w, ok := p.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, p.Allocated())
}

func TestPool_TryAcquireWhenFull(t *testing.T) {
	p, err := NewPool(0, 2, func() int { return 0 })
	require.NoError(t, err)

	a, ok := p.TryAcquire()
	require.True(t, ok)
	_, ok = p.TryAcquire()
	require.True(t, ok)

	_, ok = p.TryAcquire()
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Release(a)
	_, ok = p.TryAcquire()
	assert.True(t, ok)
	assert.Equal(t, 2, p.Peak())
}

func TestPool_NeverExceedsMax(t *testing.T) {
	const size = 5
	p, err := NewPool(2, size, func() *struct{} { return &struct{}{} })
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		inUse    atomic.Int64
		maxInUse atomic.Int64
		granted  atomic.Int64
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				w  *struct{}
				ok bool
			)
			if i%2 == 0 {
				w, ok = p.TryAcquire()
			} else {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				var err error
				w, err = p.Acquire(ctx)
				ok = err == nil
			}
			if !ok {
				return
			}
			granted.Add(1)
			n := inUse.Add(1)
			for {
				m := maxInUse.Load()
				if n <= m || maxInUse.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inUse.Add(-1)
			p.Release(w)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, maxInUse.Load(), int64(size))
	assert.LessOrEqual(t, p.Peak(), size)
	assert.LessOrEqual(t, p.Allocated(), size)
	assert.Equal(t, 0, p.Active())
	// every blocking acquire eventually gets a slot
	assert.GreaterOrEqual(t, granted.Load(), int64(100))
}
