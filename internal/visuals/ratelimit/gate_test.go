package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_CapacityFloor(t *testing.T) {
	assert.Equal(t, 1, NewGate(0).Capacity())
	assert.Equal(t, 1, NewGate(-3).Capacity())
	assert.Equal(t, 4, NewGate(4).Capacity())
}

func TestGate_BoundsConcurrency(t *testing.T) {
	for _, capacity := range []int{1, 3} {
		gate := NewGate(capacity)

		var active, peak atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !assert.NoError(t, gate.Acquire(context.Background())) {
					return
				}
				defer gate.Release()

				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, peak.Load(), int64(capacity))
		assert.Equal(t, 0, gate.InUse())
	}
}

func TestGate_AcquireCancelled(t *testing.T) {
	gate := NewGate(1)
	require.NoError(t, gate.Acquire(context.Background()))
	defer gate.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, gate.Acquire(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, gate.InUse())
}
