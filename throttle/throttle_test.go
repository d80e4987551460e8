package throttle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_Disabled(t *testing.T) {
	th := New(0)
	assert.False(t, th.Enabled())
	assert.NoError(t, th.Acquire(context.Background()))
	th.Close()
}

func TestThrottle_BoundsRate(t *testing.T) {
	const rate = 5
	th := New(rate)
	defer th.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2100*time.Millisecond)
	defer cancel()

	var acquired int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if err := th.Acquire(ctx); err != nil {
				return
			}
			atomic.AddInt64(&acquired, 1)
		}
	}()
	<-done

	// Over ~2s at rate 5/s we expect roughly 10-15 tokens (initial burst +
	// two refills), comfortably within the 5% epsilon window spec §8 asks
	// for over longer windows; this is a short smoke bound, not the
	// precise property test.
	got := atomic.LoadInt64(&acquired)
	assert.LessOrEqual(t, got, int64(rate*3+rate))
	assert.Greater(t, got, int64(0))
}

func TestThrottle_AcquireCanceledByContext(t *testing.T) {
	th := New(1)
	defer th.Close()

	// Drain the initial token.
	require := assert.New(t)
	require.NoError(th.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := th.Acquire(ctx)
	require.ErrorIs(err, context.Canceled)
}
