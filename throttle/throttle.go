// Package throttle implements the global token-bucket throttle of spec
// §4.4: "limiting aggregate requests/sec", refilled by a dedicated ticker.
//
// Grounded on services/order-flow-simulator/internal/domain/
// adaptive_throttle.go's ticker-driven rate controller and rate_limiter.go's
// counter-reset pattern. The teacher's throttle is *adaptive* (it tunes its
// own rate from an error-rate feedback loop); spec §4.4 calls only for a
// fixed-rate bucket, so the feedback loop is dropped and the ticker-refill
// mechanism is kept (see SPEC_FULL.md).
package throttle

import (
	"context"
	"time"
)

// Throttle is a token bucket of configured rate R and capacity R,
// refilled once per second by a dedicated ticker goroutine. A zero-rate
// Throttle is disabled: Acquire becomes a no-op (spec §4.4).
type Throttle struct {
	rate    int
	tokens  chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// New creates a Throttle at the given requests/sec rate. rate <= 0 disables
// throttling entirely.
func New(rate int) *Throttle {
	t := &Throttle{rate: rate}
	if rate <= 0 {
		return t
	}
	t.tokens = make(chan struct{}, rate)
	t.stop = make(chan struct{})
	t.stopped = make(chan struct{})
	for i := 0; i < rate; i++ {
		t.tokens <- struct{}{}
	}
	go t.refill()
	return t
}

// Enabled reports whether this Throttle limits throughput at all.
func (t *Throttle) Enabled() bool { return t.rate > 0 }

func (t *Throttle) refill() {
	defer close(t.stopped)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			for i := 0; i < t.rate; i++ {
				select {
				case t.tokens <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Acquire awaits one token, or returns ctx.Err() if ctx is canceled first
// (spec §4.2: "acquisition may be canceled by shutdown"). A disabled
// Throttle returns nil immediately.
func (t *Throttle) Acquire(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	select {
	case <-t.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the refill ticker. Safe to call on a disabled Throttle.
func (t *Throttle) Close() {
	if !t.Enabled() {
		return
	}
	close(t.stop)
	<-t.stopped
}
