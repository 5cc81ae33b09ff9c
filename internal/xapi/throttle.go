package xapi

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinRequestGap spaces consecutive outbound requests.
const DefaultMinRequestGap = 1100 * time.Millisecond

// Throttle enforces a minimum gap between request dispatches across all
// callers of a client. Concurrent callers queue behind each other.
type Throttle struct {
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	limiter *rate.Limiter
	gap     time.Duration
}

// NewThrottle spaces requests at least gap apart. A non-positive gap
// disables throttling.
func NewThrottle(gap time.Duration) *Throttle {
	limit := rate.Inf
	if gap > 0 {
		limit = rate.Every(gap)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1), gap: gap}
}

// Gap returns the configured minimum spacing.
func (t *Throttle) Gap() time.Duration {
	if t == nil {
		return 0
	}
	return t.gap
}

// Wait blocks until the caller may dispatch. On cancellation the reserved
// slot is handed back so later callers are not delayed by it.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	at := now(t.Clock)
	r := t.limiter.ReserveN(at, 1)
	if !r.OK() {
		return errors.New("throttle reservation refused")
	}
	delay := ceilMillisecond(r.DelayFrom(at))
	if delay <= 0 {
		return nil
	}
	if err := t.sleep(ctx, delay); err != nil {
		r.CancelAt(now(t.Clock))
		return err
	}
	return nil
}

func (t *Throttle) sleep(ctx context.Context, d time.Duration) error {
	if t.Sleep != nil {
		return t.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

// ceilMillisecond rounds up so float rounding in the limiter never shortens
// the gap.
func ceilMillisecond(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return (d + time.Millisecond - 1).Truncate(time.Millisecond)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
