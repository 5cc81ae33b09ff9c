package xapi

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep advances the clock instead of blocking.
func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func TestThrottleSpacesSequentialCalls(t *testing.T) {
	clock := newFakeClock()
	throttle := NewThrottle(DefaultMinRequestGap)
	throttle.Clock = clock.Now
	throttle.Sleep = clock.Sleep

	var dispatched []time.Time
	for i := 0; i < 4; i++ {
		require.NoError(t, throttle.Wait(context.Background()))
		dispatched = append(dispatched, clock.Now())
	}

	for i := 1; i < len(dispatched); i++ {
		require.GreaterOrEqual(t, dispatched[i].Sub(dispatched[i-1]), DefaultMinRequestGap)
	}
}

func TestThrottleFirstCallIsImmediate(t *testing.T) {
	clock := newFakeClock()
	throttle := NewThrottle(DefaultMinRequestGap)
	throttle.Clock = clock.Now
	throttle.Sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatalf("unexpected sleep %s", d)
		return nil
	}

	require.NoError(t, throttle.Wait(context.Background()))

	clock.Advance(5 * time.Second)
	require.NoError(t, throttle.Wait(context.Background()))
}

func TestThrottleQueuesConcurrentCallers(t *testing.T) {
	clock := newFakeClock()
	throttle := NewThrottle(DefaultMinRequestGap)
	throttle.Clock = clock.Now

	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	throttle.Sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, throttle.Wait(context.Background()))
		}()
	}
	wg.Wait()

	// One caller goes immediately; the rest each wait a further gap.
	require.Len(t, delays, callers-1)
	sort.Slice(delays, func(i, j int) bool { return delays[i] < delays[j] })
	for i, d := range delays {
		require.GreaterOrEqual(t, d, time.Duration(i+1)*DefaultMinRequestGap)
	}
}

func TestThrottleCancelReturnsSlot(t *testing.T) {
	clock := newFakeClock()
	throttle := NewThrottle(DefaultMinRequestGap)
	throttle.Clock = clock.Now

	var last time.Duration
	cancelNext := true
	throttle.Sleep = func(ctx context.Context, d time.Duration) error {
		last = d
		if cancelNext {
			cancelNext = false
			return context.Canceled
		}
		return nil
	}

	require.NoError(t, throttle.Wait(context.Background()))
	require.ErrorIs(t, throttle.Wait(context.Background()), context.Canceled)

	require.NoError(t, throttle.Wait(context.Background()))
	require.Equal(t, DefaultMinRequestGap, last)
}

func TestThrottleDisabled(t *testing.T) {
	throttle := NewThrottle(0)
	throttle.Sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatalf("unexpected sleep %s", d)
		return nil
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, throttle.Wait(context.Background()))
	}

	var nilThrottle *Throttle
	require.NoError(t, nilThrottle.Wait(context.Background()))
}
