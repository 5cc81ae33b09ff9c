package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ragly/xpanel/internal/core"
)

// RateLimitStore persists endpoint budgets between processes.
type RateLimitStore interface {
	LiveRateLimits(ctx context.Context, now time.Time) (map[string]core.RateLimitInfo, error)
	UpdateRateLimit(ctx context.Context, endpoint string, info core.RateLimitInfo, updatedAt time.Time) error
}

// RateLimitPruner is implemented by stores that can drop expired rows.
type RateLimitPruner interface {
	PruneRateLimits(ctx context.Context, now time.Time) (int64, error)
}

// RateLimitState is the in-memory view being mirrored.
type RateLimitState interface {
	Restore(key string, info core.RateLimitInfo) bool
	Get(key string) (core.RateLimitInfo, bool)
}

// RateLimitSync mirrors tracker entries into the store so a restarted
// server, or a short-lived CLI run, starts with the last known budgets.
type RateLimitSync struct {
	Store   RateLimitStore
	Tracker RateLimitState
	Clock   func() time.Time
}

// Restore loads live persisted entries into the tracker and returns how
// many were applied.
func (r *RateLimitSync) Restore(ctx context.Context) (int, error) {
	if r == nil || r.Store == nil || r.Tracker == nil {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := r.now()
	if pruner, ok := r.Store.(RateLimitPruner); ok {
		if _, err := pruner.PruneRateLimits(ctx, now); err != nil {
			return 0, fmt.Errorf("prune rate limits: %w", err)
		}
	}

	entries, err := r.Store.LiveRateLimits(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("restore rate limits: %w", err)
	}

	restored := 0
	for endpoint, info := range entries {
		if r.Tracker.Restore(endpoint, info) {
			restored++
		}
	}
	return restored, nil
}

// Persist writes the tracker's current entry for endpoint, if it has one.
func (r *RateLimitSync) Persist(ctx context.Context, endpoint string) error {
	if r == nil || r.Store == nil || r.Tracker == nil {
		return nil
	}
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	info, ok := r.Tracker.Get(endpoint)
	if !ok {
		return nil
	}
	return r.Store.UpdateRateLimit(ctx, endpoint, info, r.now())
}

func (r *RateLimitSync) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
