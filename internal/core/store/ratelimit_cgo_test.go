//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ragly/xpanel/internal/core"
)

func TestRateLimitPersistence(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	missing, err := store.GetRateLimit(ctx, "/2/users/me")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, store.UpdateRateLimit(ctx, "/2/users/me", core.RateLimitInfo{Remaining: 3, Limit: 75, ResetAt: now.Add(10 * time.Minute)}, now))
	require.NoError(t, store.UpdateRateLimit(ctx, "/2/users/me", core.RateLimitInfo{Remaining: 0, Limit: 75, ResetAt: now.Add(15 * time.Minute)}, now))
	require.NoError(t, store.UpdateRateLimit(ctx, "/2/users/:id/tweets", core.RateLimitInfo{Remaining: 10, Limit: 900, ResetAt: now.Add(-time.Minute)}, now))

	info, err := store.GetRateLimit(ctx, "/2/users/me")
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, 0, info.Remaining)
	require.Equal(t, now.Add(15*time.Minute), info.ResetAt)

	entries, err := store.ListRateLimits(ctx, RateLimitQuery{Prefix: "/2/users/"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "/2/users/:id/tweets", entries[0].Endpoint)

	live, err := store.LiveRateLimits(ctx, now)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, 75, live["/2/users/me"].Limit)

	pruned, err := store.PruneRateLimits(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)

	count, err := store.CountRateLimits(ctx, RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	deleted, err := store.ResetRateLimits(ctx, RateLimitQuery{Endpoint: "/2/users/me"})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}
