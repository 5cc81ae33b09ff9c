package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ragly/xpanel/internal/core"
)

// GetRateLimit returns the stored budget for an endpoint key.
func (s *Store) GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitInfo, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	var (
		remaining int
		limit     int
		resetAt   int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT remaining, limit_total, reset_at
		FROM rate_limits
		WHERE endpoint = ?
	`, endpoint)

	if err := row.Scan(&remaining, &limit, &resetAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}

	return &core.RateLimitInfo{
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   time.Unix(resetAt, 0).UTC(),
	}, nil
}

// UpdateRateLimit persists the latest budget for an endpoint key.
func (s *Store) UpdateRateLimit(ctx context.Context, endpoint string, info core.RateLimitInfo, updatedAt time.Time) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (endpoint, remaining, limit_total, reset_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			remaining = excluded.remaining,
			limit_total = excluded.limit_total,
			reset_at = excluded.reset_at,
			updated_at = excluded.updated_at
	`, endpoint, info.Remaining, info.Limit, info.ResetAt.UTC().Unix(), updatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}

	return nil
}

// PruneRateLimits deletes entries whose window reset before now.
func (s *Store) PruneRateLimits(ctx context.Context, now time.Time) (int64, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM rate_limits WHERE reset_at <= ?`, now.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("prune rate limits: %w", err)
	}
	return result.RowsAffected()
}

// LiveRateLimits returns every entry whose window has not reset yet.
func (s *Store) LiveRateLimits(ctx context.Context, now time.Time) (map[string]core.RateLimitInfo, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT endpoint, remaining, limit_total, reset_at
		FROM rate_limits
		WHERE reset_at > ?
	`, now.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("load rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	out := make(map[string]core.RateLimitInfo)
	for rows.Next() {
		var (
			endpoint  string
			remaining int
			limit     int
			resetAt   int64
		)
		if err := rows.Scan(&endpoint, &remaining, &limit, &resetAt); err != nil {
			return nil, fmt.Errorf("scan rate limits: %w", err)
		}
		out[endpoint] = core.RateLimitInfo{Remaining: remaining, Limit: limit, ResetAt: time.Unix(resetAt, 0).UTC()}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load rate limits: %w", err)
	}
	return out, nil
}
