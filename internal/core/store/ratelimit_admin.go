package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ragly/xpanel/internal/core"
)

// RateLimitEntry is one persisted endpoint budget.
type RateLimitEntry struct {
	Endpoint  string             `json:"endpoint"`
	Info      core.RateLimitInfo `json:"info"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// RateLimitQuery selects persisted entries. Exactly one of All, Endpoint,
// Prefix or ExpiredAt must be set.
type RateLimitQuery struct {
	All      bool
	Endpoint string
	Prefix   string
	// ExpiredAt selects windows that reset at or before this instant.
	ExpiredAt time.Time
}

func (q RateLimitQuery) Validate() error {
	set := 0
	if q.All {
		set++
	}
	if strings.TrimSpace(q.Endpoint) != "" {
		set++
	}
	if strings.TrimSpace(q.Prefix) != "" {
		set++
	}
	if !q.ExpiredAt.IsZero() {
		set++
	}
	switch set {
	case 0:
		return errors.New("must specify --all, --endpoint, --prefix or --expired")
	case 1:
		return nil
	default:
		return errors.New("--all, --endpoint, --prefix and --expired are mutually exclusive")
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (q RateLimitQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	switch {
	case q.All:
		return "", nil, nil
	case strings.TrimSpace(q.Endpoint) != "":
		return "WHERE endpoint = ?", []any{strings.TrimSpace(q.Endpoint)}, nil
	case !q.ExpiredAt.IsZero():
		return "WHERE reset_at <= ?", []any{q.ExpiredAt.UTC().Unix()}, nil
	default:
		return `WHERE endpoint LIKE ? ESCAPE '\'`, []any{likeEscaper.Replace(strings.TrimSpace(q.Prefix)) + "%"}, nil
	}
}

// ListRateLimits returns matching entries ordered by endpoint key.
func (s *Store) ListRateLimits(ctx context.Context, q RateLimitQuery) ([]RateLimitEntry, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT endpoint, remaining, limit_total, reset_at, updated_at FROM rate_limits `+where+` ORDER BY endpoint`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []RateLimitEntry{}
	for rows.Next() {
		var (
			entry              RateLimitEntry
			resetAt, updatedAt int64
		)
		if err := rows.Scan(&entry.Endpoint, &entry.Info.Remaining, &entry.Info.Limit, &resetAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan rate limits: %w", err)
		}
		entry.Info.ResetAt = time.Unix(resetAt, 0).UTC()
		entry.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	return entries, nil
}

// CountRateLimits returns how many entries match q.
func (s *Store) CountRateLimits(ctx context.Context, q RateLimitQuery) (int, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_limits `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate limits: %w", err)
	}
	return count, nil
}

// ResetRateLimits deletes matching entries.
func (s *Store) ResetRateLimits(ctx context.Context, q RateLimitQuery) (int64, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM rate_limits `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return result.RowsAffected()
}
