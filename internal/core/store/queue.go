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

const queueColumns = `id, text, status, created_at, decided_by, decided_at, posted_tweet_id`

// InsertQueuedTweet stores a new queue entry.
func (s *Store) InsertQueuedTweet(ctx context.Context, tweet core.QueuedTweet) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	id := strings.TrimSpace(tweet.ID)
	if id == "" {
		return errors.New("queued tweet id is required")
	}
	status := tweet.Status
	if status == "" {
		status = core.QueueStatusPending
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO tweet_queue (id, text, status, created_at)
		VALUES (?, ?, ?, ?)
	`, id, tweet.Text, string(status), tweet.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert queued tweet: %w", err)
	}
	return nil
}

// GetQueuedTweet returns the entry with id, or nil when it does not exist.
func (s *Store) GetQueuedTweet(ctx context.Context, id string) (*core.QueuedTweet, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM tweet_queue WHERE id = ?`, strings.TrimSpace(id))
	tweet, err := scanQueuedTweet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch queued tweet: %w", err)
	}
	return tweet, nil
}

// ListQueuedTweets returns entries oldest first. An empty status lists all.
func (s *Store) ListQueuedTweets(ctx context.Context, status core.QueueStatus) ([]core.QueuedTweet, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + queueColumns + ` FROM tweet_queue`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queued tweets: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	tweets := []core.QueuedTweet{}
	for rows.Next() {
		tweet, err := scanQueuedTweet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued tweet: %w", err)
		}
		tweets = append(tweets, *tweet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queued tweets: %w", err)
	}
	return tweets, nil
}

// CountQueuedTweets counts entries with status, or all entries when empty.
func (s *Store) CountQueuedTweets(ctx context.Context, status core.QueueStatus) (int, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM tweet_queue`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count queued tweets: %w", err)
	}
	return count, nil
}

// DecideQueuedTweet moves a pending entry to its final status. It reports
// false when the entry is missing or no longer pending.
func (s *Store) DecideQueuedTweet(ctx context.Context, id string, status core.QueueStatus, decidedBy string, decidedAt time.Time, postedTweetID string) (bool, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return false, err
	}
	if status != core.QueueStatusApproved && status != core.QueueStatusRejected {
		return false, fmt.Errorf("invalid decision status: %s", status)
	}

	var posted sql.NullString
	if strings.TrimSpace(postedTweetID) != "" {
		posted = sql.NullString{String: postedTweetID, Valid: true}
	}

	result, err := s.DB.ExecContext(ctx, `
		UPDATE tweet_queue
		SET status = ?, decided_by = ?, decided_at = ?, posted_tweet_id = ?
		WHERE id = ? AND status = ?
	`, string(status), decidedBy, decidedAt.UTC().UnixMilli(), posted, strings.TrimSpace(id), string(core.QueueStatusPending))
	if err != nil {
		return false, fmt.Errorf("update queued tweet: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update queued tweet: %w", err)
	}
	return affected > 0, nil
}

// DeleteQueuedTweet removes an entry and reports whether it existed.
func (s *Store) DeleteQueuedTweet(ctx context.Context, id string) (bool, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return false, err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM tweet_queue WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return false, fmt.Errorf("delete queued tweet: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete queued tweet: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueuedTweet(row rowScanner) (*core.QueuedTweet, error) {
	var (
		id        string
		text      string
		status    string
		createdAt int64
		decidedBy sql.NullString
		decidedAt sql.NullInt64
		postedID  sql.NullString
	)
	if err := row.Scan(&id, &text, &status, &createdAt, &decidedBy, &decidedAt, &postedID); err != nil {
		return nil, err
	}

	tweet := &core.QueuedTweet{
		ID:            id,
		Text:          text,
		Status:        core.QueueStatus(status),
		CreatedAt:     time.UnixMilli(createdAt).UTC(),
		DecidedBy:     decidedBy.String,
		PostedTweetID: postedID.String,
	}
	if decidedAt.Valid {
		value := time.UnixMilli(decidedAt.Int64).UTC()
		tweet.DecidedAt = &value
	}
	return tweet, nil
}
