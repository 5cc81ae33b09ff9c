package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTweetLength is the character limit applied to tweet text.
const MaxTweetLength = 280

// QueueStatus identifies where a queued tweet is in the approval flow.
type QueueStatus string

const (
	QueueStatusPending  QueueStatus = "pending"
	QueueStatusApproved QueueStatus = "approved"
	QueueStatusRejected QueueStatus = "rejected"
)

// QueueAction is an operator decision on a queued tweet.
type QueueAction string

const (
	QueueActionApprove QueueAction = "approve"
	QueueActionReject  QueueAction = "reject"
)

// ParseQueueAction validates an action string.
func ParseQueueAction(value string) (QueueAction, error) {
	switch QueueAction(strings.ToLower(strings.TrimSpace(value))) {
	case QueueActionApprove:
		return QueueActionApprove, nil
	case QueueActionReject:
		return QueueActionReject, nil
	default:
		return "", fmt.Errorf("%w: unsupported action %q", ErrInvalidTweet, value)
	}
}

// QueuedTweet is a tweet waiting for (or past) operator approval.
type QueuedTweet struct {
	ID            string      `json:"id"`
	Text          string      `json:"text"`
	Status        QueueStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	DecidedBy     string      `json:"decided_by,omitempty"`
	DecidedAt     *time.Time  `json:"decided_at,omitempty"`
	PostedTweetID string      `json:"posted_tweet_id,omitempty"`
}

var (
	// ErrInvalidTweet reports tweet text or queue input that fails validation.
	ErrInvalidTweet = errors.New("invalid tweet")
	// ErrQueuedTweetNotFound reports an unknown queue id.
	ErrQueuedTweetNotFound = errors.New("queued tweet not found")
)

// QueueStateError is returned when a decision targets an already decided tweet.
type QueueStateError struct {
	ID     string
	Status QueueStatus
}

func (e *QueueStateError) Error() string {
	return fmt.Sprintf("tweet %s already %s", e.ID, e.Status)
}

// UnrecordedPostError reports a tweet that reached X but whose approval could
// not be recorded. The queue entry may still read pending; PostedTweetID is
// what an operator needs to reconcile it instead of approving again.
type UnrecordedPostError struct {
	QueueID       string
	PostedTweetID string
	Err           error
}

func (e *UnrecordedPostError) Error() string {
	return fmt.Sprintf("tweet %s posted as %s but approval not recorded: %v", e.QueueID, e.PostedTweetID, e.Err)
}

func (e *UnrecordedPostError) Unwrap() error { return e.Err }

// ValidateTweetText trims text and enforces the non-empty and length rules.
// Length is counted in characters, not bytes.
func ValidateTweetText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("%w: tweet text is required", ErrInvalidTweet)
	}
	if utf8.RuneCountInString(trimmed) > MaxTweetLength {
		return "", fmt.Errorf("%w: tweet exceeds %d characters", ErrInvalidTweet, MaxTweetLength)
	}
	return trimmed, nil
}
