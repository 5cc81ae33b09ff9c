package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragly/xpanel/internal/core"
	"github.com/ragly/xpanel/internal/xapi"
)

// QueueStore persists queued tweets.
type QueueStore interface {
	InsertQueuedTweet(ctx context.Context, tweet core.QueuedTweet) error
	GetQueuedTweet(ctx context.Context, id string) (*core.QueuedTweet, error)
	ListQueuedTweets(ctx context.Context, status core.QueueStatus) ([]core.QueuedTweet, error)
	CountQueuedTweets(ctx context.Context, status core.QueueStatus) (int, error)
	DecideQueuedTweet(ctx context.Context, id string, status core.QueueStatus, decidedBy string, decidedAt time.Time, postedTweetID string) (bool, error)
	DeleteQueuedTweet(ctx context.Context, id string) (bool, error)
}

// Poster publishes an approved tweet.
type Poster interface {
	PostTweet(ctx context.Context, text, replyTo string) (*xapi.PostedTweet, error)
}

// Decision is the result of approving or rejecting a queued tweet.
type Decision struct {
	Tweet  core.QueuedTweet `json:"data"`
	Posted bool             `json:"posted"`
}

// ApprovalQueue holds tweets until an operator approves or rejects them.
// Approval posts the tweet before the entry is marked approved, so a failed
// post leaves it pending.
type ApprovalQueue struct {
	Store    QueueStore
	Poster   Poster
	Approver string
	Clock    func() time.Time
	NewID    func() string

	// decisions are serialized so one tweet is never posted twice.
	mu sync.Mutex
}

// Enqueue validates text and stores it as pending.
func (q *ApprovalQueue) Enqueue(ctx context.Context, text string) (*core.QueuedTweet, error) {
	if err := q.ready(); err != nil {
		return nil, err
	}

	trimmed, err := core.ValidateTweetText(text)
	if err != nil {
		return nil, err
	}

	tweet := core.QueuedTweet{
		ID:        q.newID(),
		Text:      trimmed,
		Status:    core.QueueStatusPending,
		CreatedAt: q.now(),
	}
	if err := q.Store.InsertQueuedTweet(ctx, tweet); err != nil {
		return nil, err
	}
	return &tweet, nil
}

// List returns queued tweets, optionally filtered by status.
func (q *ApprovalQueue) List(ctx context.Context, status core.QueueStatus) ([]core.QueuedTweet, error) {
	if err := q.ready(); err != nil {
		return nil, err
	}
	return q.Store.ListQueuedTweets(ctx, status)
}

// Pending counts tweets awaiting a decision.
func (q *ApprovalQueue) Pending(ctx context.Context) (int, error) {
	if err := q.ready(); err != nil {
		return 0, err
	}
	return q.Store.CountQueuedTweets(ctx, core.QueueStatusPending)
}

// Decide applies an approve or reject action.
func (q *ApprovalQueue) Decide(ctx context.Context, id string, action core.QueueAction) (*Decision, error) {
	switch action {
	case core.QueueActionApprove:
		return q.Approve(ctx, id)
	case core.QueueActionReject:
		return q.Reject(ctx, id)
	default:
		return nil, fmt.Errorf("%w: unsupported action %q", core.ErrInvalidTweet, action)
	}
}

// Approve posts a pending tweet and records the posted id.
func (q *ApprovalQueue) Approve(ctx context.Context, id string) (*Decision, error) {
	if err := q.ready(); err != nil {
		return nil, err
	}
	if q.Poster == nil {
		return nil, errors.New("approval queue has no poster")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	tweet, err := q.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	posted, err := q.Poster.PostTweet(ctx, tweet.Text, "")
	if err != nil {
		return nil, err
	}

	decision, err := q.decide(ctx, tweet, core.QueueStatusApproved, posted.ID)
	if err != nil {
		return nil, &core.UnrecordedPostError{QueueID: tweet.ID, PostedTweetID: posted.ID, Err: err}
	}
	return decision, nil
}

// Reject marks a pending tweet rejected without posting it.
func (q *ApprovalQueue) Reject(ctx context.Context, id string) (*Decision, error) {
	if err := q.ready(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	tweet, err := q.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	return q.decide(ctx, tweet, core.QueueStatusRejected, "")
}

// Delete removes a queued tweet whatever its status.
func (q *ApprovalQueue) Delete(ctx context.Context, id string) error {
	if err := q.ready(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	deleted, err := q.Store.DeleteQueuedTweet(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", core.ErrQueuedTweetNotFound, id)
	}
	return nil
}

// pending must be called with mu held.
func (q *ApprovalQueue) pending(ctx context.Context, id string) (*core.QueuedTweet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: queue id is required", core.ErrInvalidTweet)
	}

	tweet, err := q.Store.GetQueuedTweet(ctx, id)
	if err != nil {
		return nil, err
	}
	if tweet == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrQueuedTweetNotFound, id)
	}
	if tweet.Status != core.QueueStatusPending {
		return nil, &core.QueueStateError{ID: tweet.ID, Status: tweet.Status}
	}
	return tweet, nil
}

func (q *ApprovalQueue) decide(ctx context.Context, tweet *core.QueuedTweet, status core.QueueStatus, postedID string) (*Decision, error) {
	at := q.now()
	approver := q.approver()

	ok, err := q.Store.DecideQueuedTweet(ctx, tweet.ID, status, approver, at, postedID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another process decided or deleted it in the meantime.
		current, err := q.Store.GetQueuedTweet(ctx, tweet.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, fmt.Errorf("%w: %s", core.ErrQueuedTweetNotFound, tweet.ID)
		}
		return nil, &core.QueueStateError{ID: current.ID, Status: current.Status}
	}

	decided := *tweet
	decided.Status = status
	decided.DecidedBy = approver
	decided.DecidedAt = &at
	decided.PostedTweetID = postedID

	return &Decision{Tweet: decided, Posted: status == core.QueueStatusApproved}, nil
}

func (q *ApprovalQueue) ready() error {
	if q == nil || q.Store == nil {
		return errors.New("approval queue is not initialized")
	}
	return nil
}

func (q *ApprovalQueue) approver() string {
	if name := strings.TrimSpace(q.Approver); name != "" {
		return name
	}
	return "operator"
}

func (q *ApprovalQueue) newID() string {
	if q.NewID != nil {
		return q.NewID()
	}
	return "qt_" + uuid.NewString()
}

func (q *ApprovalQueue) now() time.Time {
	if q.Clock != nil {
		return q.Clock().UTC()
	}
	return time.Now().UTC()
}
