package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ragly/xpanel/internal/core"
)

const (
	pathUsersMe = "/2/users/me"
	pathTweets  = "/2/tweets"

	userFields = "name,username,profile_image_url"

	// DefaultMaxResults is the page size used when callers pass zero.
	DefaultMaxResults = 10
	minMaxResults     = 5
	maxMaxResults     = 100
)

// User is an X account.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// PublicMetrics are the engagement counters on a tweet.
type PublicMetrics struct {
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	LikeCount       int `json:"like_count"`
	QuoteCount      int `json:"quote_count"`
	BookmarkCount   int `json:"bookmark_count,omitempty"`
	ImpressionCount int `json:"impression_count,omitempty"`
}

// Tweet is a post as returned by the v2 API.
type Tweet struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	AuthorID      string         `json:"author_id,omitempty"`
	CreatedAt     *time.Time     `json:"created_at,omitempty"`
	PublicMetrics *PublicMetrics `json:"public_metrics,omitempty"`
}

// PageMeta carries pagination details.
type PageMeta struct {
	ResultCount int    `json:"result_count"`
	NewestID    string `json:"newest_id,omitempty"`
	OldestID    string `json:"oldest_id,omitempty"`
	NextToken   string `json:"next_token,omitempty"`
}

// TweetPage is one page of a user timeline or mentions listing.
type TweetPage struct {
	Data     []Tweet `json:"data"`
	Includes struct {
		Users []User `json:"users,omitempty"`
	} `json:"includes"`
	Meta PageMeta `json:"meta"`
}

// Author resolves a tweet's author from the page expansions.
func (p *TweetPage) Author(t Tweet) (User, bool) {
	for _, u := range p.Includes.Users {
		if u.ID == t.AuthorID {
			return u, true
		}
	}
	return User{}, false
}

// PostedTweet is the response to a successful post.
type PostedTweet struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PageOptions controls timeline and mentions listings.
type PageOptions struct {
	MaxResults      int
	PaginationToken string
	Refresh         bool
}

// ClampMaxResults maps a requested page size into the range X accepts.
func ClampMaxResults(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxResults
	case n < minMaxResults:
		return minMaxResults
	case n > maxMaxResults:
		return maxMaxResults
	default:
		return n
	}
}

// Me fetches the authenticated user.
func (c *Client) Me(ctx context.Context, opts ...FetchOption) (*User, error) {
	q := url.Values{}
	q.Set("user.fields", userFields)

	raw, err := c.Fetch(ctx, http.MethodGet, pathUsersMe+"?"+q.Encode(), nil, opts...)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data User `json:"data"`
	}
	if err := decode(raw, &envelope, http.MethodGet, pathUsersMe); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// UserTweets lists tweets authored by userID.
func (c *Client) UserTweets(ctx context.Context, userID string, opts PageOptions) (*TweetPage, error) {
	return c.listTweets(ctx, userID, "tweets", "created_at,public_metrics,text", opts)
}

// Mentions lists tweets mentioning userID.
func (c *Client) Mentions(ctx context.Context, userID string, opts PageOptions) (*TweetPage, error) {
	return c.listTweets(ctx, userID, "mentions", "created_at,public_metrics,text,author_id", opts)
}

// Timeline lists the authenticated user's own tweets.
func (c *Client) Timeline(ctx context.Context, opts PageOptions) (*TweetPage, error) {
	id, err := c.CachedUserID(ctx)
	if err != nil {
		return nil, err
	}
	return c.UserTweets(ctx, id, opts)
}

// MentionsTimeline lists mentions of the authenticated user.
func (c *Client) MentionsTimeline(ctx context.Context, opts PageOptions) (*TweetPage, error) {
	id, err := c.CachedUserID(ctx)
	if err != nil {
		return nil, err
	}
	return c.Mentions(ctx, id, opts)
}

// PostTweet publishes text, optionally as a reply. The text is validated
// before any network call.
func (c *Client) PostTweet(ctx context.Context, text, replyTo string) (*PostedTweet, error) {
	text, err := core.ValidateTweetText(text)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"text": text}
	if replyTo = strings.TrimSpace(replyTo); replyTo != "" {
		body["reply"] = map[string]string{"in_reply_to_tweet_id": replyTo}
	}

	raw, err := c.Fetch(ctx, http.MethodPost, pathTweets, body)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data PostedTweet `json:"data"`
	}
	if err := decode(raw, &envelope, http.MethodPost, pathTweets); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

func (c *Client) listTweets(ctx context.Context, userID, kind, tweetFields string, opts PageOptions) (*TweetPage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	q := url.Values{}
	q.Set("max_results", strconv.Itoa(ClampMaxResults(opts.MaxResults)))
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", "author_id")
	q.Set("user.fields", userFields)
	if token := strings.TrimSpace(opts.PaginationToken); token != "" {
		q.Set("pagination_token", token)
	}

	var fetchOpts []FetchOption
	if opts.Refresh {
		fetchOpts = append(fetchOpts, WithSkipCache())
	}

	path := "/2/users/" + url.PathEscape(userID) + "/" + kind
	raw, err := c.Fetch(ctx, http.MethodGet, path+"?"+q.Encode(), nil, fetchOpts...)
	if err != nil {
		return nil, err
	}

	var page TweetPage
	if err := decode(raw, &page, http.MethodGet, EndpointKey(path)); err != nil {
		return nil, err
	}
	return &page, nil
}

func decode(raw json.RawMessage, v any, method, endpoint string) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &UpstreamError{Method: method, Endpoint: endpoint, StatusCode: http.StatusOK, Message: "decode response: " + err.Error()}
	}
	return nil
}
