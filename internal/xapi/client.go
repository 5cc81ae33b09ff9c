package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ragly/xpanel/internal/core"
)

const (
	// DefaultBaseURL is the X API host.
	DefaultBaseURL = "https://api.twitter.com"
	// DefaultRequestTimeout bounds a single HTTP exchange.
	DefaultRequestTimeout = 15 * time.Second
	// DefaultRateLimitWait applies when a 429 carries no reset header.
	DefaultRateLimitWait = 15 * time.Minute

	maxResponseBytes = 8 << 20
)

// Outcome results reported to observers.
const (
	ResultOK                = "ok"
	ResultCacheHit          = "cache_hit"
	ResultRateLimitedLocal  = "rate_limited_local"
	ResultRateLimitedRemote = "rate_limited_remote"
	ResultPermissionDenied  = "permission_denied"
	ResultUpstreamError     = "upstream_error"
	ResultTransportError    = "transport_error"
	ResultCanceled          = "canceled"
	ResultInvalidRequest    = "invalid_request"
)

// Outcome describes one finished Fetch call. It never includes credentials,
// signatures or request bodies.
type Outcome struct {
	Method    string
	Endpoint  string
	Status    int
	Result    string
	Attempts  int
	Duration  time.Duration
	Remaining int
	Err       error
}

// Options configure a Client. Zero durations select the package defaults;
// a negative CacheTTL, UserIDTTL or MinRequestGap disables that layer.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	CacheTTL       time.Duration
	UserIDTTL      time.Duration
	MinRequestGap  time.Duration
	RequestTimeout time.Duration
	Retry          RetryPolicy
	Clock          func() time.Time
	Sleep          func(ctx context.Context, d time.Duration) error
	Observe        func(Outcome)
	// Tracer, when set, receives one entry per finished call. The client
	// owns it from then on and closes it in Close.
	Tracer *Tracer
}

// Client is a rate-limit aware, signing X API client. It is safe for
// concurrent use; every caller shares the cache, tracker and throttle.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	Signer         *Signer
	Tracker        *Tracker
	Cache          *ResponseCache
	UserID         *UserIDCache
	Throttle       *Throttle
	Retry          RetryPolicy
	RequestTimeout time.Duration
	Clock          func() time.Time
	Sleep          func(ctx context.Context, d time.Duration) error
	Observe        func(Outcome)
	Tracer         *Tracer

	group singleflight.Group
	mu    sync.Mutex
}

// NewClient validates creds and wires a client. Missing credentials yield a
// *ConfigError naming each absent field.
func NewClient(creds Credentials, opts Options) (*Client, error) {
	creds = creds.Trimmed()
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	timeout := orDefault(opts.RequestTimeout, DefaultRequestTimeout)
	retry := opts.Retry
	if retry.MaxAttempts == 0 && retry.MaxWait == 0 {
		retry = DefaultRetryPolicy()
	}

	signer := NewSigner(creds)
	signer.Clock = opts.Clock

	throttle := NewThrottle(orDefault(opts.MinRequestGap, DefaultMinRequestGap))
	throttle.Clock = opts.Clock
	throttle.Sleep = opts.Sleep

	return &Client{
		BaseURL:        baseURL,
		HTTPClient:     opts.HTTPClient,
		Signer:         signer,
		Tracker:        NewTracker(opts.Clock),
		Cache:          NewResponseCache(orDefault(opts.CacheTTL, DefaultCacheTTL), opts.Clock),
		UserID:         NewUserIDCache(orDefault(opts.UserIDTTL, DefaultUserIDTTL), opts.Clock),
		Throttle:       throttle,
		Retry:          retry,
		RequestTimeout: timeout,
		Clock:          opts.Clock,
		Sleep:          opts.Sleep,
		Observe:        opts.Observe,
		Tracer:         opts.Tracer,
	}, nil
}

// FetchOption adjusts a single Fetch call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	skipCache bool
}

// WithSkipCache bypasses the response cache entirely: nothing is read from
// it and the fresh response is not stored.
func WithSkipCache() FetchOption {
	return func(o *fetchOptions) { o.skipCache = true }
}

// Fetch performs one logical X API call.
//
// rawURL may be absolute or a path relative to BaseURL. body is either
// url.Values (form encoded and signed) or any JSON-marshalable value (sent as
// JSON, not signed). Successful GET responses are cached; a locally exhausted
// endpoint fails fast without touching the network.
func (c *Client) Fetch(ctx context.Context, method, rawURL string, body any, opts ...FetchOption) (json.RawMessage, error) {
	if c == nil {
		return nil, errors.New("x api client not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var fo fetchOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&fo)
		}
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	start := c.now()
	outcome := Outcome{Method: method, Remaining: -1}

	target, err := c.resolve(rawURL)
	if err != nil {
		outcome.Endpoint = rawURL
		outcome.Result = ResultInvalidRequest
		outcome.Err = err
		c.finish(outcome, start)
		return nil, err
	}
	key := EndpointKey(target.Path)
	cacheKey := target.String()
	outcome.Endpoint = key
	cacheable := method == http.MethodGet

	if cacheable && !fo.skipCache {
		if data, ok := c.Cache.Get(cacheKey); ok {
			outcome.Result = ResultCacheHit
			c.finish(outcome, start)
			return data, nil
		}
	}

	var data json.RawMessage
	for attempt := 1; ; attempt++ {
		outcome.Attempts = attempt

		if blocked, wait := c.Tracker.Check(key); blocked {
			err = &RateLimitError{Endpoint: key, ResetAt: c.now().Add(wait), Wait: wait}
			break
		}

		outcome.Status, data, err = c.signAndSend(ctx, method, target, key, body)
		if err == nil {
			break
		}

		delay, retry := c.Retry.Next(attempt, err)
		if !retry {
			break
		}
		if serr := c.sleep(ctx, delay); serr != nil {
			err = &TransportError{Method: method, Endpoint: key, Err: serr}
			break
		}
	}

	if info, ok := c.Tracker.Get(key); ok {
		outcome.Remaining = info.Remaining
	}
	outcome.Result = classify(err)
	outcome.Err = err
	c.finish(outcome, start)

	if err != nil {
		return nil, err
	}
	if cacheable && !fo.skipCache {
		c.Cache.Set(cacheKey, data)
	}
	return data, nil
}

// signAndSend runs one throttled, signed HTTP exchange and folds the
// response headers into the tracker.
func (c *Client) signAndSend(ctx context.Context, method string, target *url.URL, key string, body any) (int, json.RawMessage, error) {
	payload, contentType, form, err := encodeBody(body)
	if err != nil {
		return 0, nil, err
	}

	if err := c.Throttle.Wait(ctx); err != nil {
		return 0, nil, &TransportError{Method: method, Endpoint: key, Err: err}
	}

	reqCtx, cancel := withTimeout(ctx, c.RequestTimeout)
	if cancel != nil {
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, target.String(), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.Signer.Sign(req, form); err != nil {
		return 0, nil, fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, nil, &TransportError{Method: method, Endpoint: key, Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	c.Tracker.Record(key, resp.Header)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Method: method, Endpoint: key, Err: fmt.Errorf("read response: %w", err)}
	}

	status := resp.StatusCode
	switch {
	case status == http.StatusTooManyRequests:
		at := c.now()
		resetAt, ok := parseReset(resp.Header)
		if !ok {
			resetAt = at.Add(DefaultRateLimitWait)
		}
		c.Tracker.Block(key, resetAt)
		wait := resetAt.Sub(at)
		if wait < 0 {
			wait = 0
		}
		return status, nil, &RateLimitError{Endpoint: key, ResetAt: resetAt, Wait: wait, Remote: true}
	case status == http.StatusForbidden && isPermissionProblem(string(respBody)):
		return status, nil, &PermissionError{StatusCode: status, Body: truncateBody(respBody)}
	case status < http.StatusOK || status >= http.StatusMultipleChoices:
		return status, nil, &UpstreamError{Method: method, Endpoint: key, StatusCode: status, Body: truncateBody(respBody)}
	}

	trimmed := bytes.TrimSpace(respBody)
	if len(trimmed) == 0 {
		return status, json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		return status, nil, &UpstreamError{Method: method, Endpoint: key, StatusCode: status, Body: truncateBody(respBody), Message: "response is not valid JSON"}
	}
	return status, json.RawMessage(trimmed), nil
}

// CachedUserID returns the authenticated user's id, looking it up at most
// once per TTL. Concurrent callers share a single lookup, which runs detached
// from any one caller's cancellation and is bounded by RequestTimeout.
func (c *Client) CachedUserID(ctx context.Context) (string, error) {
	if id, ok := c.UserID.Get(); ok {
		return id, nil
	}

	lookupCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("me", func() (any, error) {
		if id, ok := c.UserID.Get(); ok {
			return id, nil
		}
		me, err := c.Me(lookupCtx, WithSkipCache())
		if err != nil {
			return "", err
		}
		if me.ID == "" {
			return "", &UpstreamError{Method: http.MethodGet, Endpoint: pathUsersMe, StatusCode: http.StatusOK, Message: "response has no user id"}
		}
		c.UserID.Set(me.ID)
		return me.ID, nil
	})

	select {
	case <-ctx.Done():
		return "", &TransportError{Method: http.MethodGet, Endpoint: pathUsersMe, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// RateLimitDiagnostics snapshots the tracker.
func (c *Client) RateLimitDiagnostics() map[string]core.RateLimitSnapshot {
	if c == nil {
		return map[string]core.RateLimitSnapshot{}
	}
	return c.Tracker.Diagnostics()
}

// CacheSize counts cached responses.
func (c *Client) CacheSize() int {
	if c == nil {
		return 0
	}
	return c.Cache.Len()
}

func (c *Client) resolve(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("request url is required")
	}
	if !strings.Contains(rawURL, "://") {
		if !strings.HasPrefix(rawURL, "/") {
			rawURL = "/" + rawURL
		}
		rawURL = c.BaseURL + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("request url %q is not absolute", rawURL)
	}
	return u, nil
}

func (c *Client) finish(outcome Outcome, start time.Time) {
	outcome.Duration = c.now().Sub(start)

	c.mu.Lock()
	observe := c.Observe
	tracer := c.Tracer
	c.mu.Unlock()

	tracer.Write(traceEntryFor(outcome, c.now()))
	if observe != nil {
		observe(outcome)
	}
}

// Close releases the trace file, if any. The client stays usable without it.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	tracer := c.Tracer
	c.Tracer = nil
	c.mu.Unlock()
	return tracer.Close()
}

// SetObserver replaces the outcome hook.
func (c *Client) SetObserver(fn func(Outcome)) {
	c.mu.Lock()
	c.Observe = fn
	c.mu.Unlock()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) now() time.Time {
	return now(c.Clock)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func classify(err error) string {
	if err == nil {
		return ResultOK
	}
	var (
		rl   *RateLimitError
		perm *PermissionError
		up   *UpstreamError
		tr   *TransportError
	)
	switch {
	case errors.As(err, &rl):
		if rl.Remote {
			return ResultRateLimitedRemote
		}
		return ResultRateLimitedLocal
	case errors.As(err, &perm):
		return ResultPermissionDenied
	case errors.As(err, &up):
		return ResultUpstreamError
	case errors.As(err, &tr):
		if tr.Canceled() {
			return ResultCanceled
		}
		return ResultTransportError
	default:
		return ResultInvalidRequest
	}
}

func encodeBody(body any) ([]byte, string, url.Values, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil, nil
	case url.Values:
		return []byte(v.Encode()), "application/x-www-form-urlencoded", v, nil
	case json.RawMessage:
		return v, "application/json", nil, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", nil, fmt.Errorf("encode request body: %w", err)
		}
		return data, "application/json", nil, nil
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return d
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
