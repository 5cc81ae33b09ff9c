package xapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

const maxErrorBody = 512

// ConfigError reports missing credentials. It never carries secret values.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "missing X API credentials: " + strings.Join(e.Missing, ", ")
}

// RateLimitError means an endpoint is exhausted, either because the local
// tracker says so or because X answered 429.
type RateLimitError struct {
	Endpoint string
	ResetAt  time.Time
	Wait     time.Duration
	Remote   bool
}

// WaitMinutes rounds the remaining wait up to whole minutes, minimum one.
func (e *RateLimitError) WaitMinutes() int {
	minutes := int(math.Ceil(e.Wait.Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}

func (e *RateLimitError) Error() string {
	source := "local tracker"
	if e.Remote {
		source = "X API returned 429"
	}
	return fmt.Sprintf("rate limited on %s (%s); retry in ~%d min", e.Endpoint, source, e.WaitMinutes())
}

// PermissionError is a 403 caused by the app's access level rather than the
// request itself.
type PermissionError struct {
	StatusCode int
	Body       string
}

func (e *PermissionError) Error() string {
	return "X API refused the request: the access token lacks write permission. " +
		"Set the app permissions to \"Read and write\" in the X developer portal, " +
		"then regenerate the access token and secret"
}

// UpstreamError is any other non-2xx response, or an unreadable body.
type UpstreamError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
	Message    string
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	if msg == "" {
		return fmt.Sprintf("X API %s %s returned status %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("X API %s %s returned status %d: %s", e.Method, e.Endpoint, e.StatusCode, msg)
}

// TransportError wraps network failures, timeouts and cancellation.
type TransportError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("X API %s %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline rather than a refusal.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// Canceled reports whether the caller gave up.
func (e *TransportError) Canceled() bool {
	return errors.Is(e.Err, context.Canceled)
}

var permissionMarkers = []string{
	"oauth1-permissions",
	"oauth1 app permissions",
	"not permitted to perform this action",
	"client-not-enrolled",
	"unsupported-authentication",
}

func isPermissionProblem(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
