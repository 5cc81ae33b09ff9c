package xapi

import (
	"errors"
	"time"
)

// RetryPolicy decides whether a remote 429 is worth waiting out in-process.
// MaxAttempts counts the first try, so 1 disables retries.
type RetryPolicy struct {
	MaxAttempts int
	MaxWait     time.Duration
}

// DefaultRetryPolicy surfaces every 429 to the caller immediately.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, MaxWait: 30 * time.Second}
}

// Next returns the delay before another attempt, given that attempt tries
// have already failed with err.
func (p RetryPolicy) Next(attempt int, err error) (time.Duration, bool) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if attempt >= maxAttempts {
		return 0, false
	}

	var rl *RateLimitError
	if !errors.As(err, &rl) || !rl.Remote {
		return 0, false
	}
	if rl.Wait > p.MaxWait {
		return 0, false
	}
	if rl.Wait < 0 {
		return 0, true
	}
	return rl.Wait, true
}
