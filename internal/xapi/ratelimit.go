package xapi

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ragly/xpanel/internal/core"
)

const (
	headerRateLimit     = "x-rate-limit-limit"
	headerRateRemaining = "x-rate-limit-remaining"
	headerRateReset     = "x-rate-limit-reset"
)

// Tracker remembers the latest rate-limit headers per endpoint key.
// Entries whose reset time has passed are dropped the next time they are read.
type Tracker struct {
	Clock func() time.Time

	mu      sync.Mutex
	entries map[string]core.RateLimitInfo
}

// NewTracker creates an empty tracker. A nil clock uses time.Now.
func NewTracker(clock func() time.Time) *Tracker {
	return &Tracker{Clock: clock, entries: make(map[string]core.RateLimitInfo)}
}

// Record stores whichever rate-limit headers are present on a response.
// It reports whether any were found.
func (t *Tracker) Record(key string, header http.Header) bool {
	if t == nil || header == nil {
		return false
	}

	remaining, hasRemaining := headerInt(header, headerRateRemaining)
	limit, hasLimit := headerInt(header, headerRateLimit)
	resetAt, hasReset := parseReset(header)
	if !hasRemaining && !hasLimit && !hasReset {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure()

	info := t.entries[key]
	if hasRemaining {
		info.Remaining = remaining
	}
	if hasLimit {
		info.Limit = limit
	}
	if hasReset {
		info.ResetAt = resetAt
	}
	t.entries[key] = info
	return true
}

// Block marks an endpoint exhausted until resetAt.
func (t *Tracker) Block(key string, resetAt time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure()

	info := t.entries[key]
	info.Remaining = 0
	info.ResetAt = resetAt
	t.entries[key] = info
}

// Restore seeds an entry from persisted state. Entries already past their
// reset time are ignored.
func (t *Tracker) Restore(key string, info core.RateLimitInfo) bool {
	if t == nil || key == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensure()

	if !t.now().Before(info.ResetAt) {
		return false
	}
	t.entries[key] = info
	return true
}

// Check reports whether key is currently exhausted and, if so, how long
// until its window resets.
func (t *Tracker) Check(key string) (bool, time.Duration) {
	if t == nil {
		return false, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	at := t.now()
	info, ok := t.live(key, at)
	if !ok || info.Remaining > 0 {
		return false, 0
	}
	return true, info.ResetAt.Sub(at)
}

// Get returns the live entry for key.
func (t *Tracker) Get(key string) (core.RateLimitInfo, bool) {
	if t == nil {
		return core.RateLimitInfo{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live(key, t.now())
}

// Diagnostics snapshots every unexpired entry.
func (t *Tracker) Diagnostics() map[string]core.RateLimitSnapshot {
	out := make(map[string]core.RateLimitSnapshot)
	if t == nil {
		return out
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key := range t.entries {
		info, ok := t.live(key, now)
		if !ok {
			continue
		}
		out[key] = core.RateLimitSnapshot{
			Remaining: info.Remaining,
			Limit:     info.Limit,
			ResetAt:   info.ResetAt,
			WaitSec:   waitSeconds(info.ResetAt.Sub(now)),
		}
	}
	return out
}

// Reset forgets one endpoint, or every endpoint when key is empty.
func (t *Tracker) Reset(key string) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if key == "" {
		n := len(t.entries)
		t.entries = make(map[string]core.RateLimitInfo)
		return n
	}
	if _, ok := t.entries[key]; !ok {
		return 0
	}
	delete(t.entries, key)
	return 1
}

// live must be called with mu held.
func (t *Tracker) live(key string, now time.Time) (core.RateLimitInfo, bool) {
	info, ok := t.entries[key]
	if !ok {
		return core.RateLimitInfo{}, false
	}
	if !now.Before(info.ResetAt) {
		delete(t.entries, key)
		return core.RateLimitInfo{}, false
	}
	return info, true
}

func (t *Tracker) ensure() {
	if t.entries == nil {
		t.entries = make(map[string]core.RateLimitInfo)
	}
}

func (t *Tracker) now() time.Time {
	if t.Clock != nil {
		return t.Clock()
	}
	return time.Now()
}

func parseReset(header http.Header) (time.Time, bool) {
	sec, ok := headerInt(header, headerRateReset)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(sec), 0), true
}

func headerInt(header http.Header, name string) (int, bool) {
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func waitSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
