package xapi

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	// DefaultCacheTTL bounds how long a GET response is served from memory.
	DefaultCacheTTL = 15 * time.Minute
	// DefaultUserIDTTL bounds how long the authenticated user id is reused.
	DefaultUserIDTTL = 24 * time.Hour
)

// ResponseCache keeps raw GET response bodies keyed by full request URL.
// A non-positive TTL disables caching.
type ResponseCache struct {
	TTL   time.Duration
	Clock func() time.Time

	mu      sync.Mutex
	entries map[string]cachedResponse
}

type cachedResponse struct {
	data     json.RawMessage
	storedAt time.Time
}

// NewResponseCache creates a cache with the given TTL.
func NewResponseCache(ttl time.Duration, clock func() time.Time) *ResponseCache {
	return &ResponseCache{TTL: ttl, Clock: clock, entries: make(map[string]cachedResponse)}
}

// Get returns a fresh entry. Stale entries are evicted on read.
func (c *ResponseCache) Get(key string) (json.RawMessage, bool) {
	if c == nil || c.TTL <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now(c.Clock).Sub(entry.storedAt) >= c.TTL {
		delete(c.entries, key)
		return nil, false
	}
	return cloneRaw(entry.data), true
}

// Set stores data under key, replacing any previous entry.
func (c *ResponseCache) Set(key string, data json.RawMessage) {
	if c == nil || c.TTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]cachedResponse)
	}
	c.entries[key] = cachedResponse{data: cloneRaw(data), storedAt: now(c.Clock)}
}

// Len counts stored entries, including stale ones not yet evicted.
func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *ResponseCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]cachedResponse)
	c.mu.Unlock()
}

// UserIDCache holds the authenticated account's user id.
type UserIDCache struct {
	TTL   time.Duration
	Clock func() time.Time

	mu       sync.Mutex
	id       string
	storedAt time.Time
}

// NewUserIDCache creates an empty user id cache.
func NewUserIDCache(ttl time.Duration, clock func() time.Time) *UserIDCache {
	return &UserIDCache{TTL: ttl, Clock: clock}
}

// Get returns the cached id while it is fresh.
func (c *UserIDCache) Get() (string, bool) {
	if c == nil || c.TTL <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id == "" {
		return "", false
	}
	if now(c.Clock).Sub(c.storedAt) >= c.TTL {
		c.id = ""
		return "", false
	}
	return c.id, true
}

// Set records id as of now.
func (c *UserIDCache) Set(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.id = id
	c.storedAt = now(c.Clock)
	c.mu.Unlock()
}

func cloneRaw(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}

func now(clock func() time.Time) time.Time {
	if clock != nil {
		return clock()
	}
	return time.Now()
}
