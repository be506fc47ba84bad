// Package cache holds recent simulation responses per repository so repeated
// requests inside the TTL are answered without re-running the pipeline.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultTTL is how long a cached simulation response stays fresh.
const DefaultTTL = 600 * time.Second

// DefaultMaxEntries bounds the number of repositories held at once.
const DefaultMaxEntries = 1024

// Entry is a cached response. Payload is returned byte-for-byte.
type Entry struct {
	Timestamp time.Time
	Payload   json.RawMessage
}

// Cache is a thread-safe TTL map keyed by repository id.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]Entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxEntries bounds the cache size.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]Entry),
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for repoID if it is younger than the TTL.
// Expired entries are dropped on lookup.
func (c *Cache) Get(repoID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[repoID]
	if !ok {
		return Entry{}, false
	}
	if c.now().Sub(e.Timestamp) >= c.ttl {
		delete(c.entries, repoID)
		return Entry{}, false
	}
	return e, true
}

// Set stores payload for repoID, overwriting any previous entry.
func (c *Cache) Set(repoID string, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[repoID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	buf := make(json.RawMessage, len(payload))
	copy(buf, payload)
	c.entries[repoID] = Entry{Timestamp: c.now(), Payload: buf}
}

// Delete drops the entry for repoID.
func (c *Cache) Delete(repoID string) {
	c.mu.Lock()
	delete(c.entries, repoID)
	c.mu.Unlock()
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked removes every expired entry, or the oldest one if none expired.
func (c *Cache) evictLocked() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	removed := false
	for k, e := range c.entries {
		if now.Sub(e.Timestamp) >= c.ttl {
			delete(c.entries, k)
			removed = true
			continue
		}
		if oldestKey == "" || e.Timestamp.Before(oldest) {
			oldestKey, oldest = k, e.Timestamp
		}
	}
	if !removed && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
