// Package cache provides the session result cache: a short-lived,
// per-user store of the last successful analysis outcome.
//
// Cached results are a derived, disposable projection of the last
// interaction log entry. They exist so a page reload can restore the
// last outcome without a store round trip; they are never the source of
// truth and never required for correctness.
package cache

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
)

// Result is one cached analysis outcome.
type Result struct {
	Outcome        analysis.Outcome  `json:"outcome"`
	Tool           analysis.ToolKind `json:"tool"`
	RawInput       string            `json:"raw_input"`
	IdempotencyKey string            `json:"idempotency_key"`
	CachedAt       time.Time         `json:"cached_at"`
}

type entry struct {
	result    Result
	expiresAt time.Time
}

// SessionCache is a thread-safe per-user TTL cache.
type SessionCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int

	// now is injectable for tests.
	now func() time.Time
}

// New creates a cache with the given freshness window and entry bound.
func New(ttl time.Duration, maxEntries int) *SessionCache {
	return &SessionCache{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Set stores the user's latest result, replacing any prior one.
func (c *SessionCache) Set(userID string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[userID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	result.CachedAt = now
	c.entries[userID] = entry{result: result, expiresAt: now.Add(c.ttl)}
}

// Get returns the user's cached result if still fresh. Expired entries
// are removed on access.
func (c *SessionCache) Get(userID string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return Result{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, userID)
		return Result{}, false
	}
	return e.result, true
}

// Clear drops the user's cached result.
func (c *SessionCache) Clear(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Len returns the current entry count, expired entries included.
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest removes the entry closest to expiry. Caller holds the lock.
func (c *SessionCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
