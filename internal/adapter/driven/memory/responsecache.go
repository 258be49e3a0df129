// Package memory holds the process-local state guarding outbound Notion
// calls: a TTL response cache and a sliding-window rate limiter. Nothing here
// is persisted or shared between processes; each instance caches and
// rate-limits on its own.
package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ResponseCache = (*ResponseCache)(nil)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// ResponseCache is a mutex-guarded map of values with per-entry expiry.
// Expired entries are dropped lazily on Get or eagerly by Cleanup.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewResponseCache creates an empty cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the value for key, or false if it is missing or expired.
func (c *ResponseCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(entry) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores value until now+ttl. A non-positive ttl stores nothing.
func (c *ResponseCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes key and reports whether it was present.
func (c *ResponseCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (c *ResponseCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Cleanup removes expired entries and returns how many were removed.
func (c *ResponseCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats counts entries without purging them.
func (c *ResponseCache) Stats() model.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := model.CacheStats{Total: len(c.entries)}
	for _, entry := range c.entries {
		if c.expired(entry) {
			stats.Expired++
		}
	}
	stats.Active = stats.Total - stats.Expired
	return stats
}

// expired must be called with c.mu held.
func (c *ResponseCache) expired(entry cacheEntry) bool {
	return c.now().After(entry.expiresAt)
}
