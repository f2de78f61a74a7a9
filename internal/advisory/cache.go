package advisory

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/minhqng/weather-risk-alerts/internal/weather"
)

// CacheKey builds the hot-cache key: lowercased location query plus the
// calendar day, so entries roll over at midnight UTC.
func CacheKey(query string, now time.Time) string {
	return strings.ToLower(strings.TrimSpace(query)) + "|" + now.UTC().Format("2006-01-02")
}

type hotEntry struct {
	adv      weather.Advisory
	storedAt time.Time
}

// HotCache is the in-process TTL tier of the advisory cache. It is
// safely shared across request handlers and job goroutines; readers
// eventually observe the last successful write, nothing stronger.
type HotCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   clockwork.Clock
	entries map[string]hotEntry
}

// NewHotCache creates a hot cache with the given TTL.
func NewHotCache(ttl time.Duration, clock clockwork.Clock) *HotCache {
	return &HotCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]hotEntry),
	}
}

// Get returns the cached advisory if present and not expired.
func (c *HotCache) Get(key string) (weather.Advisory, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.clock.Now().Sub(entry.storedAt) >= c.ttl {
		return weather.Advisory{}, false
	}
	return entry.adv, true
}

// Put stores an advisory and opportunistically evicts expired entries.
func (c *HotCache) Put(key string, adv weather.Advisory) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = hotEntry{adv: adv, storedAt: now}
}
