package advisory

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhqng/weather-risk-alerts/internal/weather"
)

func TestCacheKeyNormalizesQueryAndDay(t *testing.T) {
	at := time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "hanoi|2026-09-01", CacheKey("  HaNoi ", at))
	assert.Equal(t, CacheKey("hanoi", at), CacheKey("HANOI", at))

	nextDay := at.Add(2 * time.Minute)
	assert.NotEqual(t, CacheKey("hanoi", at), CacheKey("hanoi", nextDay))
}

func TestHotCacheExpiresAtTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewHotCache(3*time.Hour, clock)

	adv := weather.Advisory{Kind: weather.AdvisoryAdvice, Message: "carry an umbrella"}
	cache.Put("hanoi|2026-09-01", adv)

	clock.Advance(179 * time.Minute)
	got, ok := cache.Get("hanoi|2026-09-01")
	require.True(t, ok)
	assert.Equal(t, "carry an umbrella", got.Message)

	clock.Advance(2 * time.Minute)
	_, ok = cache.Get("hanoi|2026-09-01")
	assert.False(t, ok)
}

func TestHotCachePutEvictsExpiredEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewHotCache(time.Hour, clock)

	cache.Put("old", weather.Advisory{Message: "old"})
	clock.Advance(2 * time.Hour)
	cache.Put("new", weather.Advisory{Message: "new"})

	cache.mu.RLock()
	defer cache.mu.RUnlock()
	assert.NotContains(t, cache.entries, "old")
	assert.Contains(t, cache.entries, "new")
}
