package dedupe_test

import (
	"testing"
	"time"

	"github.com/DeafMist/news-search/backend/internal/dedupe"
	"github.com/stretchr/testify/require"
)

func TestCacheSeenDuplicate(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	require.False(t, cache.IsSeen("1", "alpha"))
	cache.MarkSeen("1", "alpha")
	require.True(t, cache.IsSeen("1", "alpha"))
}

func TestCacheChangedFingerprintIsNotSeen(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	cache.MarkSeen("1", "alpha")
	require.False(t, cache.IsSeen("1", "beta"))

	cache.MarkSeen("1", "beta")
	require.True(t, cache.IsSeen("1", "beta"))
	require.False(t, cache.IsSeen("1", "alpha"))
	require.Equal(t, 1, cache.Len())
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := dedupe.NewCache(10, 20*time.Millisecond)
	cache.MarkSeen("2", "beta")
	time.Sleep(25 * time.Millisecond)
	require.False(t, cache.IsSeen("2", "beta"))
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := dedupe.NewCache(1, time.Minute)
	cache.MarkSeen("first", "a")
	cache.MarkSeen("second", "b")

	require.False(t, cache.IsSeen("first", "a"))
	require.True(t, cache.IsSeen("second", "b"))
}

func TestCacheForget(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	cache.MarkSeen("3", "gamma")
	cache.Forget("3")
	require.False(t, cache.IsSeen("3", "gamma"))
	require.Zero(t, cache.Len())
}

func TestCacheRefreshProtectsFromEviction(t *testing.T) {
	cache := dedupe.NewCache(2, time.Minute)
	cache.MarkSeen("a", "1")
	cache.MarkSeen("b", "1")
	cache.MarkSeen("a", "2")
	cache.MarkSeen("c", "1")

	require.True(t, cache.IsSeen("a", "2"))
	require.False(t, cache.IsSeen("b", "1"))
	require.True(t, cache.IsSeen("c", "1"))
	require.Equal(t, 2, cache.Len())
}
