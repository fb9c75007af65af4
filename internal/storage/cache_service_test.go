package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCacheService(NewRedisCacheFromClient(client), ttl), mr
}

func TestSummaryKey(t *testing.T) {
	assert.Equal(t, "summary:60", SummaryKey(60))
	assert.Equal(t, "summary:1440", SummaryKey(1440))
}

func TestCacheSetGet(t *testing.T) {
	cache, _ := newTestCache(t, 20*time.Second)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, cache.Set(ctx, "summary:60", payload{Name: "global", Count: 7}))

	var got payload
	hit, err := cache.Get(ctx, "summary:60", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Name: "global", Count: 7}, got)
}

func TestCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t, 20*time.Second)

	var got map[string]any
	hit, err := cache.Get(context.Background(), "summary:60", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, mr := newTestCache(t, 20*time.Second)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "summary:60", map[string]int{"n": 1}))

	mr.FastForward(21 * time.Second)

	var got map[string]int
	hit, err := cache.Get(ctx, "summary:60", &got)
	require.NoError(t, err)
	assert.False(t, hit, "entry must expire with the TTL")
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "summary:60", map[string]int{"n": 1}))
	require.NoError(t, cache.Invalidate(ctx, "summary:60"))

	var got map[string]int
	hit, err := cache.Get(ctx, "summary:60", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
