package infra

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshboard-maps/mapsurface/domain"
)

func testImageCache(t *testing.T, c domain.ImageCache) {
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "25.033000,121.565400,:14", []byte{0x89, 'P', 'N', 'G'}))
	img, ok, err := c.Get(ctx, "25.033000,121.565400,:14")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img)

	require.NoError(t, c.Clear(ctx))
	_, ok, err = c.Get(ctx, "25.033000,121.565400,:14")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryImageCache(t *testing.T) {
	c := NewMemoryImageCache()
	testImageCache(t, c)
	assert.Equal(t, 0, c.Len())
}

// Roda contra um Redis real quando TEST_REDIS_ADDR estiver definido.
func TestRedisImageCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(context.Background()).Err())

	c := NewRedisImageCache(rdb, WithCachePrefix("test:"+uuid.NewString()))
	testImageCache(t, c)
}

func TestRedisStatsStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	prefix := "test:" + uuid.NewString()
	s := NewRedisStatsStore(rdb, WithStatsPrefix(prefix), WithStatsTrackOwners(true))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: domain.EventGranted, Owner: "a", Priority: 1}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: domain.EventGranted, Owner: "b", Priority: 1}))

	total, err := s.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total[domain.EventGranted])

	keys, err := rdb.Keys(ctx, prefix+":*").Result()
	require.NoError(t, err)
	if len(keys) > 0 {
		rdb.Del(ctx, keys...)
	}
}

func TestNilRedisStatsStoreIsNoop(t *testing.T) {
	var s *RedisStatsStore
	assert.NoError(t, s.Record(context.Background(), domain.StatsEvent{Kind: domain.EventGranted}))
}
