package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisImageCache compartilha snapshots entre instâncias do serviço.
// As chaves ficam em <prefix>:<cache key>.
type RedisImageCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration // 0: não expira
}

type RedisCacheOption func(*RedisImageCache)

func WithCachePrefix(prefix string) RedisCacheOption {
	return func(c *RedisImageCache) { c.prefix = strings.Trim(prefix, ":") }
}

func WithCacheTTL(d time.Duration) RedisCacheOption {
	return func(c *RedisImageCache) { c.ttl = d }
}

func NewRedisImageCache(rdb *redis.Client, opts ...RedisCacheOption) *RedisImageCache {
	c := &RedisImageCache{rdb: rdb, prefix: "mapsurface:snapshot"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisImageCache) key(k string) string { return c.prefix + ":" + k }

func (c *RedisImageCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	img, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get: %w", err)
	}
	return img, true, nil
}

func (c *RedisImageCache) Set(ctx context.Context, key string, img []byte) error {
	if err := c.rdb.Set(ctx, c.key(key), img, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

// Clear apaga todas as chaves do prefixo (SCAN + DEL em lotes).
func (c *RedisImageCache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.prefix+":*", 200).Result()
		if err != nil {
			return fmt.Errorf("redis cache scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis cache del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
