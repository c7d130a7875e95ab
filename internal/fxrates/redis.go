package fxrates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares rate tables between processes through Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Get returns the cached table for base. Expiry is enforced by Redis.
func (c *RedisCache) Get(ctx context.Context, base string, _ time.Time) (Rates, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	data, errGet := c.client.Get(ctx, c.buildKey(base)).Bytes()
	if errors.Is(errGet, redis.Nil) {
		return nil, false, nil
	}
	if errGet != nil {
		return nil, false, errGet
	}
	var rates Rates
	if errUnmarshal := json.Unmarshal(data, &rates); errUnmarshal != nil {
		return nil, false, fmt.Errorf("fxrates redis: decode %s: %w", base, errUnmarshal)
	}
	return rates, len(rates) > 0, nil
}

// Set stores the table for base with the given TTL.
func (c *RedisCache) Set(ctx context.Context, base string, rates Rates, ttl time.Duration, _ time.Time) error {
	if c == nil || c.client == nil || ttl <= 0 || len(rates) == 0 {
		return nil
	}
	data, errMarshal := json.Marshal(rates)
	if errMarshal != nil {
		return fmt.Errorf("fxrates redis: encode %s: %w", base, errMarshal)
	}
	return c.client.Set(ctx, c.buildKey(base), data, ttl).Err()
}

func (c *RedisCache) buildKey(base string) string {
	if c.prefix == "" {
		return "rates:" + base
	}
	return c.prefix + ":rates:" + base
}
