package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisIncrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter keeps fixed-window counters in Redis so limits hold across processes.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.TrimSpace(prefix)}
}

// Allow counts one hit for key in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}
	idx, reset := windowStart(now, window)
	ttl := reset.Sub(now) + time.Second
	if ttl <= 0 {
		ttl = time.Second
	}

	count, errEval := redisIncrScript.Run(ctx, l.client, []string{l.buildKey(key, idx)}, ttl.Milliseconds()).Int64()
	if errEval != nil {
		return Result{}, fmt.Errorf("ratelimit: redis incr: %w", errEval)
	}
	if count > int64(limit) {
		return Result{Allowed: false, Limit: limit, Reset: reset}, nil
	}
	return Result{Allowed: true, Limit: limit, Remaining: limit - int(count), Reset: reset}, nil
}

func (l *RedisLimiter) buildKey(key string, idx int64) string {
	window := strconv.FormatInt(idx, 10)
	if l.prefix == "" {
		return key + ":" + window
	}
	return l.prefix + ":" + key + ":" + window
}
