package fxrates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/metrics"
)

const (
	defaultCacheTTL      = time.Hour
	redisBreakerDuration = 30 * time.Second
	redisPingTimeout     = 2 * time.Second
)

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Options configures a CachedSource.
type Options struct {
	TTL            time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	Now            func() time.Time
	NewRedisClient RedisClientFactory
	Metrics        *metrics.Metrics
}

// CachedSource serves rate tables from Redis or memory and falls back to the upstream source on a miss.
// Redis errors trip a short breaker during which only the memory cache is consulted.
type CachedSource struct {
	upstream Source
	ttl      time.Duration
	nowFn    func() time.Time
	memory   *MemoryCache
	metrics  *metrics.Metrics

	redisAddr      string
	redisPassword  string
	redisDB        int
	redisPrefix    string
	newRedisClient RedisClientFactory

	mu           sync.Mutex
	redisCache   *RedisCache
	breakerUntil time.Time
}

// NewCachedSource wraps upstream with a TTL cache.
func NewCachedSource(upstream Source, opts Options) *CachedSource {
	if opts.TTL <= 0 {
		opts.TTL = defaultCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRedisClient == nil {
		opts.NewRedisClient = redis.NewClient
	}
	if opts.RedisDB < 0 {
		opts.RedisDB = 0
	}
	return &CachedSource{
		upstream:       upstream,
		ttl:            opts.TTL,
		nowFn:          opts.Now,
		memory:         NewMemoryCache(),
		metrics:        opts.Metrics,
		redisAddr:      strings.TrimSpace(opts.RedisAddr),
		redisPassword:  strings.TrimSpace(opts.RedisPassword),
		redisDB:        opts.RedisDB,
		redisPrefix:    strings.TrimSpace(opts.RedisPrefix),
		newRedisClient: opts.NewRedisClient,
	}
}

// Rates returns the table for base from the first cache that has it, or from upstream.
func (s *CachedSource) Rates(ctx context.Context, base string) (Rates, error) {
	if s == nil || s.upstream == nil {
		return nil, fmt.Errorf("fxrates: source not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	base = NormalizeCode(base)
	if base == "" {
		return nil, fmt.Errorf("fxrates: empty base currency")
	}
	now := s.nowFn()

	if rates, ok, errGet := s.memory.Get(ctx, base, now); errGet == nil && ok && rates != nil {
		s.metrics.RateLookup("memory", "hit")
		return rates, nil
	}
	if rates, ok := s.getRedis(ctx, base, now); ok {
		s.metrics.RateLookup("redis", "hit")
		_ = s.memory.Set(ctx, base, rates, s.ttl, now)
		return rates, nil
	}

	rates, errFetch := s.upstream.Rates(ctx, base)
	if errFetch != nil {
		s.metrics.RateLookup("provider", "error")
		return nil, errFetch
	}
	s.metrics.RateLookup("provider", "hit")
	_ = s.memory.Set(ctx, base, rates, s.ttl, now)
	s.setRedis(ctx, base, rates, now)
	return rates.clone(), nil
}

func (s *CachedSource) getRedis(ctx context.Context, base string, now time.Time) (Rates, bool) {
	cache := s.redisBackend(ctx, now)
	if cache == nil {
		return nil, false
	}
	rates, ok, errGet := cache.Get(ctx, base, now)
	if errGet != nil {
		s.tripBreaker(errGet, now)
		return nil, false
	}
	return rates, ok
}

func (s *CachedSource) setRedis(ctx context.Context, base string, rates Rates, now time.Time) {
	cache := s.redisBackend(ctx, now)
	if cache == nil {
		return
	}
	if errSet := cache.Set(ctx, base, rates, s.ttl, now); errSet != nil {
		s.tripBreaker(errSet, now)
	}
}

func (s *CachedSource) redisBackend(ctx context.Context, now time.Time) *RedisCache {
	if s.redisAddr == "" || s.isBreakerActive(now) {
		return nil
	}
	cache, errEnsure := s.ensureRedis(ctx)
	if errEnsure != nil {
		s.tripBreaker(errEnsure, now)
		return nil
	}
	return cache
}

func (s *CachedSource) isBreakerActive(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.breakerUntil.IsZero() {
		return false
	}
	if now.Before(s.breakerUntil) {
		return true
	}
	s.breakerUntil = time.Time{}
	return false
}

func (s *CachedSource) tripBreaker(err error, now time.Time) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.breakerUntil.IsZero() && now.Before(s.breakerUntil) {
		return
	}
	s.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("fxrates: redis unavailable, falling back to memory cache")
}

func (s *CachedSource) ensureRedis(ctx context.Context) (*RedisCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.redisCache != nil {
		return s.redisCache, nil
	}
	if s.redisAddr == "" {
		return nil, errors.New("fxrates redis: missing address")
	}
	client := s.newRedisClient(&redis.Options{
		Addr:     s.redisAddr,
		Password: s.redisPassword,
		DB:       s.redisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	s.redisCache = NewRedisCache(client, s.redisPrefix)
	return s.redisCache, nil
}

// Close releases the Redis client if one was opened.
func (s *CachedSource) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redisCache == nil || s.redisCache.client == nil {
		return nil
	}
	errClose := s.redisCache.client.Close()
	s.redisCache = nil
	return errClose
}
