package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Options configures a Manager. An empty RedisAddr keeps all counters in memory.
type Options struct {
	Window         time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	Now            func() time.Time
	NewRedisClient RedisClientFactory
}

// Manager enforces limits through Redis and falls back to memory while Redis is unavailable.
type Manager struct {
	window         time.Duration
	nowFn          func() time.Time
	memoryLimiter  Limiter
	newRedisClient RedisClientFactory

	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string

	mu           sync.Mutex
	redisLimiter *RedisLimiter
	breakerUntil time.Time
}

// NewManager constructs a Manager with default dependencies when unset.
func NewManager(opts Options) *Manager {
	if opts.Window <= 0 {
		opts.Window = time.Minute
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
	return &Manager{
		window:         opts.Window,
		nowFn:          opts.Now,
		memoryLimiter:  NewMemoryLimiter(),
		newRedisClient: opts.NewRedisClient,
		redisAddr:      strings.TrimSpace(opts.RedisAddr),
		redisPassword:  strings.TrimSpace(opts.RedisPassword),
		redisDB:        opts.RedisDB,
		redisPrefix:    strings.TrimSpace(opts.RedisPrefix),
	}
}

// Window returns the length of a counting window.
func (m *Manager) Window() time.Duration {
	if m == nil {
		return 0
	}
	return m.window
}

// Allow counts one hit for key using the best available backend.
func (m *Manager) Allow(ctx context.Context, key string, limit int) (Result, error) {
	if m == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := m.nowFn()
	if m.redisAddr != "" {
		if result, ok := m.allowRedis(ctx, key, limit, now); ok {
			return result, nil
		}
	}
	return m.memoryLimiter.Allow(ctx, key, limit, m.window, now)
}

func (m *Manager) allowRedis(ctx context.Context, key string, limit int, now time.Time) (Result, bool) {
	if m.isBreakerActive(now) {
		return Result{}, false
	}
	limiter, errEnsure := m.ensureRedis(ctx)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return Result{}, false
	}
	result, errAllow := limiter.Allow(ctx, key, limit, m.window, now)
	if errAllow != nil {
		m.tripBreaker(errAllow, now)
		return Result{}, false
	}
	return result, true
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to memory")
}

func (m *Manager) ensureRedis(ctx context.Context) (*RedisLimiter, error) {
	if m.redisAddr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisLimiter != nil {
		return m.redisLimiter, nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     m.redisAddr,
		Password: m.redisPassword,
		DB:       m.redisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisLimiter = NewRedisLimiter(client, m.redisPrefix)
	return m.redisLimiter, nil
}

// Close releases the Redis client if one was opened.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisLimiter == nil || m.redisLimiter.client == nil {
		return nil
	}
	errClose := m.redisLimiter.client.Close()
	m.redisLimiter = nil
	return errClose
}
