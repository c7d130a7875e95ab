package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "u:1", 2, time.Minute, now)
		if err != nil || !res.Allowed {
			t.Fatalf("hit %d: allowed=%v err=%v", i, res.Allowed, err)
		}
	}
	res, _ := l.Allow(ctx, "u:1", 2, time.Minute, now.Add(10*time.Second))
	if res.Allowed {
		t.Fatalf("expected third hit in window to be denied")
	}
	if !res.Reset.Equal(time.Date(2026, 1, 1, 10, 1, 0, 0, time.UTC)) {
		t.Fatalf("reset = %v", res.Reset)
	}
	if other, _ := l.Allow(ctx, "u:2", 2, time.Minute, now); !other.Allowed {
		t.Fatalf("expected other key to be allowed")
	}

	next, _ := l.Allow(ctx, "u:1", 2, time.Minute, now.Add(time.Minute))
	if !next.Allowed || next.Remaining != 1 {
		t.Fatalf("expected fresh window, got %+v", next)
	}
}

func TestMemoryLimiterUnlimited(t *testing.T) {
	l := NewMemoryLimiter()
	for i := 0; i < 5; i++ {
		if res, _ := l.Allow(context.Background(), "u:1", 0, time.Minute, time.Now()); !res.Allowed {
			t.Fatalf("expected unlimited")
		}
	}
}

func TestManagerFallsBackToMemoryWhenRedisUnreachable(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(Options{
		Window:    time.Minute,
		RedisAddr: "127.0.0.1:1",
		Now:       func() time.Time { return now },
	})
	defer func() { _ = m.Close() }()

	first, err := m.Allow(context.Background(), "u:1", 1)
	if err != nil || !first.Allowed {
		t.Fatalf("first hit: %+v err=%v", first, err)
	}
	if !m.isBreakerActive(now) {
		t.Fatalf("expected redis breaker to be tripped")
	}
	second, _ := m.Allow(context.Background(), "u:1", 1)
	if second.Allowed {
		t.Fatalf("expected memory fallback to enforce the limit")
	}
}

func TestPolicyLimitFor(t *testing.T) {
	p := Policy{Default: 60, Plans: map[string]int{"Premium": 600, "internal": 0}}
	cases := map[string]int{"free": 60, "": 60, "premium": 600, "internal": 0}
	for plan, want := range cases {
		if got := p.LimitFor(plan); got != want {
			t.Fatalf("LimitFor(%q)=%d, want %d", plan, got, want)
		}
	}
	if KeyForUser(0) != "" || KeyForUser(7) != "u:7" {
		t.Fatalf("unexpected user keys")
	}
}
