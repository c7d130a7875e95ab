package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter keeps fixed-window counters in process memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
	lastGC   int64
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counters: make(map[string]*memoryEntry)}
}

// Allow counts one hit for key in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	idx, reset := windowStart(now, window)

	l.mu.Lock()
	defer l.mu.Unlock()
	if idx != l.lastGC {
		// Counters from past windows are never read again.
		for k, entry := range l.counters {
			if entry.window < idx {
				delete(l.counters, k)
			}
		}
		l.lastGC = idx
	}
	entry := l.counters[key]
	if entry == nil || entry.window != idx {
		entry = &memoryEntry{window: idx}
		l.counters[key] = entry
	}
	if entry.count >= limit {
		return Result{Allowed: false, Limit: limit, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - entry.count, Reset: reset}, nil
}
