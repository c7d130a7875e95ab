// Package ratelimit throttles API requests per user with fixed windows kept in Redis or memory.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter counts hits of key in the fixed window containing now.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// windowStart returns the index of the window containing now and the time it ends.
func windowStart(now time.Time, window time.Duration) (int64, time.Time) {
	if window <= 0 {
		window = time.Minute
	}
	idx := now.UnixNano() / int64(window)
	reset := time.Unix(0, (idx+1)*int64(window)).UTC()
	return idx, reset
}
