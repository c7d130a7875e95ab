package fxrates

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rates   Rates
	expires time.Time
}

// MemoryCache is an in-process TTL cache of rate tables.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache constructs a MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the cached table for base if it has not expired.
func (c *MemoryCache) Get(_ context.Context, base string, now time.Time) (Rates, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[base]
	if !ok {
		return nil, false, nil
	}
	if !now.Before(entry.expires) {
		delete(c.entries, base)
		return nil, false, nil
	}
	return entry.rates.clone(), true, nil
}

// Set stores the table for base until now+ttl.
func (c *MemoryCache) Set(_ context.Context, base string, rates Rates, ttl time.Duration, now time.Time) error {
	if ttl <= 0 || len(rates) == 0 {
		return nil
	}
	c.mu.Lock()
	c.entries[base] = memoryEntry{rates: rates.clone(), expires: now.Add(ttl)}
	c.mu.Unlock()
	return nil
}
