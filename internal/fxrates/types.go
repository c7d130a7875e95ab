package fxrates

import (
	"context"
	"strings"
	"time"
)

// Rates maps a quote currency code to the number of quote units per one base unit.
type Rates map[string]float64

// Source returns the rate table for a base currency.
type Source interface {
	Rates(ctx context.Context, base string) (Rates, error)
}

// Cache stores rate tables by base currency.
type Cache interface {
	Get(ctx context.Context, base string, now time.Time) (Rates, bool, error)
	Set(ctx context.Context, base string, rates Rates, ttl time.Duration, now time.Time) error
}

// NormalizeCode upper-cases and trims a currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r Rates) clone() Rates {
	if r == nil {
		return nil
	}
	out := make(Rates, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
