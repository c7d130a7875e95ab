package valuation

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/fxrates"
	"github.com/wealthvault/backend/internal/metrics"
)

// Conversion failure reasons reported in Status.Reason and the failure metric.
const (
	ReasonNoSource    = "no_source"
	ReasonProvider    = "provider"
	ReasonUnavailable = "unavailable"
	ReasonMissingRate = "missing_rate"
)

// Status describes the outcome of a single conversion.
// Converted is false when the original amount was returned because no rate could be applied.
type Status struct {
	Converted bool
	Rate      float64
	Reason    string
}

// Converter converts amounts using a rate source and never fails: on any lookup problem
// it returns the original amount.
type Converter struct {
	source  fxrates.Source
	metrics *metrics.Metrics
}

// NewConverter constructs a Converter. A nil source makes every cross-currency conversion fall back.
func NewConverter(source fxrates.Source, m *metrics.Metrics) *Converter {
	return &Converter{source: source, metrics: m}
}

// Convert returns amount expressed in the target currency, or amount unchanged when conversion fails.
func (c *Converter) Convert(ctx context.Context, amount float64, from, to string) float64 {
	out, _ := c.ConvertWithStatus(ctx, amount, from, to)
	return out
}

// ConvertWithStatus is Convert with the per-call outcome.
func (c *Converter) ConvertWithStatus(ctx context.Context, amount float64, from, to string) (float64, Status) {
	from = fxrates.NormalizeCode(from)
	to = fxrates.NormalizeCode(to)
	if from == to {
		return amount, Status{Converted: true, Rate: 1}
	}
	if amount == 0 {
		return 0, Status{Converted: true}
	}
	if c == nil || c.source == nil {
		return c.fallback(amount, from, to, ReasonNoSource, fmt.Errorf("valuation: no rate source"))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rates, errRates := c.source.Rates(ctx, from)
	if errRates != nil {
		reason := ReasonProvider
		if errors.Is(errRates, fxrates.ErrProviderUnavailable) {
			reason = ReasonUnavailable
		}
		return c.fallback(amount, from, to, reason, errRates)
	}
	rate, ok := rates[to]
	if !ok || rate <= 0 {
		return c.fallback(amount, from, to, ReasonMissingRate, fmt.Errorf("valuation: no rate %s->%s", from, to))
	}
	return amount * rate, Status{Converted: true, Rate: rate}
}

func (c *Converter) fallback(amount float64, from, to, reason string, err error) (float64, Status) {
	log.WithError(err).WithFields(log.Fields{
		"from":   from,
		"to":     to,
		"reason": reason,
	}).Warn("valuation: currency conversion failed, using original amount")
	if c != nil {
		c.metrics.ConversionFailed(from, to, reason)
	}
	return amount, Status{Converted: false, Reason: reason}
}
