package fxrates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	defaultRatesURL       = "https://api.exchangerate-api.com/v4/latest"
	defaultRequestTimeout = 10 * time.Second
	maxPayloadBytes       = 1 << 20
)

// ErrProviderUnavailable is returned while the provider circuit is open.
var ErrProviderUnavailable = errors.New("fxrates: provider unavailable")

// HTTPProvider fetches rate tables from GET {baseURL}/{BASE}.
type HTTPProvider struct {
	url     string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPProvider constructs a provider guarded by a circuit breaker.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultRatesURL
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPProvider{
		url:     baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		breaker: newBreaker("fx-rates-provider"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(log.Fields{
				"circuit_breaker": name,
				"from":            from.String(),
				"to":              to.String(),
			}).Info("fxrates: circuit breaker state changed")
		},
	})
}

// Rates fetches the table for base.
func (p *HTTPProvider) Rates(ctx context.Context, base string) (Rates, error) {
	if p == nil {
		return nil, fmt.Errorf("fxrates: nil provider")
	}
	base = NormalizeCode(base)
	if base == "" {
		return nil, fmt.Errorf("fxrates: empty base currency")
	}
	breaker := p.breaker
	if breaker == nil {
		return p.fetch(ctx, base)
	}
	result, err := breaker.Execute(func() (interface{}, error) {
		return p.fetch(ctx, base)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	rates, _ := result.(Rates)
	return rates, nil
}

func (p *HTTPProvider) fetch(ctx context.Context, base string) (Rates, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := p.client
	if client == nil {
		client = &http.Client{Timeout: p.timeout}
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := p.url + "/" + url.PathEscape(base)
	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("fxrates: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fxrates: request failed: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("fxrates: close response body failed")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("fxrates: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("fxrates: read response: %w", err)
	}
	return ParseRatesPayload(base, body)
}
