package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveJob("dms-check", "success", time.Second)
	m.ConversionFailed("USD", "EUR", "provider")
	m.MessageOutcome("sent")
	m.SwitchEvent("reminder")
	m.NetWorthWarning("anomalous")
	m.RateLookup("memory", "hit")
	m.ObserveRequest("GET", "/healthz", 200, time.Millisecond)
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ObserveJob("dms-check", "success", 10*time.Millisecond)
	m.ObserveJob("dms-check", "skipped", 0)
	m.ConversionFailed("USD", "EUR", "provider")
	m.ConversionFailed("USD", "EUR", "provider")
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	if !strings.Contains(out, `wealthvault_jobs_runs_total{outcome="skipped",task="dms-check"} 1`) {
		t.Fatalf("expected skipped job counter in exposition output:\n%s", out)
	}
	if !strings.Contains(out, `wealthvault_currency_conversion_failures_total{from="USD",reason="provider",to="EUR"} 2`) {
		t.Fatalf("expected conversion failure counter in exposition output")
	}
	if !strings.Contains(out, `wealthvault_http_requests_total{method="GET",route="unmatched",status="404"} 1`) {
		t.Fatalf("expected http request counter in exposition output")
	}
}
