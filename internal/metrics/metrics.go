// Package metrics exposes Prometheus collectors for background tasks, conversion and aggregation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wealthvault"

// Metrics groups the collectors registered on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	conversionFailures *prometheus.CounterVec
	rateLookups        *prometheus.CounterVec

	messageOutcomes *prometheus.CounterVec
	switchEvents    *prometheus.CounterVec

	netWorthWarnings *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "runs_total",
				Help:      "Scheduled task invocations by outcome",
			},
			[]string{"task", "outcome"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "run_duration_seconds",
				Help:      "Scheduled task run duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		conversionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "currency",
				Name:      "conversion_failures_total",
				Help:      "Conversions that fell back to the original amount",
			},
			[]string{"from", "to", "reason"},
		),
		rateLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "currency",
				Name:      "rate_lookups_total",
				Help:      "Exchange rate lookups by source and result",
			},
			[]string{"source", "result"},
		),
		messageOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "outcomes_total",
				Help:      "Scheduled message state transitions",
			},
			[]string{"outcome"},
		),
		switchEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dead_man_switch",
				Name:      "events_total",
				Help:      "Dead man switch reminders, triggers and errors",
			},
			[]string{"event"},
		),
		netWorthWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "networth",
				Name:      "warnings_total",
				Help:      "Aggregations flagged as inconsistent or anomalous",
			},
			[]string{"kind"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveJob records one task invocation.
func (m *Metrics) ObserveJob(task, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(task, outcome).Inc()
	if outcome != "skipped" {
		m.jobDuration.WithLabelValues(task).Observe(elapsed.Seconds())
	}
}

// ConversionFailed counts a fail-open currency conversion.
func (m *Metrics) ConversionFailed(from, to, reason string) {
	if m == nil {
		return
	}
	m.conversionFailures.WithLabelValues(from, to, reason).Inc()
}

// RateLookup counts an exchange rate lookup.
func (m *Metrics) RateLookup(source, result string) {
	if m == nil {
		return
	}
	m.rateLookups.WithLabelValues(source, result).Inc()
}

// MessageOutcome counts a scheduled message transition (sent, retry, failed, requeued).
func (m *Metrics) MessageOutcome(outcome string) {
	if m == nil {
		return
	}
	m.messageOutcomes.WithLabelValues(outcome).Inc()
}

// SwitchEvent counts a dead man switch event (reminder, triggered, error).
func (m *Metrics) SwitchEvent(event string) {
	if m == nil {
		return
	}
	m.switchEvents.WithLabelValues(event).Inc()
}

// NetWorthWarning counts an aggregation warning (inconsistent, anomalous).
func (m *Metrics) NetWorthWarning(kind string) {
	if m == nil {
		return
	}
	m.netWorthWarnings.WithLabelValues(kind).Inc()
}

// ObserveRequest records one served HTTP request. route is the registered path pattern.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
