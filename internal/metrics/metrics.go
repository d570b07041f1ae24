// Package metrics provides Prometheus instrumentation and daily decision
// statistics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smart_search"

// Prefetch outcomes.
const (
	PrefetchHit     = "hit"
	PrefetchMiss    = "miss"
	PrefetchError   = "error"
	PrefetchSkipped = "skipped"
)

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	registry *prometheus.Registry

	decisions      *prometheus.CounterVec   // labels: mode, enabled, reason
	categories     *prometheus.CounterVec   // labels: category
	decisionScore  prometheus.Histogram     //
	prefetches     *prometheus.CounterVec   // labels: outcome
	prefetchTime   prometheus.Histogram     //
	busPublished   *prometheus.CounterVec   // labels: topic, status
	busLatency     *prometheus.HistogramVec // labels: topic
	httpRequests   *prometheus.CounterVec   // labels: method, route, status
	httpDuration   *prometheus.HistogramVec // labels: method, route
	httpInFlight   prometheus.Gauge
	settingsUpdate prometheus.Counter
}

// New creates metrics on a fresh registry that also carries the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return MustNewMetrics(reg)
}

// MustNewMetrics registers the service collectors with reg. Collectors that
// are already registered are reused; any other registration error panics.
func MustNewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{registry: reg}

	m.decisions = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "filter",
		Name:      "decisions_total",
		Help:      "Search decisions by mode, outcome, and reason.",
	}, []string{"mode", "enabled", "reason"}))

	m.categories = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "filter",
		Name:      "categories_total",
		Help:      "Query categories assigned by the classifier.",
	}, []string{"category"}))

	m.decisionScore = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "filter",
		Name:      "decision_score",
		Help:      "Score of auto-mode decisions that reached scoring.",
		Buckets:   prometheus.LinearBuckets(-3, 1, 14),
	}))

	m.prefetches = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "prefetch",
		Name:      "requests_total",
		Help:      "Prefetch lookups by outcome.",
	}, []string{"outcome"}))

	m.prefetchTime = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "prefetch",
		Name:      "duration_seconds",
		Help:      "Time spent prefetching search results.",
		Buckets:   prometheus.DefBuckets,
	}))

	m.busPublished = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "published_total",
		Help:      "Events published by topic and status.",
	}, []string{"topic", "status"}))

	m.busLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "publish_duration_seconds",
		Help:      "Publish latency by topic.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"topic"}))

	m.httpRequests = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route, and status.",
	}, []string{"method", "route", "status"}))

	m.httpDuration = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"}))

	m.httpInFlight = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "HTTP requests currently being served.",
	}))

	m.settingsUpdate = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "updates_total",
		Help:      "Successful runtime settings updates.",
	}))

	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDecision counts one filter decision. Scored reasons collapse into a
// single label value.
func (m *Metrics) RecordDecision(mode string, enabled bool, reason, category string, score int) {
	if m == nil {
		return
	}
	label := ReasonLabel(reason)
	m.decisions.WithLabelValues(mode, strconv.FormatBool(enabled), label).Inc()
	m.categories.WithLabelValues(category).Inc()
	if label == ReasonScored {
		m.decisionScore.Observe(float64(score))
	}
}

// RecordPrefetch counts one prefetch lookup.
func (m *Metrics) RecordPrefetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.prefetches.WithLabelValues(outcome).Inc()
	if outcome != PrefetchSkipped {
		m.prefetchTime.Observe(d.Seconds())
	}
}

// RecordBusPublish implements bus.MetricsRecorder.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.busPublished.WithLabelValues(topic, status).Inc()
	m.busLatency.WithLabelValues(topic).Observe(latency.Seconds())
}

// RecordSettingsUpdate counts a successful settings update.
func (m *Metrics) RecordSettingsUpdate() {
	if m == nil {
		return
	}
	m.settingsUpdate.Inc()
}

// ReasonScored is the label for decisions that went through scoring.
const ReasonScored = "scored"

// ReasonLabel maps a decision reason to a bounded label value.
func ReasonLabel(reason string) string {
	if strings.HasPrefix(reason, "score=") {
		return ReasonScored
	}
	if reason == "" {
		return "unknown"
	}
	return reason
}
