// Package metrics defines the Prometheus collectors exported by the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mpesa_insights"

// Ingestion outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds every collector. Build it once per registry.
type Metrics struct {
	Ingestions           *prometheus.CounterVec
	IngestDuration       *prometheus.HistogramVec
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	TasksInFlight        prometheus.Gauge
	ActiveSessions       prometheus.Gauge
	ClassifiedByType     *prometheus.CounterVec
	AnalyticsCacheHits   prometheus.Counter
	AnalyticsCacheMisses prometheus.Counter
	registry             prometheus.Gatherer
}

// New registers the collectors on reg. reg must also be a Gatherer (as
// *prometheus.Registry is) for Handler to serve it.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		Ingestions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Statement ingestions by source kind and outcome.",
		}, []string{"source", "outcome", "error_kind"}),
		IngestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent ingesting one statement.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		TasksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Background ingestion tasks currently running.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
		ClassifiedByType: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classified_transactions_total",
			Help:      "Transactions classified, by transaction type.",
		}, []string{"type"}),
		AnalyticsCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_cache_hits_total",
			Help:      "Analytics results served from cache.",
		}),
		AnalyticsCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_cache_misses_total",
			Help:      "Analytics results computed on demand.",
		}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.registry = g
	}
	return m
}

// NewNop returns collectors registered on a private registry, for tests and
// for running with metrics disabled.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveIngest records one finished ingestion.
func (m *Metrics) ObserveIngest(source, errorKind string, d time.Duration) {
	outcome := OutcomeSuccess
	if errorKind != "" {
		outcome = OutcomeFailure
	}
	m.Ingestions.WithLabelValues(source, outcome, errorKind).Inc()
	m.IngestDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveClassified adds per-type classification counts.
func (m *Metrics) ObserveClassified(byType map[string]int) {
	for t, n := range byType {
		m.ClassifiedByType.WithLabelValues(t).Add(float64(n))
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// ObserveAnalyticsCache counts one analytics cache lookup.
func (m *Metrics) ObserveAnalyticsCache(hit bool) {
	if hit {
		m.AnalyticsCacheHits.Inc()
		return
	}
	m.AnalyticsCacheMisses.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
