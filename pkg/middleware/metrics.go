package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fundsavy/fundsavy/pkg/fetch"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "fundsavy").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for retrieval duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "fundsavy",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

type metrics struct {
	fetchTotal     *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	staleDiscards  prometheus.Counter
	activeSessions prometheus.Gauge
	liveScreens    prometheus.Gauge
	wsErrors       *prometheus.CounterVec
}

// globalMetrics is the singleton metrics instance.
// Created on first call to Prometheus().
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		fetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetch_total",
			Help:        "Total number of resource retrievals by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetch_duration_seconds",
			Help:        "Resource retrieval duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"outcome"}),

		staleDiscards: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "stale_results_discarded_total",
			Help:        "Retrieval results dropped because their locator was superseded",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of signed-in sessions",
			ConstLabels: config.ConstLabels,
		}),

		liveScreens: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "live_screens",
			Help:        "Number of open live screen connections",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total number of WebSocket errors",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// Prometheus returns retrieval middleware that collects Prometheus metrics.
//
// Metrics collected:
//   - fundsavy_fetch_total: Counter of retrievals by outcome
//   - fundsavy_fetch_duration_seconds: Histogram of retrieval duration
//   - fundsavy_stale_results_discarded_total: Counter of discarded stale results
//   - fundsavy_active_sessions: Gauge of signed-in sessions
//   - fundsavy_live_screens: Gauge of live screen connections
//   - fundsavy_websocket_errors_total: Counter of WebSocket errors
//
// Metrics are registered once per process; options after the first call
// are ignored.
func Prometheus(opts ...MetricsOption) fetch.Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(next fetch.Retriever) fetch.Retriever {
		return fetch.RetrieverFunc(func(ctx context.Context, locator string) ([]byte, error) {
			start := time.Now()
			body, err := next.Retrieve(ctx, locator)

			outcome := outcomeOf(err)
			m.fetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
			m.fetchTotal.WithLabelValues(outcome).Inc()

			return body, err
		})
	}
}

// outcomeOf returns a low-cardinality label for a retrieval result.
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if kind, ok := fetch.KindOf(err); ok {
		return kind.String()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "network"
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordStaleDiscard records a result dropped by the stale-result guard.
func RecordStaleDiscard() {
	if m := current(); m != nil {
		m.staleDiscards.Inc()
	}
}

// RecordSessionStart records a new signed-in session.
func RecordSessionStart() {
	if m := current(); m != nil {
		m.activeSessions.Inc()
	}
}

// RecordSessionEnd records a session being signed out or expiring.
func RecordSessionEnd() {
	if m := current(); m != nil {
		m.activeSessions.Dec()
	}
}

// RecordScreenOpen records a live screen connection being opened.
func RecordScreenOpen() {
	if m := current(); m != nil {
		m.liveScreens.Inc()
	}
}

// RecordScreenClose records a live screen connection being closed.
func RecordScreenClose() {
	if m := current(); m != nil {
		m.liveScreens.Dec()
	}
}

// RecordWebSocketError records a WebSocket error.
func RecordWebSocketError(errorType string) {
	if m := current(); m != nil {
		m.wsErrors.WithLabelValues(errorType).Inc()
	}
}

func current() *metrics {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	return globalMetrics
}
