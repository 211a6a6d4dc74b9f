// Package telemetry exposes the engine's own operational metrics via
// Prometheus. These describe the collection machinery, not the collected
// hardware readings.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boardscout/boardscout/pkg/metric"
)

// Metrics bundles the engine's Prometheus instruments on a dedicated
// registry.
type Metrics struct {
	registry *prometheus.Registry

	collections *prometheus.CounterVec
	skips       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	failures    *prometheus.GaugeVec
}

// New creates the instruments and registers them together with the standard
// process and Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		collections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardscout_collections_total",
			Help: "Collection runs by module and status.",
		}, []string{"module", "status"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardscout_collection_skips_total",
			Help: "Ticks skipped because the module was in backoff.",
		}, []string{"module"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boardscout_collection_duration_seconds",
			Help:    "Wall time of one collection run.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"module"}),
		failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "boardscout_consecutive_failures",
			Help: "Current consecutive failure count per module.",
		}, []string{"module"}),
	}

	m.registry.MustRegister(
		m.collections,
		m.skips,
		m.duration,
		m.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveResult records one finished collection run.
func (m *Metrics) ObserveResult(res metric.CollectionResult, elapsed time.Duration, consecutiveFailures int) {
	m.collections.WithLabelValues(res.ModuleID, string(res.Status)).Inc()
	m.duration.WithLabelValues(res.ModuleID).Observe(elapsed.Seconds())
	m.failures.WithLabelValues(res.ModuleID).Set(float64(consecutiveFailures))
}

// ObserveSkip records a tick gated by backoff.
func (m *Metrics) ObserveSkip(moduleID string) {
	m.skips.WithLabelValues(moduleID).Inc()
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
