// Package metrics exposes request and engine metrics in the Prometheus
// text format.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eigerco/pebblekv/internal/stats"
	"github.com/eigerco/pebblekv/pkg/log"
)

const namespace = "pebblekv"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeClosed   = "closed"
	OutcomeError    = "error"
)

// StatsSource provides the engine report scraped on every collection.
type StatsSource interface {
	Stats() (stats.Report, error)
}

// Metrics owns a private registry so several instances can live in one
// process.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New registers the request metrics, the Go runtime and process collectors
// and, when source is not nil, the engine collector.
func New(source StatsSource) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if source != nil {
		m.registry.MustRegister(newEngineCollector(source, log.Store))
	}
	return m
}

// Observe records one finished request.
func (m *Metrics) Observe(op, outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for callers that want to add their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// engineCollector turns the numeric part of the stats report into gauges.
type engineCollector struct {
	source StatsSource
	desc   *prometheus.Desc
	logger zerolog.Logger
}

func newEngineCollector(source StatsSource, logger zerolog.Logger) *engineCollector {
	return &engineCollector{
		source: source,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine", "property"),
			"Numeric engine property, labeled by name.",
			[]string{"name"}, nil,
		),
		logger: logger,
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect skips the engine entirely when the report is unavailable, e.g.
// during shutdown, so the scrape itself still succeeds.
func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	r, err := c.source.Stats()
	if err != nil {
		c.logger.Debug().Err(err).Msg("engine metrics skipped")
		return
	}
	for name, v := range r.Numeric() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, v, strings.ReplaceAll(name, "-", "_"))
	}
}
