// Package metrics provides Prometheus metrics for the write pipeline and its
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/docgate/core/events"
	"github.com/artpar/docgate/core/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docgate"

// Collector holds all Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Pipeline metrics
	BatchesTotal      *prometheus.CounterVec
	BatchDuration     *prometheus.HistogramVec
	DocumentsTotal    *prometheus.CounterVec
	PersistenceErrors *prometheus.CounterVec
	HookFailures      *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector on its own registry, with Go runtime and process
// collectors included.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c := NewWithRegistry(reg)
	c.registry = reg
	return c
}

// NewWithRegistry registers the metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of write requests processed",
			},
			[]string{"method", "resource", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "resource"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),

		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of insert batches by result",
			},
			[]string{"resource", "result"},
		),
		BatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Time spent resolving, validating and persisting a batch",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"resource"},
		),
		DocumentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_total",
				Help:      "Submitted documents by outcome",
			},
			[]string{"resource", "outcome"},
		),
		PersistenceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persistence_errors_total",
				Help:      "Fatal storage failures during a batch",
			},
			[]string{"resource"},
		),
		HookFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_failures_total",
				Help:      "Hook errors by lifecycle point",
			},
			[]string{"resource", "point"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// Handler serves the collector's registry. Collectors built with
// NewWithRegistry fall back to the default gatherer.
func (c *Collector) Handler() http.Handler {
	if c.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRequest records one finished HTTP request.
func (c *Collector) ObserveRequest(method, resource string, status int, d time.Duration) {
	c.RequestsTotal.WithLabelValues(method, resource, StatusClass(status)).Inc()
	c.RequestDuration.WithLabelValues(method, resource).Observe(d.Seconds())
}

// ConfigReloaded records a reload attempt.
func (c *Collector) ConfigReloaded(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

// BatchCompleted implements pipeline.Metrics.
func (c *Collector) BatchCompleted(resource, result string, d time.Duration) {
	c.BatchesTotal.WithLabelValues(resource, result).Inc()
	c.BatchDuration.WithLabelValues(resource).Observe(d.Seconds())
}

// DocumentAccepted implements pipeline.Metrics.
func (c *Collector) DocumentAccepted(resource string) {
	c.DocumentsTotal.WithLabelValues(resource, "accepted").Inc()
}

// DocumentRejected implements pipeline.Metrics.
func (c *Collector) DocumentRejected(resource string) {
	c.DocumentsTotal.WithLabelValues(resource, "rejected").Inc()
}

// PersistenceFailed implements pipeline.Metrics.
func (c *Collector) PersistenceFailed(resource string) {
	c.PersistenceErrors.WithLabelValues(resource).Inc()
}

// HookFailed implements pipeline.Metrics.
func (c *Collector) HookFailed(resource string, point events.Point) {
	c.HookFailures.WithLabelValues(resource, string(point)).Inc()
}

// StatusClass buckets a status code as 2xx, 4xx, ... to bound cardinality.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

var _ pipeline.Metrics = (*Collector)(nil)
