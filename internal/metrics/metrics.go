package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace for all metrics
const namespace = "influxfeed"

// Collector provides a central place for all pipeline metrics.
type Collector struct {
	LinesRead     prometheus.Counter
	PointsParsed  prometheus.Counter
	ParseRejects  prometheus.Counter
	PointsWritten prometheus.Counter
	BatchesSent   prometheus.Counter
	BytesSent     prometheus.Counter
	WriteRetries  prometheus.Counter
	WriteFailures *prometheus.CounterVec
	FlushDuration prometheus.Histogram
	CursorCommits prometheus.Counter

	registry *prometheus.Registry
}

// NewCollector creates a new metrics collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{registry: registry}

	c.LinesRead = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reader",
		Name:      "lines_total",
		Help:      "Total number of lines read from input files",
	})
	c.PointsParsed = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "parser",
		Name:      "points_total",
		Help:      "Total number of lines successfully parsed into points",
	})
	c.ParseRejects = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "parser",
		Name:      "rejects_total",
		Help:      "Total number of lines rejected by the parser",
	})
	c.PointsWritten = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "points_total",
		Help:      "Total number of points delivered to the database",
	})
	c.BatchesSent = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "batches_total",
		Help:      "Total number of batches delivered to the database",
	})
	c.BytesSent = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "bytes_total",
		Help:      "Total uncompressed payload bytes delivered to the database",
	})
	c.WriteRetries = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "retries_total",
		Help:      "Total number of write retries after transient failures",
	})
	c.WriteFailures = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "failures_total",
		Help:      "Total number of failed write requests by kind",
	}, []string{"kind"})
	c.FlushDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "flush_duration_seconds",
		Help:      "Time taken to deliver one batch, including retries",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})
	c.CursorCommits = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cursor",
		Name:      "commits_total",
		Help:      "Total number of cursor commits",
	})

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
