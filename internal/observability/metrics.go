// Package observability exposes Prometheus metrics for the ingestion
// pipeline, the alarm ledger, and the push channels.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "alarmd_"

// Metrics bundles the registered collectors. All components share one
// instance; tests build their own so registries never collide.
type Metrics struct {
	registry *prometheus.Registry

	BatchesTotal     *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
	UpdatesTotal     prometheus.Counter
	MalformedUpdates prometheus.Counter
	TransitionsTotal *prometheus.CounterVec
	Acknowledgments  prometheus.Counter
	StatusPublishes  *prometheus.CounterVec
	StreamClients    prometheus.Gauge
	DroppedFrames    prometheus.Counter
}

// NewMetrics builds and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "batches_total",
			Help: "Telemetry batches processed, by result",
		},
		[]string{"result"},
	)
	m.BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "batch_duration_seconds",
			Help:    "Time spent processing one telemetry batch",
			Buckets: prometheus.DefBuckets,
		},
	)
	m.UpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "updates_total",
			Help: "Individual address updates applied",
		},
	)
	m.MalformedUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "malformed_updates_total",
			Help: "Batch elements skipped because they failed to parse",
		},
	)
	m.TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "transitions_total",
			Help: "Rule transitions recorded, by direction",
		},
		[]string{"direction"},
	)
	m.Acknowledgments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "acknowledgments_total",
			Help: "Global acknowledge operations performed",
		},
	)
	m.StatusPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "status_publishes_total",
			Help: "Status roll-up publishes, by result",
		},
		[]string{"result"},
	)
	m.StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "stream_clients",
			Help: "Currently connected stream subscribers",
		},
	)
	m.DroppedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "dropped_frames_total",
			Help: "Snapshot frames dropped because a subscriber was slow",
		},
	)

	m.registry.MustRegister(
		m.BatchesTotal,
		m.BatchDuration,
		m.UpdatesTotal,
		m.MalformedUpdates,
		m.TransitionsTotal,
		m.Acknowledgments,
		m.StatusPublishes,
		m.StreamClients,
		m.DroppedFrames,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Result label values shared by the counter vecs.
const (
	ResultOK    = "ok"
	ResultError = "error"

	DirectionFulfilled   = "fulfilled"
	DirectionUnfulfilled = "unfulfilled"
)
