// Package metrics exposes orchestrator activity as Prometheus collectors.
// Every cluster owns its own registry so several clusters in one test
// binary never collide on registration.
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

const namespace = "instamo"

// Metrics holds all Prometheus metrics for one cluster
type Metrics struct {
	registry *prometheus.Registry

	// Process metrics
	ProcessesSpawnedTotal *prometheus.CounterVec
	ProcessExitsTotal     *prometheus.CounterVec
	ProcessesRunning      *prometheus.GaugeVec

	// Log drain metrics
	DrainBytesTotal   *prometheus.CounterVec
	DrainFlushesTotal *prometheus.CounterVec
	DrainErrorsTotal  *prometheus.CounterVec

	// Port allocation metrics
	PortAttemptsTotal *prometheus.CounterVec

	// Lifecycle metrics
	ClusterState  prometheus.Gauge
	StartDuration prometheus.Histogram
	InitDuration  prometheus.Histogram
}

// NewMetrics creates a registry and registers all metrics on it
func NewMetrics(instance string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"instance": instance}

	m := &Metrics{
		registry: reg,

		ProcessesSpawnedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "process",
			Name:        "spawned_total",
			Help:        "Total number of role processes spawned",
			ConstLabels: labels,
		}, []string{"role"}),
		ProcessExitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "process",
			Name:        "exits_total",
			Help:        "Total number of role process exits by exit code",
			ConstLabels: labels,
		}, []string{"role", "code"}),
		ProcessesRunning: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "process",
			Name:        "running",
			Help:        "Number of role processes currently running",
			ConstLabels: labels,
		}, []string{"role"}),

		DrainBytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "drain",
			Name:        "bytes_total",
			Help:        "Total bytes copied from process streams into log files",
			ConstLabels: labels,
		}, []string{"role", "stream"}),
		DrainFlushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "drain",
			Name:        "flushes_total",
			Help:        "Total number of log file flushes",
			ConstLabels: labels,
		}, []string{"role", "stream"}),
		DrainErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "drain",
			Name:        "errors_total",
			Help:        "Total number of log drain I/O errors",
			ConstLabels: labels,
		}, []string{"role", "stream", "op"}),

		PortAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ports",
			Name:        "attempts_total",
			Help:        "Total number of port bind attempts by outcome",
			ConstLabels: labels,
		}, []string{"result"}),

		ClusterState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "cluster",
			Name:        "state",
			Help:        "Cluster lifecycle state (0 not started, 1 running, 2 stopped)",
			ConstLabels: labels,
		}),
		StartDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "cluster",
			Name:        "start_duration_seconds",
			Help:        "Histogram of cluster start durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		InitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "cluster",
			Name:        "init_duration_seconds",
			Help:        "Histogram of initializer run durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	reg.MustRegister(collectors.NewGoCollector())

	return m
}

// Registry returns the cluster's registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ProcessSpawned records a role process start
func (m *Metrics) ProcessSpawned(role string) {
	m.ProcessesSpawnedTotal.WithLabelValues(role).Inc()
	m.ProcessesRunning.WithLabelValues(role).Inc()
}

// ProcessExited records a role process exit
func (m *Metrics) ProcessExited(role string, code int) {
	m.ProcessExitsTotal.WithLabelValues(role, strconv.Itoa(code)).Inc()
	m.ProcessesRunning.WithLabelValues(role).Dec()
}

// PortAttempt records one port bind attempt
func (m *Metrics) PortAttempt(_ int, ok bool) {
	result := "busy"
	if ok {
		result = "ok"
	}
	m.PortAttemptsTotal.WithLabelValues(result).Inc()
}

// SetState records the lifecycle state as its ordinal
func (m *Metrics) SetState(ordinal int) {
	m.ClusterState.Set(float64(ordinal))
}

// ObserveStart records how long a successful start took
func (m *Metrics) ObserveStart(d time.Duration) {
	m.StartDuration.Observe(d.Seconds())
}

// ObserveInit records how long the initializer ran
func (m *Metrics) ObserveInit(d time.Duration) {
	m.InitDuration.Observe(d.Seconds())
}

// DrainBytes implements drain.Observer
func (m *Metrics) DrainBytes(role, stream string, n int) {
	m.DrainBytesTotal.WithLabelValues(role, stream).Add(float64(n))
}

// DrainFlush implements drain.Observer
func (m *Metrics) DrainFlush(role, stream string) {
	m.DrainFlushesTotal.WithLabelValues(role, stream).Inc()
}

// DrainError implements drain.Observer
func (m *Metrics) DrainError(role, stream, op string) {
	m.DrainErrorsTotal.WithLabelValues(role, stream, op).Inc()
}
