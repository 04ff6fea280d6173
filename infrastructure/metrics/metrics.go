// Package metrics provides Prometheus metrics collection
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quoram/sentryflow/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Detector metrics
	DetectorRunsTotal     *prometheus.CounterVec
	DetectorDuration      *prometheus.HistogramVec
	DetectorTimeoutsTotal *prometheus.CounterVec

	// Aggregation / verdict metrics
	VerdictsTotal      *prometheus.CounterVec
	AggregationLatency prometheus.Histogram

	// Reputation store metrics
	ReputationOpsTotal    *prometheus.CounterVec
	ReputationEntriesOpen prometheus.Gauge

	// Cluster recompute metrics
	ClusterRecomputeTotal    prometheus.Counter
	ClusterRecomputeDuration prometheus.Histogram
	ClusterCommunitiesOpen   prometheus.Gauge

	// Learning bus metrics
	LearningQueueDepth      prometheus.Gauge
	LearningEventsDropped   *prometheus.CounterVec
	LearningEventsPublished *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		// Detector metrics
		DetectorRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detector_runs_total",
				Help: "Total number of detector executions by outcome",
			},
			[]string{"detector", "outcome"},
		),
		DetectorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "detector_duration_seconds",
				Help:    "Detector execution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"detector"},
		),
		DetectorTimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detector_timeouts_total",
				Help: "Total number of detector executions that hit their deadline",
			},
			[]string{"detector"},
		),

		// Aggregation / verdict metrics
		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdicts_total",
				Help: "Total number of aggregated verdicts by risk band and action",
			},
			[]string{"risk_band", "action"},
		),
		AggregationLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aggregation_latency_seconds",
				Help:    "Time spent fusing detector contributions into a verdict",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
			},
		),

		// Reputation store metrics
		ReputationOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reputation_ops_total",
				Help: "Total number of reputation store operations by kind and status",
			},
			[]string{"op", "status"},
		),
		ReputationEntriesOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reputation_entries_open",
				Help: "Current number of tracked reputation entries",
			},
		),

		// Cluster recompute metrics
		ClusterRecomputeTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cluster_recompute_total",
				Help: "Total number of cluster recomputation cycles run",
			},
		),
		ClusterRecomputeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cluster_recompute_duration_seconds",
				Help:    "Duration of a cluster recomputation cycle",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30},
			},
		),
		ClusterCommunitiesOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cluster_communities_open",
				Help: "Current number of detected clusters",
			},
		),

		// Learning bus metrics
		LearningQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "learning_queue_depth",
				Help: "Current number of events buffered in the learning event bus",
			},
		),
		LearningEventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_events_dropped_total",
				Help: "Total number of learning events dropped due to a full queue",
			},
			[]string{"kind"},
		),
		LearningEventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_events_published_total",
				Help: "Total number of learning events published to the bus",
			},
			[]string{"kind"},
		),

		// Service health
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	// Register all collectors
	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.DetectorRunsTotal,
			m.DetectorDuration,
			m.DetectorTimeoutsTotal,
			m.VerdictsTotal,
			m.AggregationLatency,
			m.ReputationOpsTotal,
			m.ReputationEntriesOpen,
			m.ClusterRecomputeTotal,
			m.ClusterRecomputeDuration,
			m.ClusterCommunitiesOpen,
			m.LearningQueueDepth,
			m.LearningEventsDropped,
			m.LearningEventsPublished,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	// Set service info
	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordDetectorRun records the outcome and duration of a single detector execution.
func (m *Metrics) RecordDetectorRun(detector, outcome string, duration time.Duration) {
	m.DetectorRunsTotal.WithLabelValues(detector, outcome).Inc()
	m.DetectorDuration.WithLabelValues(detector).Observe(duration.Seconds())
	if outcome == "timed_out" {
		m.DetectorTimeoutsTotal.WithLabelValues(detector).Inc()
	}
}

// RecordVerdict records the aggregated risk band and action chosen for a request.
func (m *Metrics) RecordVerdict(riskBand, action string, aggregationDuration time.Duration) {
	m.VerdictsTotal.WithLabelValues(riskBand, action).Inc()
	m.AggregationLatency.Observe(aggregationDuration.Seconds())
}

// RecordReputationOp records a reputation store operation (lookup, apply_evidence, decay, promote).
func (m *Metrics) RecordReputationOp(op, status string) {
	m.ReputationOpsTotal.WithLabelValues(op, status).Inc()
}

// SetReputationEntries sets the current number of tracked reputation entries.
func (m *Metrics) SetReputationEntries(count int) {
	m.ReputationEntriesOpen.Set(float64(count))
}

// RecordClusterRecompute records one cluster recomputation cycle.
func (m *Metrics) RecordClusterRecompute(duration time.Duration, communities int) {
	m.ClusterRecomputeTotal.Inc()
	m.ClusterRecomputeDuration.Observe(duration.Seconds())
	m.ClusterCommunitiesOpen.Set(float64(communities))
}

// SetLearningQueueDepth reports the current depth of the learning event bus queue.
func (m *Metrics) SetLearningQueueDepth(depth int) {
	m.LearningQueueDepth.Set(float64(depth))
}

// RecordLearningEventPublished records a successfully enqueued learning event.
func (m *Metrics) RecordLearningEventPublished(kind string) {
	m.LearningEventsPublished.WithLabelValues(kind).Inc()
}

// RecordLearningEventDropped records a learning event dropped due to backpressure.
func (m *Metrics) RecordLearningEventDropped(kind string) {
	m.LearningEventsDropped.WithLabelValues(kind).Inc()
}

// UpdateUptime updates the service uptime
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
