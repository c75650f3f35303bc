// Package metrics provides Prometheus metrics for the cadence scheduling service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultSampleInterval = 10 * time.Second

// Manager manages all Prometheus metrics for the cadence service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	enabled        bool
	sampleInterval time.Duration
	node           string
	registry       prometheus.Registerer

	// Engine metrics
	attemptsProcessed    prometheus.Counter
	attemptsDuplicate    prometheus.Counter
	attemptLatency       prometheus.Histogram
	sessionsProcessed    prometheus.Counter
	flowTransitions      *prometheus.CounterVec
	momentumTransitions  *prometheus.CounterVec
	schedulingDecisions  *prometheus.CounterVec
	schedulingErrors     *prometheus.CounterVec
	activeUsers          prometheus.Gauge
	observerNotification prometheus.Counter

	// Checkpoint metrics
	checkpointSaves   *prometheus.CounterVec
	checkpointLoads   *prometheus.CounterVec
	checkpointLatency *prometheus.HistogramVec

	// Queue metrics
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueue     prometheus.Counter
	queueDequeue     prometheus.Counter
	queueEnqueueErrs prometheus.Counter

	// Worker metrics
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	workerTimeouts          prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var (
	global   atomic.Pointer[Manager]             //nolint:gochecknoglobals // process-wide manager
	registry atomic.Pointer[prometheus.Registry] //nolint:gochecknoglobals // registry served on /metrics
)

func init() { //nolint:gochecknoinits // metrics are usable before Configure runs
	Configure()
}

// Configure rebuilds the global manager on a fresh registry. It is meant to
// run once at startup, before anything holds the result of Global.
func Configure(opts ...Option) *Manager {
	reg := prometheus.NewRegistry()
	m := NewManager(append(opts, WithRegistry(reg))...)
	registry.Store(reg)
	global.Store(m)
	return m
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "cadence",
		subsystem:      "scheduler",
		latencyBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		enabled:        true,
		sampleInterval: defaultSampleInterval,
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Global returns the process-wide manager.
func Global() *Manager {
	return global.Load()
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	var labels prometheus.Labels
	if m.node != "" {
		labels = prometheus.Labels{"node": m.node}
	}

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: labels,
		})
	}
	histogram := func(name, help string, buckets []float64) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: labels,
		})
	}
	counterVec := func(name, help string, keys ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: labels,
		}, keys)
	}
	histogramVec := func(name, help string, keys ...string) *prometheus.HistogramVec {
		return auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.latencyBuckets, ConstLabels: labels,
		}, keys)
	}

	// Engine metrics
	m.attemptsProcessed = counter("attempts_processed_total", "Total number of attempts processed by user engines")
	m.attemptsDuplicate = counter("attempts_duplicate_total", "Total number of duplicate attempts dropped")
	m.attemptLatency = histogram("attempt_latency_milliseconds", "Attempt processing latency in milliseconds", m.latencyBuckets)
	m.sessionsProcessed = counter("sessions_processed_total", "Total number of session summaries processed")
	m.flowTransitions = counterVec("flow_transitions_total", "Committed flow state transitions", "from", "to")
	m.momentumTransitions = counterVec("momentum_transitions_total", "Committed momentum type transitions", "from", "to")
	m.schedulingDecisions = counterVec("scheduling_decisions_total", "Scheduling calls by path", "path")
	m.schedulingErrors = counterVec("scheduling_errors_total", "Adaptive scheduling failures replaced by the fallback", "reason")
	m.activeUsers = gauge("active_users", "Number of user engines held in memory")
	m.observerNotification = counter("observer_notifications_total", "Snapshots delivered to observers")

	// Checkpoint metrics
	m.checkpointSaves = counterVec("checkpoint_saves_total", "Checkpoint saves by kind and result", "kind", "result")
	m.checkpointLoads = counterVec("checkpoint_loads_total", "Checkpoint loads by kind and result", "kind", "result")
	m.checkpointLatency = histogramVec("checkpoint_latency_milliseconds", "Checkpoint store latency in milliseconds", "kind", "op")

	// Queue metrics
	m.queueSize = gauge("queue_size", "Current number of queued jobs across workers")
	m.queueCapacity = gauge("queue_capacity", "Configured per-worker queue capacity")
	m.queueEnqueue = counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeue = counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrs = counter("queue_enqueue_errors_total", "Total number of rejected enqueues")

	// Worker metrics
	m.workerCount = gauge("worker_count", "Number of partition workers")
	m.workerProcessingLatency = histogram("worker_processing_latency_milliseconds", "Worker job latency in milliseconds", m.latencyBuckets)
	m.workerErrors = counter("worker_errors_total", "Total number of jobs that panicked or failed")
	m.workerTimeouts = counter("worker_timeouts_total", "Total number of jobs that exceeded their deadline")

	// HTTP metrics
	m.httpRequests = counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	// Error metrics
	m.errorRateByComponent = counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")

	// System metrics
	m.systemMemoryUsage = gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordAttemptProcessed counts an attempt and observes its latency.
func (m *Manager) RecordAttemptProcessed(latencyMs float64) {
	if !m.enabled {
		return
	}
	m.attemptsProcessed.Inc()
	m.attemptLatency.Observe(latencyMs)
}

// RecordSessionProcessed counts a processed session summary.
func (m *Manager) RecordSessionProcessed() {
	if !m.enabled {
		return
	}
	m.sessionsProcessed.Inc()
}

// RecordFlowTransition counts a committed flow transition.
func (m *Manager) RecordFlowTransition(from, to string) {
	if !m.enabled {
		return
	}
	m.flowTransitions.WithLabelValues(from, to).Inc()
}

// RecordMomentumTransition counts a committed momentum transition.
func (m *Manager) RecordMomentumTransition(from, to string) {
	if !m.enabled {
		return
	}
	m.momentumTransitions.WithLabelValues(from, to).Inc()
}

// RecordSchedulingDecision counts a scheduling call by path (adaptive or fallback).
func (m *Manager) RecordSchedulingDecision(path string) {
	if !m.enabled {
		return
	}
	m.schedulingDecisions.WithLabelValues(path).Inc()
}

// RecordSchedulingError counts an adaptive failure by reason.
func (m *Manager) RecordSchedulingError(reason string) {
	if !m.enabled {
		return
	}
	m.schedulingErrors.WithLabelValues(reason).Inc()
}

// RecordObserverNotification counts a snapshot delivery.
func (m *Manager) RecordObserverNotification() {
	if !m.enabled {
		return
	}
	m.observerNotification.Inc()
}

// RecordAttemptDuplicate increments the duplicate attempts counter.
func RecordAttemptDuplicate() {
	if m := global.Load(); m.enabled {
		m.attemptsDuplicate.Inc()
	}
}

// UpdateActiveUsers sets the number of engines held in memory.
func UpdateActiveUsers(count int) {
	if m := global.Load(); m.enabled {
		m.activeUsers.Set(float64(count))
	}
}

// RecordCheckpointSave counts a checkpoint save; result is "ok" or "error".
func RecordCheckpointSave(kind, result string) {
	if m := global.Load(); m.enabled {
		m.checkpointSaves.WithLabelValues(kind, result).Inc()
	}
}

// RecordCheckpointLoad counts a checkpoint load; result is "hit", "miss" or "error".
func RecordCheckpointLoad(kind, result string) {
	if m := global.Load(); m.enabled {
		m.checkpointLoads.WithLabelValues(kind, result).Inc()
	}
}

// RecordCheckpointLatency records store latency for a checkpoint kind and op.
func RecordCheckpointLatency(kind, op string, latencyMs float64) {
	if m := global.Load(); m.enabled {
		m.checkpointLatency.WithLabelValues(kind, op).Observe(latencyMs)
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if m := global.Load(); m.enabled {
		m.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if m := global.Load(); m.enabled {
		m.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if m := global.Load(); m.enabled {
		m.queueEnqueue.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if m := global.Load(); m.enabled {
		m.queueDequeue.Inc()
	}
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if m := global.Load(); m.enabled {
		m.queueEnqueueErrs.Inc()
	}
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	if m := global.Load(); m.enabled {
		m.workerCount.Set(float64(count))
	}
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if m := global.Load(); m.enabled {
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if m := global.Load(); m.enabled {
		m.workerErrors.Inc()
	}
}

// RecordWorkerTimeout increments the worker timeout counter.
func RecordWorkerTimeout() {
	if m := global.Load(); m.enabled {
		m.workerTimeouts.Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := global.Load(); m.enabled {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m := global.Load(); m.enabled {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if m := global.Load(); m.enabled {
		m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if m := global.Load(); m.enabled {
		m.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if m := global.Load(); m.enabled {
		m.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if m := global.Load(); m.enabled {
		m.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the registry the global manager records on.
func GetRegistry() *prometheus.Registry {
	return registry.Load()
}

// SampleInterval returns how often runtime gauges should be sampled.
func (m *Manager) SampleInterval() time.Duration {
	return m.sampleInterval
}
