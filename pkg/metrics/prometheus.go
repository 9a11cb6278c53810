// Package metrics provides Prometheus metrics for the arena service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the arena service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Relay Metrics - fan-out health
	relayConnections        prometheus.Gauge
	relaySessions           prometheus.Gauge
	relayDegraded           prometheus.Gauge
	relayMessages           *prometheus.CounterVec
	relayDeliveryFailures   prometheus.Counter
	relayEvictions          prometheus.Counter
	relaySubscriptionErrors prometheus.Counter
	relayBroadcastLatency   prometheus.Histogram

	// Publisher Metrics
	eventsPublished     *prometheus.CounterVec
	eventsPublishErrors *prometheus.CounterVec

	// Battle Metrics
	battlesResolved *prometheus.CounterVec
	battlesRejected *prometheus.CounterVec

	// Write Path Metrics
	benchmarksRecorded   prometheus.Counter
	submissionsDuplicate prometheus.Counter

	// Series Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors *prometheus.CounterVec
	seriesWrites       prometheus.Counter
	seriesWriteErrors  prometheus.Counter
	workerCount        prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemCPUPercent     prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "arena",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.relayConnections = m.gauge("relay_connections", "Number of live client stream connections")
	m.relaySessions = m.gauge("relay_sessions", "Number of active upstream bus subscriptions (0 or 1)")
	m.relayDegraded = m.gauge("relay_degraded", "1 when the relay cannot resume its bus subscription")
	m.relayMessages = m.counterVec("relay_messages_total", "Messages relayed from the bus, by channel", "channel")
	m.relayDeliveryFailures = m.counter("relay_delivery_failures_total", "Per-connection delivery failures")
	m.relayEvictions = m.counter("relay_evictions_total", "Connections evicted after a failed delivery")
	m.relaySubscriptionErrors = m.counter("relay_subscription_errors_total", "Bus subscription failures seen by the relay")
	m.relayBroadcastLatency = m.histogram("relay_broadcast_latency_milliseconds", "Time to hand one message to every live connection")

	m.eventsPublished = m.counterVec("events_published_total", "Envelopes published to the bus, by channel", "channel")
	m.eventsPublishErrors = m.counterVec("events_publish_errors_total", "Failed bus publishes, by channel", "channel")

	m.battlesResolved = m.counterVec("battles_resolved_total", "Battles resolved, by mode and result", "mode", "result")
	m.battlesRejected = m.counterVec("battles_rejected_total", "Battles rejected before resolution, by reason", "reason")

	m.benchmarksRecorded = m.counter("benchmarks_recorded_total", "Benchmarks persisted")
	m.submissionsDuplicate = m.counter("submissions_duplicate_total", "Benchmark submissions ignored as duplicates")

	m.queueSize = m.gauge("series_queue_size", "Points waiting in the series queue")
	m.queueCapacity = m.gauge("series_queue_capacity", "Maximum series queue capacity")
	m.queueEnqueueErrors = m.counterVec("series_queue_enqueue_errors_total", "Series points dropped at enqueue, by reason", "reason")
	m.seriesWrites = m.counter("series_writes_total", "Points appended to the series store")
	m.seriesWriteErrors = m.counter("series_write_errors_total", "Failed series store appends")
	m.workerCount = m.gauge("series_worker_count", "Number of series writer workers")

	m.httpRequests = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemCPUPercent = m.gauge("system_cpu_percent", "Host CPU utilisation in percent")
}

// Relay Metrics Functions.

// UpdateRelayConnections sets the number of live stream connections.
func UpdateRelayConnections(count int) {
	globalManager.relayConnections.Set(float64(count))
}

// UpdateRelaySessions sets the number of active bus subscriptions.
func UpdateRelaySessions(count int) {
	globalManager.relaySessions.Set(float64(count))
}

// UpdateRelayDegraded flags whether the relay is degraded.
func UpdateRelayDegraded(degraded bool) {
	v := 0.0
	if degraded {
		v = 1
	}
	globalManager.relayDegraded.Set(v)
}

// RecordRelayMessage increments the relayed message counter for a channel.
func RecordRelayMessage(channel string) {
	globalManager.relayMessages.WithLabelValues(channel).Inc()
}

// RecordRelayDeliveryFailure increments the delivery failure counter.
func RecordRelayDeliveryFailure() {
	globalManager.relayDeliveryFailures.Inc()
}

// RecordRelayEviction increments the eviction counter.
func RecordRelayEviction() {
	globalManager.relayEvictions.Inc()
}

// RecordRelaySubscriptionError increments the subscription error counter.
func RecordRelaySubscriptionError() {
	globalManager.relaySubscriptionErrors.Inc()
}

// RecordRelayBroadcastLatency records how long one broadcast took.
func RecordRelayBroadcastLatency(latencyMs float64) {
	globalManager.relayBroadcastLatency.Observe(latencyMs)
}

// Publisher Metrics Functions.

// RecordEventPublished increments the published counter for a channel.
func RecordEventPublished(channel string) {
	globalManager.eventsPublished.WithLabelValues(channel).Inc()
}

// RecordEventPublishError increments the publish error counter for a channel.
func RecordEventPublishError(channel string) {
	globalManager.eventsPublishErrors.WithLabelValues(channel).Inc()
}

// Battle Metrics Functions.

// RecordBattleResolved counts a resolved battle. Result is "win" or "tie".
func RecordBattleResolved(mode, result string) {
	globalManager.battlesResolved.WithLabelValues(mode, result).Inc()
}

// RecordBattleRejected counts a battle rejected before resolution.
func RecordBattleRejected(reason string) {
	globalManager.battlesRejected.WithLabelValues(reason).Inc()
}

// Write Path Metrics Functions.

// RecordBenchmarkRecorded increments the persisted benchmark counter.
func RecordBenchmarkRecorded() {
	globalManager.benchmarksRecorded.Inc()
}

// RecordSubmissionDuplicate increments the duplicate submission counter.
func RecordSubmissionDuplicate() {
	globalManager.submissionsDuplicate.Inc()
}

// Series Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError counts a point dropped at enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordSeriesWrite increments the series append counter.
func RecordSeriesWrite() {
	globalManager.seriesWrites.Inc()
}

// RecordSeriesWriteError increments the series append error counter.
func RecordSeriesWriteError() {
	globalManager.seriesWriteErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the heap memory in use in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// UpdateSystemCPUPercent sets the host CPU utilisation.
func UpdateSystemCPUPercent(percent float64) {
	globalManager.systemCPUPercent.Set(percent)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
