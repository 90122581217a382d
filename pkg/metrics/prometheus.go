// Package metrics provides Prometheus metrics for the stadium service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Feed
	feedPolls         *prometheus.CounterVec
	feedFetchLatency  *prometheus.HistogramVec
	snapshotsRejected *prometheus.CounterVec
	trackedContests   prometheus.Gauge

	// Events and classification
	eventsDetected         *prometheus.CounterVec
	celebrationsClassified *prometheus.CounterVec
	manualTriggers         *prometheus.CounterVec

	// Dispatch
	dispatches         *prometheus.CounterVec
	dispatchSuppressed prometheus.Counter
	sinkOutcomes       *prometheus.CounterVec
	sinkLatency        *prometheus.HistogramVec
	sinkBreakerState   *prometheus.GaugeVec
	laneCount          prometheus.Gauge

	// Broadcast hub
	hubSubscribers prometheus.Gauge
	hubMessages    *prometheus.CounterVec
	hubRemovals    *prometheus.CounterVec

	// Health
	degraded *prometheus.GaugeVec

	// History
	historyWrites *prometheus.CounterVec

	// Queue
	queueSize          *prometheus.GaugeVec
	queueEnqueued      *prometheus.CounterVec
	queueDequeued      *prometheus.CounterVec
	queueEnqueueErrors *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
	processCPUPercent    prometheus.Gauge
	processRSS           prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the process-wide collectors on a fresh registry with
// opts applied. Call it once at startup, before anything records a metric or
// serves GetRegistry.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "stadium",
		subsystem:        "core",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.feedPolls = auto.NewCounterVec(m.counterOpts("feed_polls_total",
		"Snapshot polls by league and result"), []string{"league", "result"})
	m.feedFetchLatency = auto.NewHistogramVec(m.histogramOpts("feed_fetch_latency_milliseconds",
		"Snapshot source fetch latency", m.histogramBuckets), []string{"league"})
	m.snapshotsRejected = auto.NewCounterVec(m.counterOpts("snapshots_rejected_total",
		"Snapshots ignored as non-authoritative"), []string{"reason"})
	m.trackedContests = auto.NewGauge(m.gaugeOpts("tracked_contests",
		"Contests currently being polled"))

	m.eventsDetected = auto.NewCounterVec(m.counterOpts("events_detected_total",
		"Semantic events emitted by the differencer"), []string{"kind"})
	m.celebrationsClassified = auto.NewCounterVec(m.counterOpts("celebrations_classified_total",
		"Celebration commands produced"), []string{"category", "intensity"})
	m.manualTriggers = auto.NewCounterVec(m.counterOpts("manual_triggers_total",
		"Manual celebration triggers by result"), []string{"result"})

	m.dispatches = auto.NewCounterVec(m.counterOpts("dispatches_total",
		"Celebration dispatches completed"), []string{"category"})
	m.dispatchSuppressed = auto.NewCounter(m.counterOpts("dispatch_suppressed_total",
		"Dispatches suppressed inside the de-duplication window"))
	m.sinkOutcomes = auto.NewCounterVec(m.counterOpts("sink_outcomes_total",
		"Per-sink dispatch outcomes"), []string{"sink", "result"})
	m.sinkLatency = auto.NewHistogramVec(m.histogramOpts("sink_latency_milliseconds",
		"Per-sink apply latency", m.histogramBuckets), []string{"sink"})
	m.sinkBreakerState = auto.NewGaugeVec(m.gaugeOpts("sink_breaker_state",
		"Circuit breaker state per sink (0 closed, 1 half-open, 2 open)"), []string{"sink"})
	m.laneCount = auto.NewGauge(m.gaugeOpts("dispatch_lanes",
		"Active per-contest dispatch lanes"))

	m.hubSubscribers = auto.NewGauge(m.gaugeOpts("hub_subscribers",
		"Connected broadcast subscribers"))
	m.hubMessages = auto.NewCounterVec(m.counterOpts("hub_messages_total",
		"Messages broadcast by type"), []string{"type"})
	m.hubRemovals = auto.NewCounterVec(m.counterOpts("hub_removals_total",
		"Subscribers removed by reason"), []string{"reason"})

	m.degraded = auto.NewGaugeVec(m.gaugeOpts("degraded",
		"Degraded-status signals currently raised"), []string{"signal"})

	m.historyWrites = auto.NewCounterVec(m.counterOpts("history_writes_total",
		"History rows written by table and result"), []string{"table", "result"})

	m.queueSize = auto.NewGaugeVec(m.gaugeOpts("queue_size",
		"Current depth of an in-memory queue"), []string{"queue"})
	m.queueEnqueued = auto.NewCounterVec(m.counterOpts("queue_enqueued_total",
		"Items enqueued"), []string{"queue"})
	m.queueDequeued = auto.NewCounterVec(m.counterOpts("queue_dequeued_total",
		"Items dequeued"), []string{"queue"})
	m.queueEnqueueErrors = auto.NewCounterVec(m.counterOpts("queue_enqueue_errors_total",
		"Rejected enqueues"), []string{"queue", "reason"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Errors by component and type"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total",
		"Errors by type and severity"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"HTTP errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes",
		"Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds",
		"Average GC pause", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}))
	m.processCPUPercent = auto.NewGauge(m.gaugeOpts("process_cpu_percent",
		"Process CPU usage percent"))
	m.processRSS = auto.NewGauge(m.gaugeOpts("process_rss_bytes",
		"Process resident set size"))
}

// Feed

// RecordFeedPoll counts one poll attempt. result is ok, error or rejected.
func RecordFeedPoll(league, result string) {
	globalManager.feedPolls.WithLabelValues(league, result).Inc()
}

// RecordFeedFetchLatency records a source fetch latency in milliseconds.
func RecordFeedFetchLatency(league string, latencyMs float64) {
	globalManager.feedFetchLatency.WithLabelValues(league).Observe(latencyMs)
}

// RecordSnapshotRejected counts a snapshot ignored by the differencer.
func RecordSnapshotRejected(reason string) {
	globalManager.snapshotsRejected.WithLabelValues(reason).Inc()
}

// UpdateTrackedContests sets the number of polled contests.
func UpdateTrackedContests(n int) {
	globalManager.trackedContests.Set(float64(n))
}

// Events

// RecordEventDetected counts a semantic event by kind.
func RecordEventDetected(kind string) {
	globalManager.eventsDetected.WithLabelValues(kind).Inc()
}

// RecordCelebrationClassified counts a produced command.
func RecordCelebrationClassified(category, intensity string) {
	globalManager.celebrationsClassified.WithLabelValues(category, intensity).Inc()
}

// RecordManualTrigger counts a manual trigger; result is accepted, duplicate,
// rejected or limited.
func RecordManualTrigger(result string) {
	globalManager.manualTriggers.WithLabelValues(result).Inc()
}

// Dispatch

// RecordDispatch counts one completed dispatch.
func RecordDispatch(category string) {
	globalManager.dispatches.WithLabelValues(category).Inc()
}

// RecordDispatchSuppressed counts a de-duplicated submission.
func RecordDispatchSuppressed() {
	globalManager.dispatchSuppressed.Inc()
}

// RecordSinkOutcome counts a sink outcome and its latency.
func RecordSinkOutcome(sink, result string, latencyMs float64) {
	globalManager.sinkOutcomes.WithLabelValues(sink, result).Inc()
	globalManager.sinkLatency.WithLabelValues(sink).Observe(latencyMs)
}

// UpdateSinkBreakerState sets the breaker state gauge for a sink.
func UpdateSinkBreakerState(sink string, state int) {
	globalManager.sinkBreakerState.WithLabelValues(sink).Set(float64(state))
}

// UpdateLaneCount sets the number of live dispatch lanes.
func UpdateLaneCount(n int) {
	globalManager.laneCount.Set(float64(n))
}

// Hub

// UpdateHubSubscribers sets the subscriber gauge.
func UpdateHubSubscribers(n int) {
	globalManager.hubSubscribers.Set(float64(n))
}

// RecordHubMessage counts a broadcast message by type.
func RecordHubMessage(msgType string) {
	globalManager.hubMessages.WithLabelValues(msgType).Inc()
}

// RecordHubRemoval counts a subscriber removal.
func RecordHubRemoval(reason string) {
	globalManager.hubRemovals.WithLabelValues(reason).Inc()
}

// Health

// UpdateDegraded raises or clears a degraded signal.
func UpdateDegraded(signal string, raised bool) {
	v := 0.0
	if raised {
		v = 1
	}
	globalManager.degraded.WithLabelValues(signal).Set(v)
}

// History

// RecordHistoryWrite counts a history write; result is ok, error or dropped.
func RecordHistoryWrite(table, result string) {
	globalManager.historyWrites.WithLabelValues(table, result).Inc()
}

// Queue

// UpdateQueueSize sets the depth gauge for a named queue.
func UpdateQueueSize(queue string, size int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
}

// RecordQueueEnqueue counts an accepted enqueue.
func RecordQueueEnqueue(queue string) {
	globalManager.queueEnqueued.WithLabelValues(queue).Inc()
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue(queue string) {
	globalManager.queueDequeued.WithLabelValues(queue).Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(queue, reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(queue, reason).Inc()
}

// HTTP

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// UpdateProcessStats sets process CPU percent and RSS.
func UpdateProcessStats(cpuPercent float64, rss uint64) {
	globalManager.processCPUPercent.Set(cpuPercent)
	globalManager.processRSS.Set(float64(rss))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
