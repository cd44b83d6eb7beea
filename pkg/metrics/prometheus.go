// Package metrics provides Prometheus metrics for the check-in service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets are milliseconds, tuned around the 500ms p95 target.
var latencyBuckets = []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Tasks
	tasksSubmitted *prometheus.CounterVec
	tasksFinished  *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	tasksTimedOut  prometheus.Counter
	tasksRequeued  prometheus.Counter

	// Contest
	joins             *prometheus.CounterVec
	checkIns          prometheus.Counter
	rankingRequests   *prometheus.CounterVec
	rankingBuild      prometheus.Histogram
	blobBytes         prometheus.Counter
	authAttempts      *prometheus.CounterVec
	totalEvents       prometheus.Gauge
	storageLatency    *prometheus.HistogramVec
	storageErrors     *prometheus.CounterVec
	cacheInvalidation prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueRejected      *prometheus.CounterVec
	workerActiveCount  prometheus.Gauge
	workerBusy         prometheus.Gauge
	workerPanics       prometheus.Counter
	workerClaimsLost   prometheus.Counter
	workerLatency      prometheus.Histogram
	watchdogSweeps     prometheus.Counter
	watchdogSweepError prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "checkin",
		subsystem:        "contest",
		histogramBuckets: latencyBuckets,
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.tasksSubmitted = m.counterVec("tasks_submitted_total", "Tasks accepted by the task store", "kind")
	m.tasksFinished = m.counterVec("tasks_finished_total", "Tasks that reached a terminal state", "kind", "status")
	m.taskDuration = m.histogramVec("task_duration_milliseconds", "Handler execution time per task kind", "kind")
	m.tasksTimedOut = m.counter("tasks_timed_out_total", "In-progress tasks failed by the watchdog")
	m.tasksRequeued = m.counter("tasks_requeued_total", "Pending tasks re-offered to the queue by the watchdog")

	m.joins = m.counterVec("joins_total", "Membership join attempts by outcome", "outcome")
	m.checkIns = m.counter("checkins_total", "Check-ins persisted (each adds one point)")
	m.rankingRequests = m.counterVec("ranking_requests_total", "Ranking reads by snapshot source", "source")
	m.rankingBuild = m.histogram("ranking_build_duration_milliseconds", "Time to load and rank an event", m.histogramBuckets)
	m.blobBytes = m.counter("blob_bytes_stored_total", "Bytes of normalised photos written to the blob store")
	m.authAttempts = m.counterVec("auth_attempts_total", "Register/login/logout attempts by outcome", "action", "outcome")
	m.totalEvents = m.gauge("events", "Number of provisioned events")
	m.storageLatency = m.histogramVec("storage_latency_milliseconds", "Storage call latency by operation", "op")
	m.storageErrors = m.counterVec("storage_errors_total", "Storage call failures by operation", "op")
	m.cacheInvalidation = m.counter("ranking_invalidations_total", "Ranking snapshots invalidated by writes")

	m.queueSize = m.gauge("queue_size", "Task ids waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue fill ratio (0-1)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Task ids enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Task ids dequeued")
	m.queueRejected = m.counterVec("queue_enqueue_rejected_total", "Enqueue attempts refused", "reason")
	m.workerActiveCount = m.gauge("worker_active_count", "Running task workers")
	m.workerBusy = m.gauge("worker_busy_count", "Workers currently executing a task")
	m.workerPanics = m.counter("worker_panics_total", "Handler panics recovered by workers")
	m.workerClaimsLost = m.counter("worker_claims_lost_total", "Dequeued tasks already claimed or finished elsewhere")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Claim to terminal status latency", m.histogramBuckets)
	m.watchdogSweeps = m.counter("watchdog_sweeps_total", "Watchdog passes")
	m.watchdogSweepError = m.counter("watchdog_sweep_errors_total", "Watchdog passes that failed")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordTaskSubmitted counts a task accepted for processing.
func RecordTaskSubmitted(kind string) { globalManager.tasksSubmitted.WithLabelValues(kind).Inc() }

// RecordTaskFinished counts a terminal transition and its handler duration.
func RecordTaskFinished(kind, status string, durationMs float64) {
	globalManager.tasksFinished.WithLabelValues(kind, status).Inc()
	globalManager.taskDuration.WithLabelValues(kind).Observe(durationMs)
}

// RecordTaskTimedOut counts a task failed by the watchdog.
func RecordTaskTimedOut() { globalManager.tasksTimedOut.Inc() }

// RecordTaskRequeued counts a pending task re-offered to the queue.
func RecordTaskRequeued() { globalManager.tasksRequeued.Inc() }

// RecordJoin counts a join attempt. Outcome is joined, already_member or rejected.
func RecordJoin(outcome string) { globalManager.joins.WithLabelValues(outcome).Inc() }

// RecordCheckIns counts persisted check-ins.
func RecordCheckIns(n int) { globalManager.checkIns.Add(float64(n)) }

// RecordRankingRequest counts a ranking read served from source (snapshot or load).
func RecordRankingRequest(source string) { globalManager.rankingRequests.WithLabelValues(source).Inc() }

// RecordRankingBuild records how long it took to rebuild a ranking.
func RecordRankingBuild(durationMs float64) { globalManager.rankingBuild.Observe(durationMs) }

// RecordRankingInvalidation counts a snapshot dropped after a write.
func RecordRankingInvalidation() { globalManager.cacheInvalidation.Inc() }

// RecordBlobStored counts bytes written by the blob store.
func RecordBlobStored(bytes int) { globalManager.blobBytes.Add(float64(bytes)) }

// RecordAuth counts an auth attempt.
func RecordAuth(action, outcome string) {
	globalManager.authAttempts.WithLabelValues(action, outcome).Inc()
}

// UpdateTotalEvents sets the number of provisioned events.
func UpdateTotalEvents(count int) { globalManager.totalEvents.Set(float64(count)) }

// RecordStorageLatency records a storage call.
func RecordStorageLatency(op string, latencyMs float64) {
	globalManager.storageLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStorageError counts a failed storage call.
func RecordStorageError(op string) { globalManager.storageErrors.WithLabelValues(op).Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue fill ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue counts an enqueued id.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue counts a dequeued id.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueRejected counts a refused enqueue by reason.
func RecordQueueRejected(reason string) { globalManager.queueRejected.WithLabelValues(reason).Inc() }

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// WorkerBusy adjusts the number of workers executing a task.
func WorkerBusy(delta int) { globalManager.workerBusy.Add(float64(delta)) }

// RecordWorkerPanic counts a recovered handler panic.
func RecordWorkerPanic() { globalManager.workerPanics.Inc() }

// RecordWorkerClaimLost counts a dequeued task another worker already owns.
func RecordWorkerClaimLost() { globalManager.workerClaimsLost.Inc() }

// RecordWorkerProcessingLatency records claim-to-terminal latency.
func RecordWorkerProcessingLatency(latencyMs float64) { globalManager.workerLatency.Observe(latencyMs) }

// RecordWatchdogSweep counts a watchdog pass and whether it failed.
func RecordWatchdogSweep(failed bool) {
	globalManager.watchdogSweeps.Inc()
	if failed {
		globalManager.watchdogSweepError.Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
