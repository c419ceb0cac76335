// Package metrics provides Prometheus metrics for the certification service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Scoring
	evaluationsSubmitted *prometheus.CounterVec
	evaluationsByTier    *prometheus.CounterVec
	totalScore           prometheus.Histogram
	validationErrors     *prometheus.CounterVec

	// Offline queue
	queueSize        prometheus.Gauge
	queueEnqueued    *prometheus.CounterVec
	queueRemoved     prometheus.Counter
	queueLoadErrors  prometheus.Counter
	queuePersistErrs prometheus.Counter

	// Reconciler
	syncPasses        *prometheus.CounterVec
	syncActions       *prometheus.CounterVec
	syncPassDuration  prometheus.Histogram
	syncActionLatency *prometheus.HistogramVec
	syncShared        prometheus.Counter

	// Connectivity
	connected          prometheus.Gauge
	connectivityEvents *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
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
		namespace:        "certifica",
		subsystem:        "evaluation",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.evaluationsSubmitted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("submitted_total"),
		Help:        "Evaluations submitted, by status and write outcome",
		ConstLabels: constLabels,
	}, []string{"status", "outcome"})

	m.evaluationsByTier = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("classified_total"),
		Help:        "Evaluations classified per certification tier",
		ConstLabels: constLabels,
	}, []string{"tier"})

	m.totalScore = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("total_score"),
		Help:        "Distribution of final scores on the 0-1000 scale",
		Buckets:     []float64{300, 450, 650, 850, 1000},
		ConstLabels: constLabels,
	})

	m.validationErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("validation_errors_total"),
		Help:        "Rejected submissions and score assignments by reason",
		ConstLabels: constLabels,
	}, []string{"reason"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "offline_queue",
		Name:        m.name("size"),
		Help:        "Pending offline actions",
		ConstLabels: constLabels,
	})

	m.queueEnqueued = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "offline_queue",
		Name:        m.name("enqueued_total"),
		Help:        "Offline actions enqueued by resource and kind",
		ConstLabels: constLabels,
	}, []string{"resource", "kind"})

	m.queueRemoved = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "offline_queue",
		Name:        m.name("removed_total"),
		Help:        "Offline actions removed after confirmed application",
		ConstLabels: constLabels,
	})

	m.queueLoadErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "offline_queue",
		Name:        m.name("load_errors_total"),
		Help:        "Unreadable queue snapshots treated as empty",
		ConstLabels: constLabels,
	})

	m.queuePersistErrs = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "offline_queue",
		Name:        m.name("persist_errors_total"),
		Help:        "Failed writes of the queue to local storage",
		ConstLabels: constLabels,
	})

	m.syncPasses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "sync",
		Name:        m.name("passes_total"),
		Help:        "Reconciliation passes by outcome",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	m.syncActions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "sync",
		Name:        m.name("actions_total"),
		Help:        "Replayed actions by kind and result",
		ConstLabels: constLabels,
	}, []string{"kind", "result"})

	m.syncPassDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "sync",
		Name:        m.name("pass_duration_milliseconds"),
		Help:        "Duration of reconciliation passes",
		Buckets:     []float64{1, 5, 10, 50, 100, 250, 500, 1000, 5000, 30000},
		ConstLabels: constLabels,
	})

	m.syncActionLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "sync",
		Name:        m.name("action_latency_milliseconds"),
		Help:        "Latency of individual remote calls during reconciliation",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"kind"})

	m.syncShared = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "sync",
		Name:        m.name("shared_total"),
		Help:        "Reconcile calls that joined an in-flight pass",
		ConstLabels: constLabels,
	})

	m.connected = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "connectivity",
		Name:        m.name("connected"),
		Help:        "1 when the remote store is reachable",
		ConstLabels: constLabels,
	})

	m.connectivityEvents = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "connectivity",
		Name:        m.name("transitions_total"),
		Help:        "Connectivity transitions",
		ConstLabels: constLabels,
	}, []string{"to"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        m.name("requests_total"),
		Help:        "Total number of HTTP requests",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        m.name("request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_component_total"),
		Help:        "Total number of errors by component",
		ConstLabels: constLabels,
	}, []string{"component", "error_type"})
}

// RecordEvaluationSubmitted counts a submission; outcome is "written" or "queued".
func RecordEvaluationSubmitted(status, outcome string) {
	globalManager.evaluationsSubmitted.WithLabelValues(status, outcome).Inc()
}

// RecordClassification counts a tier assignment and observes the score.
func RecordClassification(tier string, total float64) {
	globalManager.evaluationsByTier.WithLabelValues(tier).Inc()
	globalManager.totalScore.Observe(total)
}

// RecordValidationError counts a rejected input.
func RecordValidationError(reason string) {
	globalManager.validationErrors.WithLabelValues(reason).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue counts an enqueued action.
func RecordQueueEnqueue(resource, kind string) {
	globalManager.queueEnqueued.WithLabelValues(resource, kind).Inc()
}

// RecordQueueRemoved counts actions removed after success.
func RecordQueueRemoved(n int) {
	globalManager.queueRemoved.Add(float64(n))
}

// RecordQueueLoadError counts a corrupted queue snapshot.
func RecordQueueLoadError() {
	globalManager.queueLoadErrors.Inc()
}

// RecordQueuePersistError counts a failed queue write.
func RecordQueuePersistError() {
	globalManager.queuePersistErrs.Inc()
}

// RecordSyncPass records a reconciliation pass outcome and its duration.
func RecordSyncPass(outcome string, durationMs float64) {
	globalManager.syncPasses.WithLabelValues(outcome).Inc()
	globalManager.syncPassDuration.Observe(durationMs)
}

// RecordSyncAction records one replayed action.
func RecordSyncAction(kind, result string, latencyMs float64) {
	globalManager.syncActions.WithLabelValues(kind, result).Inc()
	globalManager.syncActionLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordSyncShared counts a caller that joined an in-flight pass.
func RecordSyncShared() {
	globalManager.syncShared.Inc()
}

// UpdateConnected sets the connectivity gauge and counts the transition.
func UpdateConnected(connected bool) {
	if connected {
		globalManager.connected.Set(1)
		globalManager.connectivityEvents.WithLabelValues("online").Inc()
		return
	}
	globalManager.connected.Set(0)
	globalManager.connectivityEvents.WithLabelValues("offline").Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RefreshInterval reports how often periodic gauges should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
