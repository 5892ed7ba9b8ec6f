// Package metrics provides Prometheus metrics for the mafia moderator bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the bot exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Action resolution
	actionsParsed   *prometheus.CounterVec
	actionsRejected *prometheus.CounterVec
	votesCast       prometheus.Counter
	votesRetracted  prometheus.Counter
	lynches         prometheus.Counter
	shots           *prometheus.CounterVec
	replaysSkipped  *prometheus.CounterVec

	// Polling cycles
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	currentCycle  prometheus.Gauge

	// Game state
	alivePlayers  prometheus.Gauge
	majority      prometheus.Gauge
	activeBallots prometheus.Gauge

	// Outbound delivery
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueDropped  prometheus.Counter
	eventsPosted  *prometheus.CounterVec
	eventsFailed  *prometheus.CounterVec

	// Persistence
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP status surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec
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
		namespace:        "mafiabot",
		subsystem:        "moderator",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.actionsParsed = m.counterVec("actions_parsed_total", "Commands parsed from thread posts, by action kind", "kind")
	m.actionsRejected = m.counterVec("actions_rejected_total", "Commands dropped or rejected, by reason", "reason")
	m.votesCast = m.counter("votes_cast_total", "Ballots accepted by the vote ledger")
	m.votesRetracted = m.counter("votes_retracted_total", "Ballots retracted by unvote commands")
	m.lynches = m.counter("lynches_total", "Lynch majorities reached")
	m.shots = m.counterVec("shots_total", "Shots resolved, by outcome", "outcome")
	m.replaysSkipped = m.counterVec("replays_skipped_total", "History rows skipped as crash-restart replays", "table")

	m.cycles = m.counterVec("cycles_total", "Polling cycles run, by stage", "stage")
	m.cycleDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cycle_duration_milliseconds",
		Help:      "Wall time of one polling cycle in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})
	m.currentCycle = m.gauge("current_cycle", "Generation id of the running polling cycle")

	m.alivePlayers = m.gauge("alive_players", "Players currently alive")
	m.majority = m.gauge("majority", "Votes needed for a generic lynch")
	m.activeBallots = m.gauge("active_ballots", "Ballots currently open in the ledger")

	m.queueSize = m.gauge("outbound_queue_size", "Events waiting for the poster")
	m.queueCapacity = m.gauge("outbound_queue_capacity", "Capacity of the outbound event queue")
	m.queueDropped = m.counter("outbound_queue_dropped_total", "Events rejected by a full or closed outbound queue")
	m.eventsPosted = m.counterVec("events_posted_total", "Events delivered to the poster, by kind", "kind")
	m.eventsFailed = m.counterVec("events_failed_total", "Events the poster failed to deliver, by kind", "kind")

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_latency_milliseconds",
		Help:      "Persistence operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"op"})
	m.storeErrors = m.counterVec("store_errors_total", "Persistence failures, by operation", "op")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.httpErrors = m.counterVec("http_errors_total", "HTTP responses with an error status, by endpoint and error type", "endpoint", "error_type")
}

// RecordActionParsed counts one parsed command of the given kind.
func RecordActionParsed(kind string) {
	globalManager.actionsParsed.WithLabelValues(kind).Inc()
}

// RecordActionRejected counts a dropped or rejected command.
func RecordActionRejected(reason string) {
	globalManager.actionsRejected.WithLabelValues(reason).Inc()
}

// RecordVoteCast increments the accepted ballots counter.
func RecordVoteCast() {
	globalManager.votesCast.Inc()
}

// RecordVoteRetracted increments the retracted ballots counter.
func RecordVoteRetracted() {
	globalManager.votesRetracted.Inc()
}

// RecordLynch increments the lynch counter.
func RecordLynch() {
	globalManager.lynches.Inc()
}

// RecordShot counts a shot outcome: "survived", "killed" or "rejected".
func RecordShot(outcome string) {
	globalManager.shots.WithLabelValues(outcome).Inc()
}

// RecordReplaySkipped counts a history row skipped as a replay.
func RecordReplaySkipped(table string) {
	globalManager.replaysSkipped.WithLabelValues(table).Inc()
}

// RecordCycle counts a polling cycle and its duration.
func RecordCycle(stage string, durationMs float64) {
	globalManager.cycles.WithLabelValues(stage).Inc()
	globalManager.cycleDuration.Observe(durationMs)
}

// UpdateCurrentCycle sets the running generation id.
func UpdateCurrentCycle(cycle int) {
	globalManager.currentCycle.Set(float64(cycle))
}

// UpdateGameState sets the roster and ledger gauges.
func UpdateGameState(alive, majority, ballots int) {
	globalManager.alivePlayers.Set(float64(alive))
	globalManager.majority.Set(float64(majority))
	globalManager.activeBallots.Set(float64(ballots))
}

// UpdateQueueSize sets the current outbound queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the outbound queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueDropped counts an event the outbound queue refused.
func RecordQueueDropped() {
	globalManager.queueDropped.Inc()
}

// RecordEventPosted counts a delivered event.
func RecordEventPosted(kind string) {
	globalManager.eventsPosted.WithLabelValues(kind).Inc()
}

// RecordEventFailed counts an event the poster rejected.
func RecordEventFailed(kind string) {
	globalManager.eventsFailed.WithLabelValues(kind).Inc()
}

// RecordStoreLatency records a persistence operation latency.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError counts a persistence failure.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError counts an HTTP response with an error status.
func RecordHTTPError(endpoint, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
