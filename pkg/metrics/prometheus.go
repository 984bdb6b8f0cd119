// Package metrics provides Prometheus metrics for the n-back scoring engine.
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

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Scoring
	sessionsSubmitted *prometheus.CounterVec
	sessionsDuplicate prometheus.Counter
	ineligibleReasons *prometheus.CounterVec
	stimuliCount      prometheus.Histogram
	scoringLatency    prometheus.Histogram

	// Leaderboard and rank reads
	leaderboardBuilds       *prometheus.CounterVec
	leaderboardBuildLatency prometheus.Histogram
	leaderboardGroups       prometheus.Gauge
	rankLookups             prometheus.Counter

	// Session log
	repositoryAppendLatency  prometheus.Histogram
	repositoryScanLatency    prometheus.Histogram
	repositorySessionsRead   prometheus.Counter
	repositorySessionsTotal  prometheus.Gauge
	repositoryFailures       *prometheus.CounterVec
	idempotencyCacheSize     prometheus.Gauge
	idempotencyReplays       prometheus.Counter
	idempotencyInFlightClash prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "nback",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
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
	return m.metricPrefix + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)

	m.sessionsSubmitted = auto.NewCounterVec(
		m.counterOpts("sessions_submitted_total", "Sessions appended to the log by status and eligibility"),
		[]string{"status", "eligible"},
	)
	m.sessionsDuplicate = auto.NewCounter(
		m.counterOpts("sessions_duplicate_total", "Submissions answered from the idempotency cache"),
	)
	m.ineligibleReasons = auto.NewCounterVec(
		m.counterOpts("sessions_ineligible_total", "Sessions that earned no points by reason"),
		[]string{"reason"},
	)
	m.stimuliCount = auto.NewHistogram(
		m.histogramOpts("stimuli_count", "Distribution of modalities x n-back per eligible session",
			[]float64{1, 2, 3, 4, 6, 8, 10, 12, 16, 20, 32}),
	)
	m.scoringLatency = auto.NewHistogram(
		m.histogramOpts("scoring_latency_milliseconds", "Time to score and gate one session", m.histogramBuckets),
	)

	m.leaderboardBuilds = auto.NewCounterVec(
		m.counterOpts("leaderboard_builds_total", "Leaderboards aggregated from the log by category"),
		[]string{"category"},
	)
	m.leaderboardBuildLatency = auto.NewHistogram(
		m.histogramOpts("leaderboard_build_latency_milliseconds", "Time to scan and aggregate a leaderboard", m.histogramBuckets),
	)
	m.leaderboardGroups = auto.NewGauge(
		m.gaugeOpts("leaderboard_groups", "Player groups seen by the most recent aggregation"),
	)
	m.rankLookups = auto.NewCounter(
		m.counterOpts("rank_lookups_total", "Per-user rank lookups"),
	)

	m.repositoryAppendLatency = auto.NewHistogram(
		m.histogramOpts("repository_append_latency_milliseconds", "Session log insert latency", m.histogramBuckets),
	)
	m.repositoryScanLatency = auto.NewHistogram(
		m.histogramOpts("repository_scan_latency_milliseconds", "Session log full scan latency", m.histogramBuckets),
	)
	m.repositorySessionsRead = auto.NewCounter(
		m.counterOpts("repository_sessions_read_total", "Sessions streamed out of the log"),
	)
	m.repositorySessionsTotal = auto.NewGauge(
		m.gaugeOpts("repository_sessions_appended", "Sessions appended since process start"),
	)
	m.repositoryFailures = auto.NewCounterVec(
		m.counterOpts("repository_failures_total", "Session log failures by kind"),
		[]string{"kind"},
	)
	m.idempotencyCacheSize = auto.NewGauge(
		m.gaugeOpts("idempotency_cache_size", "Idempotency keys currently tracked"),
	)
	m.idempotencyReplays = auto.NewCounter(
		m.counterOpts("idempotency_replays_total", "Completed idempotency keys replayed"),
	)
	m.idempotencyInFlightClash = auto.NewCounter(
		m.counterOpts("idempotency_conflicts_total", "Requests rejected because their key was still in flight"),
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and error type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by endpoint, method and error type"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(
		m.gaugeOpts("system_memory_bytes", "Heap bytes in use"),
	)
	m.systemGoroutineCount = auto.NewGauge(
		m.gaugeOpts("system_goroutines", "Current number of goroutines"),
	)
}

// RefreshInterval is how often callers should push system gauges.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

// Enabled reports whether recording is on.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Scoring

// RecordSessionSubmitted counts an appended session.
func RecordSessionSubmitted(status string, eligible bool) {
	if !globalManager.enabled {
		return
	}
	e := "false"
	if eligible {
		e = "true"
	}
	globalManager.sessionsSubmitted.WithLabelValues(status, e).Inc()
}

// RecordSessionDuplicate counts an idempotent replay.
func RecordSessionDuplicate() {
	if globalManager.enabled {
		globalManager.sessionsDuplicate.Inc()
		globalManager.idempotencyReplays.Inc()
	}
}

// RecordIdempotencyConflict counts a request whose key was still in flight.
func RecordIdempotencyConflict() {
	if globalManager.enabled {
		globalManager.idempotencyInFlightClash.Inc()
	}
}

// RecordIneligible counts a session rejected by the eligibility gate.
func RecordIneligible(reason string) {
	if globalManager.enabled {
		globalManager.ineligibleReasons.WithLabelValues(reason).Inc()
	}
}

// RecordStimuliCount observes the stimuli count of an eligible session.
func RecordStimuliCount(n int) {
	if globalManager.enabled {
		globalManager.stimuliCount.Observe(float64(n))
	}
}

// RecordScoringLatency observes scoring time in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.scoringLatency.Observe(latencyMs)
	}
}

// Reads

// RecordLeaderboardBuild counts one aggregation and its latency.
func RecordLeaderboardBuild(category string, latencyMs float64, groups int) {
	if !globalManager.enabled {
		return
	}
	globalManager.leaderboardBuilds.WithLabelValues(category).Inc()
	globalManager.leaderboardBuildLatency.Observe(latencyMs)
	globalManager.leaderboardGroups.Set(float64(groups))
}

// RecordRankLookup counts a per-user rank lookup.
func RecordRankLookup() {
	if globalManager.enabled {
		globalManager.rankLookups.Inc()
	}
}

// Repository

// RecordRepositoryAppendLatency observes insert latency in milliseconds.
func RecordRepositoryAppendLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.repositoryAppendLatency.Observe(latencyMs)
	}
}

// RecordRepositoryScanLatency observes a full scan's latency and row count.
func RecordRepositoryScanLatency(latencyMs float64, rows int) {
	if !globalManager.enabled {
		return
	}
	globalManager.repositoryScanLatency.Observe(latencyMs)
	globalManager.repositorySessionsRead.Add(float64(rows))
}

// UpdateRepositorySessionsAppended sets the number of sessions appended since start.
func UpdateRepositorySessionsAppended(count int64) {
	if globalManager.enabled {
		globalManager.repositorySessionsTotal.Set(float64(count))
	}
}

// RecordRepositoryFailure counts a store failure: schema_drift, unavailable or other.
func RecordRepositoryFailure(kind string) {
	if globalManager.enabled {
		globalManager.repositoryFailures.WithLabelValues(kind).Inc()
	}
}

// UpdateIdempotencyCacheSize sets the number of tracked keys.
func UpdateIdempotencyCacheSize(size int64) {
	if globalManager.enabled {
		globalManager.idempotencyCacheSize.Set(float64(size))
	}
}

// HTTP

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration observes request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// Errors

// RecordErrorByComponent counts an error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByEndpoint counts an error returned from an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// System

// UpdateSystemMemoryUsage sets heap bytes in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// GetManager returns the global manager.
func GetManager() *Manager {
	return globalManager
}
