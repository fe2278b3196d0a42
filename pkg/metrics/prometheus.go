package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage durations range from milliseconds for small batches to minutes for
// full loads.
var defaultBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300}

// Manager owns every pipeline metric. A nil *Manager is valid and records
// nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         *prometheus.Registry

	stageDuration    *prometheus.HistogramVec
	stageFailures    *prometheus.CounterVec
	recordsProcessed *prometheus.CounterVec
	recordsDropped   *prometheus.CounterVec
	enrichmentMisses *prometheus.CounterVec
	qualityScore     *prometheus.GaugeVec
	extractRetries   prometheus.Counter
	runs             *prometheus.CounterVec
}

// NewManager creates a metrics manager registered on its own registry unless
// one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pipeline",
		histogramBuckets: defaultBuckets,
		enabled:          true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage",
		Buckets:   m.histogramBuckets,
	}, []string{"stage", "outcome"})

	m.stageFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_failures_total",
		Help:      "Number of failed pipeline stages",
	}, []string{"stage"})

	m.recordsProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_processed_total",
		Help:      "Records handled per stage and record kind",
	}, []string{"stage", "kind"})

	m.recordsDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_dropped_total",
		Help:      "Records rejected by source validation",
	}, []string{"kind"})

	m.enrichmentMisses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "enrichment_misses_total",
		Help:      "Transactions whose user or product reference was not found",
	}, []string{"entity"})

	m.qualityScore = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "quality_score",
		Help:      "Latest data quality score per dimension",
	}, []string{"dimension"})

	m.extractRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "extraction_retries_total",
		Help:      "Retried API extraction attempts",
	})

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Pipeline runs by final status",
	}, []string{"status"})
}

func (m *Manager) on() bool {
	return m != nil && m.enabled
}

// ObserveStage records a stage duration and counts failures.
func (m *Manager) ObserveStage(stage string, seconds float64, success bool) {
	if !m.on() {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
		m.stageFailures.WithLabelValues(stage).Inc()
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(seconds)
}

// AddRecords counts records of one kind handled by a stage.
func (m *Manager) AddRecords(stage, kind string, n int) {
	if !m.on() || n <= 0 {
		return
	}
	m.recordsProcessed.WithLabelValues(stage, kind).Add(float64(n))
}

// AddDropped counts records rejected at the source boundary.
func (m *Manager) AddDropped(kind string, n int) {
	if !m.on() || n <= 0 {
		return
	}
	m.recordsDropped.WithLabelValues(kind).Add(float64(n))
}

// AddEnrichmentMisses counts unresolved user or product references.
func (m *Manager) AddEnrichmentMisses(entity string, n int) {
	if !m.on() || n <= 0 {
		return
	}
	m.enrichmentMisses.WithLabelValues(entity).Add(float64(n))
}

// SetQualityScore publishes the latest score of a quality dimension.
func (m *Manager) SetQualityScore(dimension string, score float64) {
	if !m.on() {
		return
	}
	m.qualityScore.WithLabelValues(dimension).Set(score)
}

// IncExtractionRetry counts one API extraction retry.
func (m *Manager) IncExtractionRetry() {
	if !m.on() {
		return
	}
	m.extractRetries.Inc()
}

// IncRun counts a finished run by status.
func (m *Manager) IncRun(status string) {
	if !m.on() {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
