package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors exported by the pipeline. A nil
// *Metrics is valid and records nothing, so components can be built without it.
type Metrics struct {
	registry *prometheus.Registry

	RestorationsTotal   *prometheus.CounterVec
	DegradationsTotal   *prometheus.CounterVec
	EditAttemptsTotal   prometheus.Counter
	ModerationRetries   prometheus.Counter
	AnalysisCacheHits   prometheus.Counter
	AnalysisCacheMisses prometheus.Counter
	RemoteCallDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RestorationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restorations_total",
				Help: "Restoration pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		DegradationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restoration_degradations_total",
				Help: "Pipeline stages that fell back to a degraded result",
			},
			[]string{"stage"},
		),
		EditAttemptsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "image_edit_attempts_total",
				Help: "Remote image edit requests issued",
			},
		),
		ModerationRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "image_edit_moderation_retries_total",
				Help: "Image edit retries triggered by a moderation block",
			},
		),
		AnalysisCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analysis_cache_hits_total",
				Help: "Building analyses served from the fingerprint cache",
			},
		),
		AnalysisCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analysis_cache_misses_total",
				Help: "Building analyses that required a remote vision call",
			},
		),
		RemoteCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remote_call_duration_seconds",
				Help:    "Duration of remote AI calls",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90},
			},
			[]string{"call"},
		),
	}

	m.registry.MustRegister(
		m.RestorationsTotal,
		m.DegradationsTotal,
		m.EditAttemptsTotal,
		m.ModerationRetries,
		m.AnalysisCacheHits,
		m.AnalysisCacheMisses,
		m.RemoteCallDuration,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Outcome counts a finished pipeline run.
func (m *Metrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.RestorationsTotal.WithLabelValues(outcome).Inc()
}

// Degraded counts a stage that fell back to its degraded result.
func (m *Metrics) Degraded(stage string) {
	if m == nil {
		return
	}
	m.DegradationsTotal.WithLabelValues(stage).Inc()
}

// EditAttempt counts one remote image edit request.
func (m *Metrics) EditAttempt() {
	if m == nil {
		return
	}
	m.EditAttemptsTotal.Inc()
}

// ModerationRetry counts a retry after a moderation block.
func (m *Metrics) ModerationRetry() {
	if m == nil {
		return
	}
	m.ModerationRetries.Inc()
}

// CacheLookup counts an analysis cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.AnalysisCacheHits.Inc()
		return
	}
	m.AnalysisCacheMisses.Inc()
}

// ObserveCall records how long a remote call took.
func (m *Metrics) ObserveCall(call string, started time.Time) {
	if m == nil {
		return
	}
	m.RemoteCallDuration.WithLabelValues(call).Observe(time.Since(started).Seconds())
}
