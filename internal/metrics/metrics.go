package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's instrumentation. One instance lives for the
// daemon's lifetime and is shared by the orchestrator and the HTTP API.
type Metrics struct {
	registry *prometheus.Registry

	BuildsStarted   *prometheus.CounterVec
	BuildsFinished  *prometheus.CounterVec
	BuildDuration   *prometheus.HistogramVec
	StepDuration    *prometheus.HistogramVec
	ActiveBuilds    prometheus.Gauge
	CacheRestores   *prometheus.CounterVec
	DraftRequests   *prometheus.CounterVec
}

// New constructs a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		BuildsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiln",
			Name:      "builds_started_total",
			Help:      "Builds accepted by the orchestrator.",
		}, []string{"target"}),
		BuildsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiln",
			Name:      "builds_finished_total",
			Help:      "Builds finished, by target and outcome.",
		}, []string{"target", "status"}),
		BuildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiln",
			Name:      "build_duration_seconds",
			Help:      "End to end build pipeline duration.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"target"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiln",
			Name:      "build_step_duration_seconds",
			Help:      "Duration of individual pipeline steps.",
			Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 1200},
		}, []string{"step"}),
		ActiveBuilds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kiln",
			Name:      "active_builds",
			Help:      "Builds currently executing.",
		}),
		CacheRestores: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiln",
			Name:      "cache_restores_total",
			Help:      "Build cache restore attempts, by result.",
		}, []string{"result"}),
		DraftRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiln",
			Name:      "draft_requests_total",
			Help:      "Draft generator requests, by result.",
		}, []string{"result"}),
	}
}

// Handler serves the metrics endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
