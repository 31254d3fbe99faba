// Package metrics provides the Prometheus collectors for the prediction pipeline.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure stages reported by RecordFailure.
const (
	StageModel    = "model"
	StageInput    = "input"
	StageDecode   = "decode"
	StageArtifact = "artifact"
	StageClassify = "classify"
	StagePersist  = "persist"
)

// Metrics holds every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	PredictionsTotal    *prometheus.CounterVec
	FailuresTotal       *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	InferenceDuration   *prometheus.HistogramVec
	ModelLoadedGauge    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, with a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()

	if err := m.registry.Register(m); err != nil {
		return nil, fmt.Errorf("register plantech metrics: %w", err)
	}
	if err := m.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := m.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantech_predictions_total",
			Help: "Total number of successful predictions partitioned by label.",
		},
		[]string{"label"},
	)
	m.FailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantech_prediction_failures_total",
			Help: "Total number of failed prediction requests partitioned by pipeline stage.",
		},
		[]string{"stage"},
	)
	m.PersistenceFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "plantech_persistence_failures_total",
			Help: "Total number of prediction records that could not be stored.",
		},
	)
	m.InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plantech_inference_duration_seconds",
			Help:    "Time taken by one classifier forward pass.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
		[]string{"backend"},
	)
	m.ModelLoadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plantech_model_loaded",
			Help: "Whether the classifier model is loaded (1) or not (0).",
		},
	)
}

// RecordPrediction counts a successful prediction and its inference time.
func (m *Metrics) RecordPrediction(backend, label string, seconds float64) {
	if m == nil {
		return
	}
	m.PredictionsTotal.WithLabelValues(label).Inc()
	m.InferenceDuration.WithLabelValues(backend).Observe(seconds)
}

// RecordFailure counts a request that failed at stage.
func (m *Metrics) RecordFailure(stage string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(stage).Inc()
}

// RecordPersistenceFailure counts a record that could not be appended.
func (m *Metrics) RecordPersistenceFailure() {
	if m == nil {
		return
	}
	m.PersistenceFailures.Inc()
}

// SetModelLoaded sets the model_loaded gauge.
func (m *Metrics) SetModelLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.ModelLoadedGauge.Set(1)
	} else {
		m.ModelLoadedGauge.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.PredictionsTotal.Describe(ch)
	m.FailuresTotal.Describe(ch)
	ch <- m.PersistenceFailures.Desc()
	m.InferenceDuration.Describe(ch)
	ch <- m.ModelLoadedGauge.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.PredictionsTotal.Collect(ch)
	m.FailuresTotal.Collect(ch)
	ch <- m.PersistenceFailures
	m.InferenceDuration.Collect(ch)
	ch <- m.ModelLoadedGauge
}
