// Package metrics defines the Prometheus collectors for the theme pipeline
// and its services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	PipelineRunsTotal    *prometheus.CounterVec
	PipelineRunDuration  *prometheus.HistogramVec
	StageDuration        *prometheus.HistogramVec
	DocumentsProcessed   prometheus.Counter
	VocabularySize       prometheus.Gauge
	ClusterSize          *prometheus.GaugeVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	EventsPublishedTotal *prometheus.CounterVec
}

// New creates all collectors and registers them with the default
// registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all collectors and registers them with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		PipelineRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Pipeline runs by strategy and outcome (ok or the failure kind).",
			},
			[]string{"strategy", "status"},
		),
		PipelineRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "End-to-end pipeline run latency in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"strategy"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Pipeline stage latency in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"stage"},
		),
		DocumentsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_documents_total",
				Help: "Total documents clustered.",
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_vocabulary_size",
				Help: "Vocabulary size of the most recent run.",
			},
		),
		ClusterSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_cluster_size",
				Help: "Documents per cluster in the most recent run.",
			},
			[]string{"cluster"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "run_cache_hits_total",
				Help: "Total number of run cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "run_cache_misses_total",
				Help: "Total number of run cache misses.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "run_events_published_total",
				Help: "Run events published by type and status.",
			},
			[]string{"type", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.PipelineRunsTotal,
		m.PipelineRunDuration,
		m.StageDuration,
		m.DocumentsProcessed,
		m.VocabularySize,
		m.ClusterSize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsPublishedTotal,
	)

	return m
}

// ObserveRun records the outcome of one pipeline run.
func (m *Metrics) ObserveRun(strategy, status string, d time.Duration) {
	m.PipelineRunsTotal.WithLabelValues(strategy, status).Inc()
	if status == "ok" {
		m.PipelineRunDuration.WithLabelValues(strategy).Observe(d.Seconds())
	}
}

// ObserveStage records one pipeline stage duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveCorpus records the corpus and vocabulary size and the cluster
// sizes of a completed run.
func (m *Metrics) ObserveCorpus(documents, vocabulary int, clusterSizes []int) {
	m.DocumentsProcessed.Add(float64(documents))
	m.VocabularySize.Set(float64(vocabulary))
	m.ClusterSize.Reset()
	for c, size := range clusterSizes {
		m.ClusterSize.WithLabelValues(strconv.Itoa(c)).Set(float64(size))
	}
}

// CacheHit and CacheMiss count run cache lookups.
func (m *Metrics) CacheHit()  { m.CacheHitsTotal.Inc() }
func (m *Metrics) CacheMiss() { m.CacheMissesTotal.Inc() }

// EventPublished counts a publish attempt by event type and outcome.
func (m *Metrics) EventPublished(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
