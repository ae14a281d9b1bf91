package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions     *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	diversityAlerts *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botai_predictions_total",
				Help: "Total number of verdicts computed, by symbol and signal class",
			},
			[]string{"symbol", "signal"},
		),
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botai_signal_cache_hits_total",
				Help: "Signal cache hits by symbol",
			},
			[]string{"symbol"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botai_signal_cache_misses_total",
				Help: "Signal cache misses by symbol",
			},
			[]string{"symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botai_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botai_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		diversityAlerts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botai_diversity_alerts_total",
				Help: "Diversity monitor alerts by severity",
			},
			[]string{"level"},
		),
	}
}

// RecordPrediction records one computed verdict.
func (r *Recorder) RecordPrediction(symbol, signal string) {
	r.predictions.WithLabelValues(symbol, signal).Inc()
}

// RecordCacheHit records a signal cache hit.
func (r *Recorder) RecordCacheHit(symbol string) {
	r.cacheHits.WithLabelValues(symbol).Inc()
}

// RecordCacheMiss records a signal cache miss.
func (r *Recorder) RecordCacheMiss(symbol string) {
	r.cacheMisses.WithLabelValues(symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordDiversityAlert records a diversity monitor alert.
func (r *Recorder) RecordDiversityAlert(level string) {
	r.diversityAlerts.WithLabelValues(level).Inc()
}
