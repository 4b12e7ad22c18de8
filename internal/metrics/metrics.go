// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvesterBatchesTotal         *prometheus.CounterVec
	harvesterRunsTotal            *prometheus.CounterVec
	harvesterSymbolsPlanned       prometheus.Gauge
	harvesterMergedLinesTotal     prometheus.Counter
	harvesterBatchDurationSeconds prometheus.Histogram

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_batches_total",
				Help: "Total number of engine batches launched, labeled by status.",
			},
			[]string{"status"},
		)

		harvesterRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Total number of orchestrated runs, labeled by status.",
			},
			[]string{"status"},
		)

		harvesterSymbolsPlanned = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_symbols_planned",
				Help: "Number of symbols covered by the most recent run plan.",
			},
		)

		harvesterMergedLinesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_merged_lines_total",
				Help: "Total lines written to merged output files.",
			},
		)

		harvesterBatchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_batch_duration_seconds",
				Help:    "Histogram of engine batch wall-clock durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_http_requests_total",
				Help: "Total number of status server HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_http_request_duration_seconds",
				Help:    "Histogram of status server HTTP request durations.",
				Buckets: prometheus.DefBuckets,
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBatch increments the batch counter for the given status.
func ObserveBatch(status string) {
	if harvesterBatchesTotal != nil {
		harvesterBatchesTotal.WithLabelValues(status).Inc()
	}
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	if harvesterRunsTotal != nil {
		harvesterRunsTotal.WithLabelValues(status).Inc()
	}
}

// SetSymbolsPlanned records the symbol count of the current run plan.
func SetSymbolsPlanned(n int) {
	if harvesterSymbolsPlanned != nil {
		harvesterSymbolsPlanned.Set(float64(n))
	}
}

// ObserveMergedLines adds to the merged line counter.
func ObserveMergedLines(n int) {
	if harvesterMergedLinesTotal != nil && n > 0 {
		harvesterMergedLinesTotal.Add(float64(n))
	}
}

// ObserveBatchDuration records the wall-clock duration of one batch.
func ObserveBatchDuration(d time.Duration) {
	if harvesterBatchDurationSeconds != nil {
		harvesterBatchDurationSeconds.Observe(d.Seconds())
	}
}
