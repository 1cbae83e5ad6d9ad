// Package metrics exposes Prometheus metrics for pipeline stages.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultBusy    = "busy"
)

var (
	stageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetpipe",
			Subsystem: "stage",
			Name:      "runs_total",
			Help:      "Total number of stage runs by result",
		},
		[]string{"stage", "result"},
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheetpipe",
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Duration of stage runs in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	// cellsChangedTotal counts cells and rows written by stages: header cells
	// normalized, rows remapped or separated, markers filled, subtotals resolved.
	cellsChangedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetpipe",
			Subsystem: "stage",
			Name:      "cells_changed_total",
			Help:      "Total number of cells or rows changed by stages",
		},
		[]string{"stage"},
	)

	pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetpipe",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of full pipeline runs by result",
		},
		[]string{"result"},
	)

	runsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sheetpipe",
			Subsystem: "pipeline",
			Name:      "in_flight",
			Help:      "Number of stage or pipeline runs holding a run slot",
		},
	)

	csvRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetpipe",
			Subsystem: "csv",
			Name:      "rows_total",
			Help:      "Total number of CSV rows imported or exported",
		},
		[]string{"direction"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetpipe",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheetpipe",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordStage records one finished stage run.
func RecordStage(stage, result string, d time.Duration) {
	stageRunsTotal.WithLabelValues(stage, result).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordChanged adds n changed cells or rows for stage.
func RecordChanged(stage string, n int) {
	if n <= 0 {
		return
	}
	cellsChangedTotal.WithLabelValues(stage).Add(float64(n))
}

// RecordPipeline records one finished full pipeline run.
func RecordPipeline(result string) {
	pipelineRunsTotal.WithLabelValues(result).Inc()
}

// RunStarted marks a run as holding a slot.
func RunStarted() { runsInFlight.Inc() }

// RunFinished releases the mark set by RunStarted.
func RunFinished() { runsInFlight.Dec() }

// RecordCSV adds n rows moved in direction "import" or "export".
func RecordCSV(direction string, n int) {
	if n <= 0 {
		return
	}
	csvRowsTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordHTTP records one served request. route is the router pattern, not
// the raw path.
func RecordHTTP(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
