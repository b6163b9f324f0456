package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	analysisRunsTotal       *prometheus.CounterVec
	analysisDurationSeconds *prometheus.HistogramVec
	analysisFallbacksTotal  *prometheus.CounterVec
	watchdogTimeoutsTotal   prometheus.Counter
	requestsTotal           *prometheus.CounterVec
	requestLatencySeconds   *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the
// analysis pipeline and the HTTP layer.
func RegisterMetrics() {
	registerOnce.Do(func() {
		analysisRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_runs_total",
			Help: "Completed analysis runs by terminal source.",
		}, []string{"source"})

		analysisDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "End-to-end duration of analysis pipeline runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300},
		}, []string{"source"})

		analysisFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_fallbacks_total",
			Help: "Fallback ladder activations by failed stage.",
		}, []string{"stage"})

		watchdogTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "submission_watchdog_timeouts_total",
			Help: "Submissions force-failed by the processing watchdog.",
		})

		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		requestLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		prometheus.MustRegister(
			analysisRunsTotal,
			analysisDurationSeconds,
			analysisFallbacksTotal,
			watchdogTimeoutsTotal,
			requestsTotal,
			requestLatencySeconds,
		)
	})
}

// AnalysisRuns exposes the counter for completed analysis runs.
func AnalysisRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return analysisRunsTotal
}

// AnalysisDuration exposes the pipeline duration histogram.
func AnalysisDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return analysisDurationSeconds
}

// AnalysisFallbacks exposes the fallback activation counter.
func AnalysisFallbacks() *prometheus.CounterVec {
	RegisterMetrics()
	return analysisFallbacksTotal
}

// WatchdogTimeouts exposes the watchdog force-fail counter.
func WatchdogTimeouts() prometheus.Counter {
	RegisterMetrics()
	return watchdogTimeoutsTotal
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// RequestLatency exposes the latency histogram for API requests.
func RequestLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySeconds
}
