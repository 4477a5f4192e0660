// Package metrics defines Prometheus metrics for codeloom.
//
// Metrics are exposed only when the --metrics-addr flag is set; the
// collectors themselves are always registered so counters stay cheap
// to increment from the hot paths.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsLaunched counts background job launches
	JobsLaunched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codeloom_jobs_launched_total",
			Help: "Total number of background jobs launched",
		},
	)

	// JobsFinished counts jobs reaching a terminal status
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeloom_jobs_finished_total",
			Help: "Total number of background jobs reaching a terminal status",
		},
		[]string{"status"},
	)

	// JobsRunning tracks currently running background jobs
	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codeloom_jobs_running",
			Help: "Number of background jobs currently running",
		},
	)

	// EngineSends counts requests sent to the AI engine
	EngineSends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codeloom_engine_sends_total",
			Help: "Total number of requests sent to the AI engine",
		},
	)

	// EngineInterrupts counts interrupted generations
	EngineInterrupts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codeloom_engine_interrupts_total",
			Help: "Total number of interrupted engine generations",
		},
	)

	// EngineErrors counts engine launch/runtime failures
	EngineErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codeloom_engine_errors_total",
			Help: "Total number of engine launch or runtime failures",
		},
	)

	// DecodeFallbacks counts protocol lines emitted verbatim because they
	// did not parse as structured records
	DecodeFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codeloom_decode_fallbacks_total",
			Help: "Total number of protocol units that fell back to raw text",
		},
	)

	// ScheduleRuns counts scheduled prompt executions
	ScheduleRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeloom_schedule_runs_total",
			Help: "Total number of scheduled prompt executions",
		},
		[]string{"status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
