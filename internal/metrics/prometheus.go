package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ExecutionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditor_executions_started_total",
		Help: "Executions accepted by the dispatcher",
	})

	ExecutionsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditor_executions_finished_total",
		Help: "Executions that reached a terminal state",
	}, []string{"status"})

	ActiveExecutions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auditor_active_executions",
		Help: "Executions currently dispatching or running",
	})

	ExecutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auditor_execution_duration_seconds",
		Help:    "Wall time from dispatch to terminal state",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	HostRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditor_host_runs_total",
		Help: "Per-host script runs by outcome",
	}, []string{"outcome"})

	HostRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auditor_host_run_duration_seconds",
		Help:    "Duration of a single host run",
		Buckets: prometheus.DefBuckets,
	})

	ExecutionsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditor_executions_swept_total",
		Help: "Executions removed by the retention job",
	})
)

// MustRegister registers every collector with reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		ExecutionsStarted,
		ExecutionsFinished,
		ActiveExecutions,
		ExecutionDuration,
		HostRuns,
		HostRunDuration,
		ExecutionsSwept,
	)
}
