package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Inventory metrics, refreshed by the Collector
	SchedulesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "downtime_schedules_total",
			Help: "Total number of schedules by action and enabled state",
		},
		[]string{"action", "enabled"},
	)

	ServersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "downtime_servers_total",
			Help: "Total number of servers by provider and status",
		},
		[]string{"provider", "status"},
	)

	// Scheduler metrics
	SchedulerTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "downtime_scheduler_ticks_total",
			Help: "Total number of scheduler poll ticks",
		},
	)

	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "downtime_scheduler_tick_duration_seconds",
			Help:    "Time spent selecting and dispatching due schedules per tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	DueSchedules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "downtime_due_schedules",
			Help: "Schedules returned by the last due query",
		},
	)

	InFlightExecutions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "downtime_inflight_executions",
			Help: "Executions currently running",
		},
	)

	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downtime_executions_total",
			Help: "Total number of executions by action and status",
		},
		[]string{"action", "status"},
	)

	ExecutionsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downtime_executions_skipped_total",
			Help: "Executions that found the instance already in the desired state",
		},
		[]string{"action"},
	)

	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "downtime_execution_duration_seconds",
			Help:    "Execution duration in seconds by action",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"action"},
	)

	RulesExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "downtime_rules_exhausted_total",
			Help: "Schedules disabled because their rule has no further occurrences",
		},
	)

	// Provider metrics
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downtime_provider_calls_total",
			Help: "Cloud provider API calls by provider, operation and result",
		},
		[]string{"provider", "operation", "result"},
	)

	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "downtime_provider_call_duration_seconds",
			Help:    "Cloud provider API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downtime_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "downtime_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SchedulesTotal)
	prometheus.MustRegister(ServersTotal)
	prometheus.MustRegister(SchedulerTicks)
	prometheus.MustRegister(SchedulerTickDuration)
	prometheus.MustRegister(DueSchedules)
	prometheus.MustRegister(InFlightExecutions)
	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(ExecutionsSkipped)
	prometheus.MustRegister(ExecutionDuration)
	prometheus.MustRegister(RulesExhausted)
	prometheus.MustRegister(ProviderCallsTotal)
	prometheus.MustRegister(ProviderCallDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
