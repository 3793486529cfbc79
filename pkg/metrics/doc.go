/*
Package metrics defines the Prometheus metrics and the health/readiness state
of the downtime scheduler.

All metrics are package-level variables registered with the default registry
at init and exposed by Handler on /metrics:

	downtime_scheduler_ticks_total              counter
	downtime_scheduler_tick_duration_seconds    histogram
	downtime_due_schedules                      gauge
	downtime_inflight_executions                gauge
	downtime_executions_total{action,status}    counter
	downtime_executions_skipped_total{action}   counter
	downtime_execution_duration_seconds{action} histogram
	downtime_rules_exhausted_total              counter
	downtime_provider_calls_total{provider,operation,result}
	downtime_provider_call_duration_seconds{provider,operation}
	downtime_api_requests_total{route,status}
	downtime_api_request_duration_seconds{route}
	downtime_schedules_total{action,enabled}    gauge (Collector)
	downtime_servers_total{provider,status}     gauge (Collector)

Durations are measured with Timer:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ExecutionDuration, string(action))

# Health

Components report their latest check with UpdateComponent (the health
Monitor does this). GetHealth is unhealthy if any component is. GetReadiness
only considers the critical components ("store" and "scheduler" by default,
see SetCriticalComponents); a component never checked is not ready.
LivenessHandler, ReadyHandler and HealthHandler serve Reports as JSON, with
uptime in seconds.
*/
package metrics
