/*
Package health checks the dependencies of a running scheduler and feeds the
result into the readiness registry of package metrics.

# Checkers

Every check implements Checker and returns a Result:

	┌──────────────────────────────────────────────┐
	│                Checker Interface             │
	│  • Check(ctx) Result                         │
	│  • Type() CheckType                          │
	└───────┬──────────────┬──────────────┬────────┘
	        ▼              ▼              ▼
	  StoreChecker  SchedulerChecker  HTTPChecker
	   store.Ping    last tick age    GET /ready

StoreChecker pings the configured store. SchedulerChecker fails when the loop
is stopped or has not ticked within MaxAge (serve uses three poll intervals).
HTTPChecker probes a remote /ready endpoint and backs the healthcheck command.

# Monitor

Monitor runs its registered checkers every Config.Interval, each bounded by
Config.Timeout. A component only turns unhealthy after Config.Retries
consecutive failures and recovers on the first success. Each run calls
metrics.UpdateComponent with the registered name, so registering "store" and
"scheduler" makes /ready and the gRPC health service follow them:

	mon := health.NewMonitor(health.DefaultConfig())
	mon.Register("store", health.NewStoreChecker(store))
	mon.Register("scheduler", health.NewSchedulerChecker(sched, 3*cfg.PollInterval))
	mon.Start(ctx)
	defer mon.Stop()

Transitions between healthy and unhealthy are logged once, not on every run.
*/
package health
