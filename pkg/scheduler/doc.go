/*
Package scheduler runs the polling loop that fires recurring downtime actions.

On every tick the scheduler asks the store for enabled schedules whose next run
falls inside a short lookahead window, picks the ones due in the current
minute, and dispatches each to the executor in its own goroutine. When an
execution completes, its record is written and the schedule is advanced to the
rule's next occurrence, or disabled when the rule has none left.

# Architecture

	┌────────────────────────────────────────────────────────────┐
	│                    Scheduler Loop                          │
	│         (first tick immediately, then every 10 seconds)    │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  1. ListDueSchedules(now + lookahead)                      │
	│  2. For each candidate:                                    │
	│     • same minute as now (ShouldRunNow)?                   │
	│     • TryAcquire in-flight slot                            │
	│     • dispatch goroutine                                   │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  Execution goroutine                                       │
	│     • Executor.Execute                                     │
	│     • RecordExecution                                      │
	│     • Next occurrence → AdvanceSchedule / DisableSchedule  │
	│     • Release in-flight slot                               │
	└────────────────────────────────────────────────────────────┘

# Mutual Exclusion

The in-flight set is the only state shared between the loop and executions.
TryAcquire is an atomic check-and-add, so two ticks that see the same due
schedule dispatch it once. The slot is released only after the schedule has
been advanced, so a later tick never observes the stale NextRunAt of a
completed execution.

# Timing

ShouldRunNow compares minutes, not instants: a schedule fires only in the
minute of its NextRunAt. With the default 10 second poll interval every minute
is observed several times. If the process is down for the whole minute the
occurrence is not run late: the first tick after the minute has passed moves
the schedule to its next natural occurrence and publishes a skipped event.

Executions run on a context detached from the loop's context, so cancelling
the loop never interrupts a provider call in progress.

# Shutdown

Stop ends ticking at once and waits up to the grace period (30 seconds by
default) for executions to drain. Anything still running is logged and left
to finish on its own.

# Usage

	sched := scheduler.NewScheduler(store, exec, rules.New(), scheduler.Config{},
		scheduler.WithEvents(broker))
	sched.Start(ctx)
	defer sched.Stop(context.Background())

Tests and the run-once command drive the loop directly with Tick:

	n := sched.Tick(ctx, time.Now())
	sched.Wait()
*/
package scheduler
