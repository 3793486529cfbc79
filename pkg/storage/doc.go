/*
Package storage persists schedules, execution history, servers, cloud accounts
and hourly traffic aggregates for the downtime scheduler.

Two implementations of Store are provided:

  - BoltStore: embedded bbolt file (<dataDir>/downtime-scheduler.db), JSON
    values in one bucket per record kind. The default for single-node installs.
  - SQLStore: SQLite through database/sql and the pure-Go modernc.org/sqlite
    driver. Used where the data should be queryable with ordinary SQL tooling.

# Layout

	┌──────────── BoltStore buckets ────────────┐
	│ schedules       <scheduleID>              │
	│ executions      <scheduleID>\x00<nanos>\x00<execID>
	│ servers         <serverID>                │
	│ cloud_accounts  <accountID>               │
	│ traffic         <serverID>\x00<unix hour> │
	└───────────────────────────────────────────┘

Composite keys are zero-padded so cursors walk executions and traffic in time
order; ListExecutions seeks to the end of a schedule's range and walks
backwards to return the newest records first.

SQLStore mirrors the same records as tables (schedules, schedule_executions,
servers, cloud_accounts, hourly_traffic). Timestamps are Unix nanoseconds, so
the due query is a plain integer comparison on an (enabled, next_run_at)
index.

# Semantics

ListDueSchedules returns enabled schedules with NextRunAt at or before the
given instant, joined with their server and cloud account. A schedule whose
server or account record is missing is still returned with a nil field, so the
executor can record a failed execution instead of the schedule silently
stalling.

AdvanceSchedule and DisableSchedule both bump ExecutionCount and set
LastRunAt. DeleteSchedule removes the schedule's executions in the same
transaction.

Missing records are reported with errors wrapping ErrNotFound:

	if errors.Is(err, storage.ErrNotFound) { ... }

Copy streams every record from one Store to another and backs the migrate
command.
*/
package storage
