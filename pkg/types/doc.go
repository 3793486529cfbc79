/*
Package types defines the data structures shared by the scheduler, the store,
the executor and the API.

# Core Types

  - Schedule: a recurring Action against one Server. NextRunAt is always UTC
    at minute precision; RRule carries a pinned DTSTART once stored.
  - Scaling: optional instance and root-volume targets of scale_down and
    scale_up, plus the original values recorded for reverting.
  - ScheduleExecution: append-only record of one execution attempt.
  - Server and CloudAccount: the instance acted on and the encrypted
    provider credentials used to reach it.
  - DueSchedule: a schedule joined with its server and account, as returned
    by the due query.
  - HourlyTraffic: per-server, per-hour throughput aggregates in Mbps.

# Actions

	stop        stop the instance
	start       start the instance
	reboot      reboot the instance
	scale_down  change instance type and/or volume to smaller targets
	scale_up    change instance type and/or volume to larger targets

Action.TransitionalStatus gives the optimistic server status written once an
action has been attempted.

Pointer fields (TargetVolumeSize and friends) distinguish "not requested"
from zero; use Int32 to build them.
*/
package types
