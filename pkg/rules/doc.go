/*
Package rules evaluates RFC 5545 recurrence rules for downtime schedules.

Rules are written in the schedule's own timezone: BYHOUR=21 in Asia/Kolkata
means 21:00 IST. Engine.Next converts that wall-clock reading back to an
absolute UTC instant truncated to the minute, and reports ok=false once a
COUNT or UNTIL rule has no further occurrences.

	engine := rules.New()
	next, ok, err := engine.Next("FREQ=DAILY;BYHOUR=21;BYMINUTE=0", "Asia/Kolkata", time.Now())

The zone offset is taken at the evaluation instant, so an occurrence on the far
side of a DST transition is computed with the offset in effect before it.

A DTSTART is read as a wall clock in the schedule's timezone. A trailing Z
does not make it UTC, and DTSTART;TZID= is rejected when a schedule is saved.

Rules without a DTSTART are evaluated relative to the search instant. Anchor
pins a DTSTART once, at creation time, so that COUNT is consumed across runs.
*/
package rules
