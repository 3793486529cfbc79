/*
Package events is a small in-process pub/sub broker for scheduler events.

The scheduler and the schedule service publish schedule.* events (executed,
skipped, failed, exhausted, created, updated, deleted, toggled); the serve
command subscribes and logs them. Publish never blocks the caller: a full
queue drops the event and increments Dropped, and a slow subscriber misses
events rather than stalling the broadcast loop.
*/
package events
