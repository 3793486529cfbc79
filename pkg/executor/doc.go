/*
Package executor performs a schedule's action against the cloud instance it
targets.

Every action reads the live instance state first. Stop and start are no-ops
when the instance is already in (or moving to) the desired state, and reboot
requires a running instance. Scaling changes the instance type through a
stop, modify, start cycle, and changes volume attributes online without
stopping the instance. Volume size only grows.

After every attempt the server's status is set optimistically to the action's
transitional status, whatever the outcome.
*/
package executor
