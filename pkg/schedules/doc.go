// Package schedules implements the workspace-scoped schedule operations behind
// the API and CLI: create, update, toggle, delete and execution history.
// Every rule is anchored with a DTSTART and its first occurrence is stored as
// NextRunAt before the scheduler loop ever sees it.
package schedules
