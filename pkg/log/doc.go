/*
Package log provides structured logging for the downtime scheduler using zerolog.

A single package-level Logger is configured once through Init and shared by every
package. Components derive child loggers that carry a fixed field so log lines can be
filtered per subsystem or per execution:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Int("due", 3).Msg("Found due schedules")

	logger := log.WithExecution(schedLog, s.ID, s.ServerID, string(s.Action))
	logger.Warn().Msg("Rule exhausted, schedule disabled")

# Output

JSON output is intended for production and log shipping; console output (the default
when JSONOutput is false) is meant for local runs of the CLI.

Levels map directly onto zerolog levels. Unknown levels fall back to info;
use Level.Valid to reject them up front. Output defaults to stderr so that
CLI results on stdout stay machine-readable.
*/
package log
