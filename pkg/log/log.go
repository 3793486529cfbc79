package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Replace it only through Init.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Level is a configured log level name
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var levels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// Valid reports whether l is one of the known level names
func (l Level) Valid() bool {
	_, ok := levels[l]
	return ok
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer // stderr when nil
}

// Init configures the global level and rebuilds Logger. JSON lines carry a
// service field so they can be told apart in shared log pipelines.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Str("service", "downtime-scheduler").Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

func parseLevel(l Level) zerolog.Level {
	if lvl, ok := levels[l]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithExecution adds the fields that identify one schedule execution to l
func WithExecution(l zerolog.Logger, scheduleID, serverID, action string) zerolog.Logger {
	ctx := l.With().Str("schedule_id", scheduleID)
	if serverID != "" {
		ctx = ctx.Str("server_id", serverID)
	}
	if action != "" {
		ctx = ctx.Str("action", action)
	}
	return ctx.Logger()
}
