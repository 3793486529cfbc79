// Package config loads the runtime configuration of the downtime scheduler.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// .env files, then the environment (ENCRYPTION_KEY, PORT, DATABASE_URL,
// SCHEDULER_POLL_INTERVAL, LOG_LEVEL). Command-line flags are applied by the
// caller on top of the result.
package config
