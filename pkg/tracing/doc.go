// Package tracing configures OpenTelemetry for the scheduler. Executions and
// cloud provider calls are wrapped in spans via StartSpan/End; the exporter
// (none, stdout, otlphttp or otlpgrpc) comes from configuration.
package tracing
