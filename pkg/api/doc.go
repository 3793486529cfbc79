/*
Package api serves the HTTP API of the downtime scheduler and a gRPC health
endpoint for orchestrators.

# HTTP routes

Routes are registered on a net/http ServeMux with method patterns:

	GET    /health                                  liveness and uptime
	GET    /ready                                   503 until store and scheduler are healthy
	GET    /metrics                                 Prometheus exposition

	GET    /api/schedules?serverId=                 list, ordered by nextRunAt
	POST   /api/schedules                           create
	GET    /api/schedules/{id}                      get
	PUT    /api/schedules/{id}                      update
	DELETE /api/schedules/{id}                      delete with history
	PUT    /api/schedules/{id}/toggle               enable or disable
	GET    /api/schedules/{id}/executions?limit=    newest first, default 50

	GET    /api/traffic/servers/{id}/patterns?days= full analysis, default 30 days
	GET    /api/traffic/servers/{id}/hourly?days=   chart series, default 7 days
	POST   /api/traffic/servers/{id}/hourly         ingest hourly aggregates
	GET    /api/traffic/servers/{id}/best-downtime  maintenance window suggestion

	POST   /api/rules/validate                      parse, describe and preview a rule
	GET    /api/rules/patterns                      named rule presets

Every /api route requires the X-Workspace-ID header. Authentication is done
by a proxy in front of the server; this package only scopes data to the
workspace it is given. Records of other workspaces answer 404.

Responses use a {"success", "message", "data"} envelope. Validation errors
map to 400, missing records to 404 and anything else to 500. The patterns
route returns the analysis document directly.

# gRPC health

HealthServer implements grpc.health.v1.Health on its own listener. The
overall service ("") and ServiceName report SERVING while metrics.GetReadiness
is ready, so the same components gate HTTP readiness and gRPC health.

# Metrics

Every route and gRPC method is counted in downtime_api_requests_total and
timed in downtime_api_request_duration_seconds, labelled by route pattern.
*/
package api
