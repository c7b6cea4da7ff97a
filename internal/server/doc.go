// Package server wires the todocal process together.
//
// ServerContext owns the authentication session and the calendar gateway
// and hands them to the MCP tools and CLI commands. Open builds both from
// a config.Config: the token store backend, the Google identity adapter,
// the session and the rate limited gateway.
//
// HealthChecker and MetricsServer expose /healthz, /readyz,
// /healthz/detailed and the Prometheus /metrics endpoint on a separate
// listener while the MCP server runs on stdio. Readiness follows the
// session: the process is ready once initialization has finished, whether
// or not a user is signed in.
package server
