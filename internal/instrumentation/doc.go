// Package instrumentation wires OpenTelemetry metrics and tracing for todocal.
//
// A Provider is created once per process from a Config, usually
// DefaultConfig which reads the OTEL_* and METRICS_* environment. When
// instrumentation is disabled the Provider hands out a no-op Metrics value
// so callers never need to nil-check.
//
// # Metrics
//
//   - google_api_operations_total / google_api_operation_duration_seconds
//   - oauth_auth_total, oauth_token_revocations_total
//   - identity_library_load_total
//   - session_transitions_total, session_signed_in
//   - token_store_operations_total
//   - mcp_tool_invocations_total / mcp_tool_duration_seconds
//
// # Audit
//
// AuthEvent records sign-in, sign-out and token invalidation for the audit
// log. Emails are anonymized unless IncludePII is set.
package instrumentation
