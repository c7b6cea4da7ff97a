package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrBackend   = "backend"
	attrState     = "state"
	attrDomain    = "user_domain"
)

// Metrics records todocal metrics. The zero value and a nil *Metrics are
// valid and record nothing.
type Metrics struct {
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	oauthAuthTotal        metric.Int64Counter
	tokenRevocationsTotal metric.Int64Counter
	libraryLoadTotal      metric.Int64Counter

	sessionTransitionsTotal metric.Int64Counter
	sessionSignedIn         metric.Int64Gauge

	tokenStoreOperationsTotal metric.Int64Counter

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	detailedLabels bool
}

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// NewMetrics creates all instruments on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.googleAPIOperationsTotal, "google_api_operations_total", "Total number of Google API operations", "{operation}"},
		{&m.oauthAuthTotal, "oauth_auth_total", "Total number of OAuth authorization outcomes", "{attempt}"},
		{&m.tokenRevocationsTotal, "oauth_token_revocations_total", "Total number of token revocation attempts", "{attempt}"},
		{&m.libraryLoadTotal, "identity_library_load_total", "Total number of identity library load attempts", "{attempt}"},
		{&m.sessionTransitionsTotal, "session_transitions_total", "Total number of session state transitions", "{transition}"},
		{&m.tokenStoreOperationsTotal, "token_store_operations_total", "Total number of token store operations", "{operation}"},
		{&m.toolInvocationsTotal, "mcp_tool_invocations_total", "Total number of MCP tool invocations", "{invocation}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	m.sessionSignedIn, err = meter.Int64Gauge(
		"session_signed_in",
		metric.WithDescription("1 while the session holds an access token"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session_signed_in gauge: %w", err)
	}

	return m, nil
}

// RecordGoogleAPIOperation records a Google API call.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOAuthAuth records the outcome of an authorization or validation.
// email is only used as a label when detailed labels are enabled, and then
// only its domain.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result, email string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(attrResult, result)}
	if m.detailedLabels && email != "" {
		attrs = append(attrs, attribute.String(attrDomain, ExtractUserDomain(email)))
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTokenRevocation records a best-effort revocation attempt.
func (m *Metrics) RecordTokenRevocation(ctx context.Context, status string) {
	if m == nil || m.tokenRevocationsTotal == nil {
		return
	}
	m.tokenRevocationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordLibraryLoad records one identity library readiness probe.
func (m *Metrics) RecordLibraryLoad(ctx context.Context, status string) {
	if m == nil || m.libraryLoadTotal == nil {
		return
	}
	m.libraryLoadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordSessionTransition records that the session entered state.
func (m *Metrics) RecordSessionTransition(ctx context.Context, state string, signedIn bool) {
	if m == nil || m.sessionTransitionsTotal == nil {
		return
	}
	m.sessionTransitionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrState, state)))
	var v int64
	if signedIn {
		v = 1
	}
	m.sessionSignedIn.Record(ctx, v)
}

// RecordTokenStoreOperation records a persistence call against a backend.
func (m *Metrics) RecordTokenStoreOperation(ctx context.Context, backend, operation, status string) {
	if m == nil || m.tokenStoreOperationsTotal == nil {
		return
	}
	m.tokenStoreOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrBackend, backend),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	))
}

// RecordToolInvocation records an MCP tool invocation.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
