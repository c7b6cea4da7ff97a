package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudsync/todocal/internal/logging"
)

// AuthEventKind names an auditable change of the session.
type AuthEventKind string

const (
	AuthSignedIn    AuthEventKind = "signed_in"
	AuthValidated   AuthEventKind = "token_validated"
	AuthDenied      AuthEventKind = "authorization_denied"
	AuthInvalidated AuthEventKind = "token_invalidated"
	AuthSignedOut   AuthEventKind = "signed_out"
)

// AuthEvent is one audit record.
//
// UserEmail is PII. It is only written verbatim when the audit logger is
// configured with IncludePII.
type AuthEvent struct {
	Kind      AuthEventKind
	UserEmail string
	Reason    string
	Time      time.Time
}

// AuditLogger writes AuthEvents to a dedicated slog stream.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("component", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogAuthEvent writes ev. A nil AuditLogger is a no-op.
func (al *AuditLogger) LogAuthEvent(ctx context.Context, ev AuthEvent) {
	if al == nil || !al.enabled {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("event", string(ev.Kind)),
		slog.Time("at", ev.Time),
	}
	if ev.UserEmail != "" {
		if al.includePII {
			attrs = append(attrs, slog.String("user", ev.UserEmail))
		} else {
			attrs = append(attrs, logging.UserHash(ev.UserEmail))
		}
	}
	if ev.Reason != "" {
		attrs = append(attrs, slog.String("reason", ev.Reason))
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}

	al.logger.LogAttrs(ctx, slog.LevelInfo, "auth_audit", attrs...)
}
