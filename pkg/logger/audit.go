package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	Username      string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging for authentication and request-forgery
// events
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthAttempt logs login attempts
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Username != "" {
		attrs = append(attrs, slog.String("username", event.Username))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogCSRFRejection logs requests blocked by CSRF validation
func (al *AuditLogger) LogCSRFRejection(method, path, username string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "csrf"),
		slog.String("event_type", "csrf_rejected"),
		slog.String("method", method),
		slog.String("path", path),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if username != "" {
		attrs = append(attrs, slog.String("username", username))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}

// LogLockout logs lockout escalations
func (al *AuditLogger) LogLockout(identifierType, identifier, lockReason string, attempts int) {
	attrs := []slog.Attr{
		slog.String("audit_type", "lockout"),
		slog.String("identifier_type", identifierType),
		slog.String("identifier", identifier),
		slog.String("lock_reason", lockReason),
		slog.Int("attempts", attempts),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}
