// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// IdentityIDKey is the context key for the authenticated identity ID
	IdentityIDKey contextKey = "identity_id"
	// BrowserSessionKey is the context key for the browser session ID
	BrowserSessionKey contextKey = "browser_session"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Tests use it with io.Discard.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") || strings.EqualFold(env, "test") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter("test", io.Discard)
}

// WithContext returns a logger with context values extracted.
// Supports request_id, identity_id and browser_session from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if identityID, ok := ctx.Value(IdentityIDKey).(string); ok && identityID != "" {
		newLogger = newLogger.WithIdentityID(identityID)
	}

	if sessionID, ok := ctx.Value(BrowserSessionKey).(string); ok && sessionID != "" {
		newLogger = newLogger.WithBrowserSession(sessionID)
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// WithIdentityID returns a logger with identity ID
func (l *Logger) WithIdentityID(identityID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("identity_id", identityID)),
	}
}

// WithBrowserSession returns a logger tagged with a shortened browser session ID.
// Only a prefix is logged since the full value is a bearer credential.
func (l *Logger) WithBrowserSession(sessionID string) *Logger {
	if len(sessionID) > 8 {
		sessionID = sessionID[:8]
	}
	return &Logger{
		Logger: l.With(slog.String("browser_session", sessionID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// AuthEvent logs authentication events
func (l *Logger) AuthEvent(event, email string, success bool, reason string) {
	if success {
		l.Info("auth_event",
			slog.String("event", event),
			slog.String("email", email),
			slog.Bool("success", success),
		)
	} else {
		l.Warn("auth_event",
			slog.String("event", event),
			slog.String("email", email),
			slog.Bool("success", success),
			slog.String("reason", reason),
		)
	}
}

// ContextResolved logs a completed context resolution attempt.
func (l *Logger) ContextResolved(identityID, state string, memberships, roles int, activeCompany string) {
	l.Info("context_resolved",
		slog.String("identity_id", identityID),
		slog.String("state", state),
		slog.Int("memberships", memberships),
		slog.Int("roles", roles),
		slog.String("active_company", activeCompany),
	)
}

// ContextPartial logs a sub-fetch failure that degraded the resolved context.
func (l *Logger) ContextPartial(identityID, target string, err error) {
	l.Warn("context_partial",
		slog.String("identity_id", identityID),
		slog.String("target", target),
		slog.String("error", err.Error()),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}

// AuditEvent logs a context lifecycle change for the audit trail.
func (l *Logger) AuditEvent(event, identityID string, attrs ...any) {
	args := append([]any{
		slog.String("event", event),
		slog.String("identity_id", identityID),
	}, attrs...)
	l.Info("audit_event", args...)
}
