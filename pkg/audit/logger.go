// Package audit provides the append-only record of security-relevant
// events: token lifecycle, logins, logouts, and permission denials.
package audit

import (
	"context"
	"time"

	"github.com/gatehouse-sso/gatehouse/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log appends an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
// if none is set
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// noOpLogger discards events (used when no logger is configured)
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *Event) error { return nil }
func (l *noOpLogger) Close() error                                { return nil }

// NewEvent creates an event stamped with the current time and the request
// ID from context, when present.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		Detail:    make(map[string]interface{}),
	}
}

// BestEffortLog writes the event with a bounded deadline and swallows the
// error. Used on failure paths where the response must not block on, or be
// replaced by, an audit write.
func BestEffortLog(ctx context.Context, logger Logger, event *Event) {
	if logger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_ = logger.Log(ctx, event)
}
