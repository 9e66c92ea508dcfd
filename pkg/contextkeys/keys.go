// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ClaimsKey contains *token.Claims for the validated request token
	// Set by: middleware.Enforcer after successful validation
	// Required by: SSO API handlers, permission checks
	ClaimsKey Key = "sso_claims"

	// PrincipalKey contains *identity.Principal resolved for the request
	// Set by: middleware.Enforcer (from claims or an upstream auth stage)
	// Required by: handlers that act on behalf of the caller
	PrincipalKey Key = "sso_principal"

	// TokenKey contains the raw signed token string used for the request
	// Set by: middleware.Enforcer after extraction
	TokenKey Key = "sso_token"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestID middleware
	// Used by: Logger, audit trail
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: server wiring at startup
	AuditLoggerKey Key = "audit_logger"
)

// Helper functions for type-safe context operations

// WithClaims adds validated token claims to the context
func WithClaims(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithPrincipal adds the resolved principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithToken adds the raw token string to the context
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, TokenKey, token)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// GetToken retrieves the raw token string from context
func GetToken(ctx context.Context) string {
	if token, ok := ctx.Value(TokenKey).(string); ok {
		return token
	}
	return ""
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
