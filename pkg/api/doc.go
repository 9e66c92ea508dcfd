// Package api exposes the SSO operations over HTTP.
//
// # Overview
//
// This package implements the externally callable surface: obtain, refresh,
// validate, user info, permission check, logout, and session listing. Each
// handler is a narrow wrapper over the token manager with its own failure
// mapping; expected conditions come back as 400/401/403/404 with a
// machine-readable reason, and only infrastructure failures surface as 5xx.
//
// # Endpoints
//
//	POST /sso/token             credentials in, token pair + user out
//	POST /sso/refresh           refresh token in, new pair out
//	POST /sso/validate          typed {valid, reason?, user?} result, never 401
//	GET  /sso/user              principal + permission snapshot from the token
//	POST /sso/check-permission  {app_name} in, {has_permission} out
//	POST /sso/logout            revokes all tokens and sessions, idempotent
//	GET  /sso/sessions          the caller's live tokens and open sessions
//
// # Related Packages
//
//   - pkg/token: Issuance, validation, refresh, revocation
//   - pkg/middleware: Enforcement wrapped around protected routes
//   - pkg/audit: Event trail written by every handler
package api
