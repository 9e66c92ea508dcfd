// Package middleware provides the request-time enforcement layer: token
// extraction, validation, rejection, and login rate limiting.
//
// # Overview
//
// This package decides, per request, whether to pass through, authenticate
// and continue, or reject. The decision is a fixed sequence with no state
// beyond the session cache, so the middleware is safe under concurrency.
//
// # Middleware Components
//
// Enforcer: The per-request decision chain
//
//	enforcer := middleware.NewEnforcer(cfg, manager, checker, exempt, cache, tracker, auditor, metrics, logger)
//	router.Use(enforcer.Handler)
//
// ExemptList: Path patterns that skip enforcement, optionally hot-reloaded
// from a YAML file
//
//	exempt := middleware.NewExemptList([]string{"/health/", "/login"})
//	exempt.Watch(ctx, "/etc/gatehouse/exempt.yaml", logger)
//
// SessionCache: Server-side token storage keyed by a session cookie
//
//	cache := middleware.NewRedisSessionCache(redisClient, time.Hour)
//	cache := middleware.NewMemorySessionCache(time.Hour)
//
// LoginLimiter: Token-bucket limits on credential attempts
//
//	limiter := middleware.NewLoginLimiter(10, 5) // 10/min, 5 burst
//	limiter := middleware.NewDistributedLoginLimiter(redisClient, 10)
//
// # Token Extraction Order
//
// Session cache, then cookie, then Authorization: Bearer header, then the
// ?sso_token= query parameter. A query-carried token is persisted into the
// session cache so cross-app redirect links only need it once.
//
// # Related Packages
//
//   - pkg/token: Validation and transparent issuance
//   - pkg/permission: Per-application access checks
//   - pkg/session: Activity tracking for authenticated requests
package middleware
