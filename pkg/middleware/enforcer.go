package middleware

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-sso/gatehouse/pkg/audit"
	"github.com/gatehouse-sso/gatehouse/pkg/contextkeys"
	"github.com/gatehouse-sso/gatehouse/pkg/httputil"
	"github.com/gatehouse-sso/gatehouse/pkg/identity"
	"github.com/gatehouse-sso/gatehouse/pkg/observability"
	"github.com/gatehouse-sso/gatehouse/pkg/permission"
	"github.com/gatehouse-sso/gatehouse/pkg/session"
	"github.com/gatehouse-sso/gatehouse/pkg/token"
)

// QueryTokenParam is the cross-app bridge parameter. A token arriving this
// way is persisted into the session cache so links only carry it once.
const QueryTokenParam = "sso_token"

// SessionCookieName identifies the browser session for the session cache
const SessionCookieName = "gatehouse_session"

// EnforcerConfig configures the per-request decision chain
type EnforcerConfig struct {
	// Enabled turns enforcement on. When false every request passes
	// through untouched.
	Enabled bool

	// AppName, when set, gates requests on the permission checker in
	// addition to token validity.
	AppName string

	// LoginPath receives rejected browser requests
	LoginPath string

	// CookieName is the token cookie read, set, and cleared by the
	// enforcer
	CookieName string

	// APIPrefixes mark paths rejected with JSON instead of a redirect
	APIPrefixes []string

	// CookieSecure marks issued cookies Secure
	CookieSecure bool
}

// Enforcer is the enforcement middleware. It holds no per-request state;
// everything it shares between requests lives in the session cache and the
// stores behind the token manager.
type Enforcer struct {
	cfg     EnforcerConfig
	manager *token.Manager
	checker *permission.Checker
	exempt  *ExemptList
	cache   SessionCache
	tracker session.Store
	auditor audit.Logger
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewEnforcer creates the enforcement middleware. The tracker, auditor,
// metrics, and logger may be nil; enforcement decisions do not depend on
// them.
func NewEnforcer(cfg EnforcerConfig, manager *token.Manager, checker *permission.Checker,
	exempt *ExemptList, cache SessionCache, tracker session.Store,
	auditor audit.Logger, metrics *observability.Metrics, logger *observability.Logger) *Enforcer {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "sso_token"
	}
	if exempt == nil {
		exempt = NewExemptList(nil)
	}
	if cache == nil {
		cache = NewMemorySessionCache(time.Hour)
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Enforcer{
		cfg:     cfg,
		manager: manager,
		checker: checker,
		exempt:  exempt,
		cache:   cache,
		tracker: tracker,
		auditor: auditor,
		metrics: metrics,
		logger:  logger,
	}
}

// tokenSource records which transport produced the candidate token
type tokenSource int

const (
	sourceNone tokenSource = iota
	sourceSession
	sourceCookie
	sourceBearer
	sourceQuery
)

// Handler wraps the next handler with the enforcement decision chain
func (e *Enforcer) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !e.cfg.Enabled {
			e.decision("disabled")
			next.ServeHTTP(w, r)
			return
		}

		if e.exempt.Match(r.URL.Path) {
			e.decision("exempt")
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		sessionID := e.ensureSessionID(w, r)

		// A trusted principal from an upstream stage skips extraction;
		// it only needs a token minted for cross-app hops.
		if principal := principalFromContext(ctx); principal != nil {
			e.serveTrusted(w, r, sessionID, principal, next)
			return
		}

		candidate, source := e.extract(ctx, sessionID, r)
		if candidate == "" {
			e.decision("no_token")
			e.reject(w, r, sessionID, "missing_token")
			return
		}

		result, err := e.manager.Validate(ctx, candidate)
		if err != nil {
			e.logger.WithError(err).Error("token validation failed")
			httputil.WriteServiceUnavailable(w, "token service unavailable")
			return
		}

		if !result.Valid() {
			// Drop the dead token so a retry does not loop on it
			if err := e.cache.ClearToken(ctx, sessionID); err != nil {
				e.logger.WithError(err).Warn("failed to clear session token")
			}
			e.clearCookie(w)
			e.decision(result.Status.String())
			e.reject(w, r, sessionID, result.Status.String())
			return
		}

		claims := result.Claims

		if source == sourceQuery {
			if err := e.cache.SetToken(ctx, sessionID, candidate); err != nil {
				e.logger.WithError(err).Warn("failed to persist query token into session")
			}
		}

		if e.cfg.AppName != "" && !e.checker.Check(claims, e.cfg.AppName) {
			e.permissionDenied(w, r, claims)
			return
		}

		e.track(ctx, claims, r)
		e.decision("allow")

		ctx = contextkeys.WithClaims(ctx, claims)
		ctx = contextkeys.WithToken(ctx, candidate)
		ctx = contextkeys.WithPrincipal(ctx, principalFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// serveTrusted handles step three: an already-authenticated principal gets
// a token minted transparently if the session has none yet.
func (e *Enforcer) serveTrusted(w http.ResponseWriter, r *http.Request, sessionID string,
	principal *identity.Principal, next http.Handler) {
	ctx := r.Context()

	existing, err := e.cache.GetToken(ctx, sessionID)
	if err != nil {
		e.logger.WithError(err).Warn("failed to read session token")
	}

	if existing == "" {
		pair, _, err := e.manager.Issue(ctx, principal, token.RequestMeta{
			IPAddress: httputil.ClientIP(r),
			UserAgent: r.UserAgent(),
		})
		if err != nil {
			e.logger.WithError(err).Error("transparent token issuance failed")
			httputil.WriteServiceUnavailable(w, "token service unavailable")
			return
		}
		if err := e.cache.SetToken(ctx, sessionID, pair.AccessToken); err != nil {
			e.logger.WithError(err).Warn("failed to store issued token")
		}
		e.setCookie(w, pair.AccessToken, pair.ExpiresAt)
		ctx = contextkeys.WithToken(ctx, pair.AccessToken)
		e.decision("issued")
	} else {
		ctx = contextkeys.WithToken(ctx, existing)
		e.decision("trusted")
	}

	next.ServeHTTP(w, r.WithContext(ctx))
}

// extract walks the transports in priority order
func (e *Enforcer) extract(ctx context.Context, sessionID string, r *http.Request) (string, tokenSource) {
	if tok, err := e.cache.GetToken(ctx, sessionID); err == nil && tok != "" {
		return tok, sourceSession
	}
	if cookie, err := r.Cookie(e.cfg.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, sourceCookie
	}
	if tok := httputil.BearerToken(r); tok != "" {
		return tok, sourceBearer
	}
	if tok := r.URL.Query().Get(QueryTokenParam); tok != "" {
		return tok, sourceQuery
	}
	return "", sourceNone
}

// reject sends a 401 to API clients and a login redirect to browsers
func (e *Enforcer) reject(w http.ResponseWriter, r *http.Request, sessionID, reason string) {
	if httputil.WantsJSON(r, e.cfg.APIPrefixes) {
		httputil.WriteReasonError(w, http.StatusUnauthorized, "authentication required", reason)
		return
	}

	target := e.cfg.LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())

	// The login page shows the warning once per browser session
	if first, err := e.cache.MarkWarned(r.Context(), sessionID); err == nil && first {
		target += "&warn=1"
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// permissionDenied rejects a valid token lacking rights for this app
func (e *Enforcer) permissionDenied(w http.ResponseWriter, r *http.Request, claims *token.Claims) {
	e.decision("denied")
	if e.metrics != nil {
		e.metrics.PermissionChecks.WithLabelValues("denied").Inc()
	}

	event := audit.NewEvent(r.Context(), audit.EventTypePermissionDenied, audit.EventStatusDenied)
	event.PrincipalID = &claims.PrincipalID
	event.Username = claims.Username
	event.JTI = claims.ID
	event.AppName = e.cfg.AppName
	event.IPAddress = httputil.ClientIP(r)
	event.UserAgent = r.UserAgent()
	audit.BestEffortLog(r.Context(), e.auditor, event)

	if httputil.WantsJSON(r, e.cfg.APIPrefixes) {
		httputil.WriteReasonError(w, http.StatusForbidden, "permission denied", "permission_denied")
		return
	}
	http.Redirect(w, r, e.cfg.LoginPath+"?denied="+url.QueryEscape(e.cfg.AppName), http.StatusFound)
}

// track records the request in the session tracker
func (e *Enforcer) track(ctx context.Context, claims *token.Claims, r *http.Request) {
	if e.tracker == nil {
		return
	}

	appName := e.cfg.AppName
	if appName == "" {
		appName = "gatehouse"
	}

	now := time.Now().UTC()
	err := e.tracker.Track(ctx, &session.Session{
		JTI:         claims.ID,
		AppName:     appName,
		AppBaseURL:  requestBaseURL(r),
		PrincipalID: claims.PrincipalID,
		StartedAt:   now,
		LastSeenAt:  now,
		IPAddress:   httputil.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		e.logger.WithError(err).Warn("failed to track session")
	}
}

// requestBaseURL reconstructs the scheme and host the request arrived at
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// ensureSessionID reads the session cookie, minting one when absent
func (e *Enforcer) ensureSessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   e.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (e *Enforcer) setCookie(w http.ResponseWriter, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     e.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   e.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (e *Enforcer) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     e.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   e.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (e *Enforcer) decision(kind string) {
	if e.metrics != nil {
		e.metrics.EnforcerDecisions.WithLabelValues(kind).Inc()
	}
}

// principalFromContext returns the upstream-authenticated principal, if any
func principalFromContext(ctx context.Context) *identity.Principal {
	if principal, ok := ctx.Value(contextkeys.PrincipalKey).(*identity.Principal); ok {
		return principal
	}
	return nil
}

// principalFromClaims rebuilds the principal view embedded in the claims.
// No identity provider call happens at request time.
func principalFromClaims(claims *token.Claims) *identity.Principal {
	return &identity.Principal{
		ID:          claims.PrincipalID,
		Username:    claims.Username,
		Email:       claims.Email,
		FullName:    claims.FullName,
		EmployeeID:  claims.EmployeeID,
		Department:  claims.Department,
		IsActive:    true,
		IsStaff:     claims.IsStaff,
		IsSuperuser: claims.IsSuperuser,
	}
}

// ClaimsFromContext returns the validated claims attached by the enforcer
func ClaimsFromContext(ctx context.Context) *token.Claims {
	if claims, ok := ctx.Value(contextkeys.ClaimsKey).(*token.Claims); ok {
		return claims
	}
	return nil
}

// PrincipalFromContext returns the principal attached by the enforcer or an
// upstream stage.
func PrincipalFromContext(ctx context.Context) *identity.Principal {
	return principalFromContext(ctx)
}
