package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gatehouse-sso/gatehouse/pkg/audit"
	"github.com/gatehouse-sso/gatehouse/pkg/httputil"
	"github.com/gatehouse-sso/gatehouse/pkg/identity"
	"github.com/gatehouse-sso/gatehouse/pkg/middleware"
	"github.com/gatehouse-sso/gatehouse/pkg/observability"
	"github.com/gatehouse-sso/gatehouse/pkg/permission"
	"github.com/gatehouse-sso/gatehouse/pkg/session"
	"github.com/gatehouse-sso/gatehouse/pkg/token"
)

// DefaultIdentityTimeout bounds identity provider calls made by handlers
const DefaultIdentityTimeout = 5 * time.Second

// SSOHandlers implements the SSO HTTP surface
type SSOHandlers struct {
	manager  *token.Manager
	provider identity.Provider
	checker  *permission.Checker
	sessions session.Store
	auditor  audit.Logger
	limiter  middleware.Limiter
	metrics  *observability.Metrics
	logger   *observability.Logger

	identityTimeout time.Duration
}

// NewSSOHandlers creates the SSO handlers. The limiter, auditor, metrics,
// and logger may be nil.
func NewSSOHandlers(manager *token.Manager, provider identity.Provider, checker *permission.Checker,
	sessions session.Store, auditor audit.Logger, limiter middleware.Limiter,
	metrics *observability.Metrics, logger *observability.Logger) *SSOHandlers {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &SSOHandlers{
		manager:         manager,
		provider:        provider,
		checker:         checker,
		sessions:        sessions,
		auditor:         auditor,
		limiter:         limiter,
		metrics:         metrics,
		logger:          logger,
		identityTimeout: DefaultIdentityTimeout,
	}
}

// SetIdentityTimeout overrides the identity provider call deadline
func (h *SSOHandlers) SetIdentityTimeout(d time.Duration) {
	if d > 0 {
		h.identityTimeout = d
	}
}

// RegisterRoutes registers the SSO routes
func (h *SSOHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sso/token", h.obtainToken).Methods("POST")
	router.HandleFunc("/sso/refresh", h.refreshToken).Methods("POST")
	router.HandleFunc("/sso/validate", h.validateToken).Methods("POST")
	router.HandleFunc("/sso/user", h.userInfo).Methods("GET")
	router.HandleFunc("/sso/check-permission", h.checkPermission).Methods("POST")
	router.HandleFunc("/sso/logout", h.logout).Methods("POST")
	router.HandleFunc("/sso/sessions", h.listSessions).Methods("GET")
}

// meta builds the request attribution stored with issued tokens
func meta(r *http.Request) token.RequestMeta {
	return token.RequestMeta{
		IPAddress: httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// obtainToken handles POST /sso/token
func (h *SSOHandlers) obtainToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	clientIP := httputil.ClientIP(r)
	if h.limiter != nil {
		allowed, err := h.limiter.Allow(r.Context(), "ip:"+clientIP)
		if err != nil {
			h.logger.WithError(err).Warn("login rate limiter unavailable")
		}
		if !allowed {
			h.countLogin("rate_limited")
			httputil.WriteTooManyRequests(w, "too many login attempts")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.identityTimeout)
	defer cancel()

	principal, err := h.provider.Authenticate(ctx, identity.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.loginFailed(r, req.Username, err)
		switch {
		case errors.Is(err, identity.ErrPrincipalInactive):
			httputil.WriteReasonError(w, http.StatusForbidden, "account is inactive", "principal_inactive")
		case errors.Is(err, identity.ErrInvalidCredentials):
			// One message for both halves so usernames cannot be probed
			httputil.WriteReasonError(w, http.StatusUnauthorized, "invalid credentials", "invalid_credentials")
		default:
			h.logger.WithError(err).Error("identity provider failure during login")
			httputil.WriteServiceUnavailable(w, "identity provider unavailable")
		}
		return
	}

	pair, _, err := h.manager.Issue(r.Context(), principal, meta(r))
	if err != nil {
		h.logger.WithError(err).Error("token issuance failed")
		httputil.WriteServiceUnavailable(w, "token service unavailable")
		return
	}

	h.countLogin("success")
	if h.metrics != nil {
		h.metrics.TokensIssued.Inc()
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeLoginSuccess, audit.EventStatusSuccess)
	event.PrincipalID = &principal.ID
	event.Username = principal.Username
	event.JTI = pair.JTI
	event.IPAddress = clientIP
	event.UserAgent = r.UserAgent()
	audit.BestEffortLog(r.Context(), h.auditor, event)

	httputil.WriteSuccess(w, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    pair.ExpiresAt,
		User:         principal,
	})
}

// loginFailed emits the login_failed audit event. The principal reference
// stays empty: a failed login may not resolve to one.
func (h *SSOHandlers) loginFailed(r *http.Request, username string, err error) {
	outcome := "invalid_credentials"
	if errors.Is(err, identity.ErrPrincipalInactive) {
		outcome = "principal_inactive"
	} else if !errors.Is(err, identity.ErrInvalidCredentials) {
		outcome = "provider_error"
	}
	h.countLogin(outcome)

	event := audit.NewEvent(r.Context(), audit.EventTypeLoginFailed, audit.EventStatusFailure)
	event.Username = username
	event.IPAddress = httputil.ClientIP(r)
	event.UserAgent = r.UserAgent()
	event.Reason = outcome
	audit.BestEffortLog(r.Context(), h.auditor, event)
}

func (h *SSOHandlers) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

// refreshToken handles POST /sso/refresh
func (h *SSOHandlers) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Refresh, "refresh") {
		return
	}

	pair, claims, err := h.manager.Refresh(r.Context(), req.Refresh, meta(r))
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			httputil.WriteReasonError(w, http.StatusUnauthorized, "refresh token expired", "expired")
		case errors.Is(err, token.ErrTokenMalformed):
			httputil.WriteReasonError(w, http.StatusUnauthorized, "refresh token invalid", "malformed")
		case errors.Is(err, token.ErrTokenTypeMismatch):
			httputil.WriteReasonError(w, http.StatusUnauthorized, "not a refresh token", "wrong_type")
		case errors.Is(err, token.ErrTokenRevoked):
			httputil.WriteReasonError(w, http.StatusUnauthorized, "refresh token revoked", "revoked")
		case errors.Is(err, identity.ErrPrincipalNotFound):
			httputil.WriteReasonError(w, http.StatusNotFound, "principal no longer exists", "principal_not_found")
		case errors.Is(err, identity.ErrPrincipalInactive):
			httputil.WriteReasonError(w, http.StatusForbidden, "account is inactive", "principal_inactive")
		default:
			h.logger.WithError(err).Error("token refresh failed")
			httputil.WriteServiceUnavailable(w, "token service unavailable")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.TokensRefreshed.Inc()
	}

	httputil.WriteSuccess(w, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    pair.ExpiresAt,
		User:         principalView(claims),
	})
}

// validateToken handles POST /sso/validate. It never rejects: every
// failure is a typed valid:false result.
func (h *SSOHandlers) validateToken(w http.ResponseWriter, r *http.Request) {
	candidate := httputil.BearerToken(r)
	if candidate == "" {
		var req ValidateRequest
		if err := httputil.ParseJSON(r, &req); err == nil {
			candidate = req.Token
		}
	}
	if candidate == "" {
		httputil.WriteSuccess(w, ValidateResponse{Valid: false, Reason: "missing_token"})
		return
	}

	result, err := h.manager.Validate(r.Context(), candidate)
	if err != nil {
		h.logger.WithError(err).Error("token validation failed")
		httputil.WriteServiceUnavailable(w, "token service unavailable")
		return
	}

	h.countValidation(result.Status)

	if !result.Valid() {
		httputil.WriteSuccess(w, ValidateResponse{Valid: false, Reason: result.Status.String()})
		return
	}

	httputil.WriteSuccess(w, ValidateResponse{
		Valid: true,
		User:  principalView(result.Claims),
	})
}

func (h *SSOHandlers) countValidation(status token.Status) {
	if h.metrics != nil {
		h.metrics.TokenValidations.WithLabelValues(status.String()).Inc()
	}
}

// requireValidToken extracts and validates the bearer token, writing the
// 401 itself when the token is missing or not valid.
func (h *SSOHandlers) requireValidToken(w http.ResponseWriter, r *http.Request) *token.Claims {
	candidate := httputil.BearerToken(r)
	if candidate == "" {
		httputil.WriteReasonError(w, http.StatusUnauthorized, "authentication required", "missing_token")
		return nil
	}

	result, err := h.manager.Validate(r.Context(), candidate)
	if err != nil {
		h.logger.WithError(err).Error("token validation failed")
		httputil.WriteServiceUnavailable(w, "token service unavailable")
		return nil
	}

	h.countValidation(result.Status)

	if !result.Valid() {
		httputil.WriteReasonError(w, http.StatusUnauthorized, "token not accepted", result.Status.String())
		return nil
	}
	return result.Claims
}

// userInfo handles GET /sso/user
func (h *SSOHandlers) userInfo(w http.ResponseWriter, r *http.Request) {
	claims := h.requireValidToken(w, r)
	if claims == nil {
		return
	}

	httputil.WriteSuccess(w, UserInfoResponse{
		User:        principalView(claims),
		Permissions: claims.Permissions,
	})
}

// checkPermission handles POST /sso/check-permission
func (h *SSOHandlers) checkPermission(w http.ResponseWriter, r *http.Request) {
	claims := h.requireValidToken(w, r)
	if claims == nil {
		return
	}

	var req CheckPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.AppName, "app_name") {
		return
	}

	allowed := h.checker.Check(claims, req.AppName)

	if h.metrics != nil {
		result := "granted"
		if !allowed {
			result = "denied"
		}
		h.metrics.PermissionChecks.WithLabelValues(result).Inc()
	}

	if !allowed {
		event := audit.NewEvent(r.Context(), audit.EventTypePermissionDenied, audit.EventStatusDenied)
		event.PrincipalID = &claims.PrincipalID
		event.Username = claims.Username
		event.JTI = claims.ID
		event.AppName = req.AppName
		event.IPAddress = httputil.ClientIP(r)
		audit.BestEffortLog(r.Context(), h.auditor, event)
	}

	httputil.WriteSuccess(w, CheckPermissionResponse{
		HasPermission: allowed,
		AppName:       req.AppName,
	})
}

// logout handles POST /sso/logout. A second logout with the now-revoked
// token still succeeds and reports zero revocations.
func (h *SSOHandlers) logout(w http.ResponseWriter, r *http.Request) {
	candidate := httputil.BearerToken(r)
	if candidate == "" {
		httputil.WriteReasonError(w, http.StatusUnauthorized, "authentication required", "missing_token")
		return
	}

	result, err := h.manager.Validate(r.Context(), candidate)
	if err != nil {
		h.logger.WithError(err).Error("token validation failed")
		httputil.WriteServiceUnavailable(w, "token service unavailable")
		return
	}

	// Revoked is accepted here so a repeated logout stays a no-op rather
	// than an error.
	if result.Status != token.StatusValid && result.Status != token.StatusRevoked {
		httputil.WriteReasonError(w, http.StatusUnauthorized, "token not accepted", result.Status.String())
		return
	}
	claims := result.Claims

	// The manager cascade-ends the principal's open sessions along with
	// the token records.
	jtis, ended, err := h.manager.RevokeAllForPrincipal(r.Context(), claims.PrincipalID, "logout")
	if err != nil {
		h.logger.WithError(err).Error("logout revocation failed")
		httputil.WriteServiceUnavailable(w, "token service unavailable")
		return
	}

	if h.metrics != nil {
		h.metrics.TokensRevoked.Add(float64(len(jtis)))
	}

	if len(jtis) > 0 || ended > 0 {
		event := audit.NewEvent(r.Context(), audit.EventTypeLogout, audit.EventStatusSuccess)
		event.PrincipalID = &claims.PrincipalID
		event.Username = claims.Username
		event.IPAddress = httputil.ClientIP(r)
		event.Detail["revoked_tokens"] = len(jtis)
		event.Detail["ended_sessions"] = ended
		audit.BestEffortLog(r.Context(), h.auditor, event)
	}

	httputil.WriteSuccess(w, LogoutResponse{
		RevokedTokens: int64(len(jtis)),
		EndedSessions: ended,
	})
}

// listSessions handles GET /sso/sessions
func (h *SSOHandlers) listSessions(w http.ResponseWriter, r *http.Request) {
	claims := h.requireValidToken(w, r)
	if claims == nil {
		return
	}

	records, err := h.manager.ListActiveForPrincipal(r.Context(), claims.PrincipalID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list token records")
		httputil.WriteServiceUnavailable(w, "token service unavailable")
		return
	}

	tokens := make([]TokenInfo, 0, len(records))
	for _, rec := range records {
		tokens = append(tokens, TokenInfo{
			JTI:        rec.JTI,
			IssuedAt:   rec.IssuedAt,
			ExpiresAt:  rec.ExpiresAt,
			LastUsedAt: rec.LastUsedAt,
			IPAddress:  rec.IPAddress,
			UserAgent:  rec.UserAgent,
		})
	}

	open := make([]*session.Session, 0)
	if h.sessions != nil {
		open, err = h.sessions.ListActiveForPrincipal(r.Context(), claims.PrincipalID)
		if err != nil {
			h.logger.WithError(err).Error("failed to list sessions")
			httputil.WriteServiceUnavailable(w, "session store unavailable")
			return
		}
	}

	httputil.WriteSuccess(w, SessionsResponse{Tokens: tokens, Sessions: open})
}

// principalView rebuilds the principal as embedded in the claims
func principalView(claims *token.Claims) *identity.Principal {
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
