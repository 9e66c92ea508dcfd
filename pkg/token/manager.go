package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gatehouse-sso/gatehouse/pkg/audit"
	"github.com/gatehouse-sso/gatehouse/pkg/identity"
	"github.com/gatehouse-sso/gatehouse/pkg/session"
)

// Status classifies the outcome of a validation. A non-valid status is a
// classification, not an infrastructure error; callers branch on it to pick
// a response.
type Status int

const (
	StatusValid Status = iota
	StatusExpired
	StatusMalformed
	StatusRevoked
	StatusWrongType
)

// String returns the audit-facing name of the status
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusMalformed:
		return "malformed"
	case StatusRevoked:
		return "revoked"
	case StatusWrongType:
		return "wrong_type"
	default:
		return "unknown"
	}
}

// Validation is the tagged result of validating a token. Claims are set
// whenever the token parsed, including for expired and revoked tokens, so
// callers can attribute the failure.
type Validation struct {
	Status Status
	Claims *Claims
}

// Valid reports whether the token may be honored
func (v *Validation) Valid() bool {
	return v.Status == StatusValid
}

// ManagerOptions configures a Manager
type ManagerOptions struct {
	// Secret is the HMAC signing key. Required.
	Secret string

	// Algorithm selects the HMAC variant: HS256 (default), HS384, or HS512
	Algorithm string

	// Issuer is stamped into the iss claim
	Issuer string

	// AccessTTL is the access token lifetime (default 1h)
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime (default 24h)
	RefreshTTL time.Duration

	// CleanupRetention is how long expired records are kept before
	// CleanupExpired removes them (default 7 days). The window preserves
	// recently-expired rows for incident investigation.
	CleanupRetention time.Duration
}

const (
	DefaultAccessTTL        = time.Hour
	DefaultRefreshTTL       = 24 * time.Hour
	DefaultCleanupRetention = 7 * 24 * time.Hour
	DefaultIssuer           = "gatehouse"
)

// Manager implements the token lifecycle on top of a Store and an identity
// Provider. Revocation state lives in the store; the signed token alone is
// never sufficient proof of validity once a record exists for its jti.
type Manager struct {
	secret     []byte
	method     jwt.SigningMethod
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	retention  time.Duration

	store    Store
	identity identity.Provider
	auditor  audit.Logger
	sessions session.Store

	// now is replaceable in tests
	now func() time.Time
}

// NewManager creates a manager. The store and provider are required; the
// audit logger may be nil, in which case lifecycle events are not recorded.
func NewManager(opts ManagerOptions, store Store, provider identity.Provider, auditor audit.Logger) (*Manager, error) {
	if opts.Secret == "" {
		return nil, ErrSecretRequired
	}
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("identity provider is required")
	}

	method, err := signingMethod(opts.Algorithm)
	if err != nil {
		return nil, err
	}

	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}
	if opts.CleanupRetention <= 0 {
		opts.CleanupRetention = DefaultCleanupRetention
	}
	if opts.Issuer == "" {
		opts.Issuer = DefaultIssuer
	}

	return &Manager{
		secret:     []byte(opts.Secret),
		method:     method,
		issuer:     opts.Issuer,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		retention:  opts.CleanupRetention,
		store:      store,
		identity:   provider,
		auditor:    auditor,
		now:        time.Now,
	}, nil
}

// AttachSessionTracker wires a session store so revocation cascade-ends a
// token's open sessions. Sessions may live in a different store than token
// records, so the cascade is an explicit call here, not a database
// constraint.
func (m *Manager) AttachSessionTracker(tracker session.Store) {
	m.sessions = tracker
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

// Issue creates a signed access/refresh pair for the principal, snapshots
// its current permissions into the claims, and persists a token record.
func (m *Manager) Issue(ctx context.Context, principal *identity.Principal, meta RequestMeta) (*IssuedPair, *Claims, error) {
	if !principal.IsActive {
		return nil, nil, identity.ErrPrincipalInactive
	}

	perms, err := m.identity.Permissions(ctx, principal.ID)
	if err != nil {
		m.auditInfraFailure(ctx, audit.EventTypeTokenIssued, principal.ID, principal.Username, "", err)
		return nil, nil, fmt.Errorf("failed to read permissions: %w", err)
	}

	now := m.now().UTC()
	jti := uuid.NewString()

	accessClaims := m.buildClaims(principal, perms, jti, TypeAccess, now, now.Add(m.accessTTL))
	refreshClaims := m.buildClaims(principal, perms, jti+RefreshSuffix, TypeRefresh, now, now.Add(m.refreshTTL))

	accessToken, err := m.sign(accessClaims)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refreshToken, err := m.sign(refreshClaims)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	rec := &Record{
		JTI:          jti,
		PrincipalID:  principal.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IssuedAt:     now,
		ExpiresAt:    now.Add(m.accessTTL),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		IsActive:     true,
	}
	if err := m.store.Create(ctx, rec); err != nil {
		m.auditInfraFailure(ctx, audit.EventTypeTokenIssued, principal.ID, principal.Username, jti, err)
		return nil, nil, err
	}

	m.audit(ctx, audit.EventTypeTokenIssued, audit.EventStatusSuccess, principal.ID, principal.Username, jti, meta, "")

	pair := &IssuedPair{
		JTI:          jti,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    rec.ExpiresAt,
	}
	return pair, accessClaims, nil
}

func (m *Manager) buildClaims(p *identity.Principal, perms map[string]bool, jti string, typ Type, issued, expires time.Time) *Claims {
	snapshot := make(map[string]bool, len(perms))
	for k, v := range perms {
		snapshot[k] = v
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    m.issuer,
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		PrincipalID: p.ID,
		Username:    p.Username,
		Email:       p.Email,
		FullName:    p.FullName,
		EmployeeID:  p.EmployeeID,
		Department:  p.Department,
		IsStaff:     p.IsStaff,
		IsSuperuser: p.IsSuperuser,
		Permissions: snapshot,
		TokenType:   typ,
	}
}

func (m *Manager) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	return m.secret, nil
}

func (m *Manager) parse(tokenString string) (*Claims, Status) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{},
		m.keyFunc, jwt.WithValidMethods([]string{m.method.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && parsed != nil {
			// Signature verified; only the expiry check failed. Claims
			// stay available so callers can attribute the failure.
			if claims, ok := parsed.Claims.(*Claims); ok {
				return claims, StatusExpired
			}
		}
		return nil, StatusMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, StatusMalformed
	}
	return claims, StatusValid
}

// Validate classifies an access token. The store is consulted for
// revocation: a structurally valid, unexpired token is still rejected when
// its record was revoked. An infrastructure failure (store unreachable)
// returns an error rather than a classification.
func (m *Manager) Validate(ctx context.Context, tokenString string) (*Validation, error) {
	claims, status := m.parse(tokenString)
	if status != StatusValid {
		m.auditValidation(ctx, claims, status)
		return &Validation{Status: status, Claims: claims}, nil
	}

	if claims.TokenType != TypeAccess {
		m.auditValidation(ctx, claims, StatusWrongType)
		return &Validation{Status: StatusWrongType, Claims: claims}, nil
	}

	now := m.now().UTC()
	rec, err := m.store.Get(ctx, claims.ID)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		// No record: the token predates the store or the record aged out.
		// The signature and expiry already verified.
	case err != nil:
		m.auditInfraFailure(ctx, audit.EventTypeTokenValidated, claims.PrincipalID, claims.Username, claims.ID, err)
		return nil, err
	case rec.IsRevoked || !rec.IsActive:
		m.auditValidation(ctx, claims, StatusRevoked)
		return &Validation{Status: StatusRevoked, Claims: claims}, nil
	case !now.Before(rec.ExpiresAt):
		m.auditValidation(ctx, claims, StatusExpired)
		return &Validation{Status: StatusExpired, Claims: claims}, nil
	default:
		if err := m.store.Touch(ctx, claims.ID, now); err != nil {
			m.auditInfraFailure(ctx, audit.EventTypeTokenValidated, claims.PrincipalID, claims.Username, claims.ID, err)
			return nil, err
		}
	}

	m.auditValidation(ctx, claims, StatusValid)
	return &Validation{Status: StatusValid, Claims: claims}, nil
}

// Refresh exchanges a refresh token for a brand new pair. The principal is
// re-resolved and the permission snapshot rebuilt, so a refresh picks up
// permission changes that an outstanding access token would not. The prior
// access token is left alone: it stays independently valid until its own
// expiry or revocation.
func (m *Manager) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*IssuedPair, *Claims, error) {
	claims, status := m.parse(refreshToken)
	switch status {
	case StatusValid:
	case StatusExpired:
		m.audit(ctx, audit.EventTypeTokenRefreshed, audit.EventStatusFailure, claimsPrincipal(claims), claimsUsername(claims), claimsBase(claims), meta, "expired")
		return nil, nil, ErrTokenExpired
	default:
		m.audit(ctx, audit.EventTypeTokenRefreshed, audit.EventStatusFailure, 0, "", "", meta, "malformed")
		return nil, nil, ErrTokenMalformed
	}

	if claims.TokenType != TypeRefresh {
		m.audit(ctx, audit.EventTypeTokenRefreshed, audit.EventStatusFailure, claims.PrincipalID, claims.Username, claims.BaseJTI(), meta, "wrong_type")
		return nil, nil, ErrTokenTypeMismatch
	}

	baseJTI := claims.BaseJTI()
	rec, err := m.store.Get(ctx, baseJTI)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		m.auditInfraFailure(ctx, audit.EventTypeTokenRefreshed, claims.PrincipalID, claims.Username, baseJTI, err)
		return nil, nil, err
	}
	if rec != nil && (rec.IsRevoked || !rec.IsActive) {
		m.audit(ctx, audit.EventTypeTokenRefreshed, audit.EventStatusFailure, claims.PrincipalID, claims.Username, baseJTI, meta, "revoked")
		return nil, nil, ErrTokenRevoked
	}

	principal, err := m.identity.Lookup(ctx, claims.PrincipalID)
	if err != nil {
		m.audit(ctx, audit.EventTypeTokenRefreshed, audit.EventStatusFailure, claims.PrincipalID, claims.Username, baseJTI, meta, "principal_not_found")
		return nil, nil, err
	}
	if !principal.IsActive {
		m.audit(ctx, audit.EventTypeTokenRefreshed, audit.EventStatusFailure, principal.ID, principal.Username, baseJTI, meta, "principal_inactive")
		return nil, nil, identity.ErrPrincipalInactive
	}

	pair, newClaims, err := m.Issue(ctx, principal, meta)
	if err != nil {
		return nil, nil, err
	}

	event := audit.NewEvent(ctx, audit.EventTypeTokenRefreshed, audit.EventStatusSuccess)
	event.PrincipalID = &principal.ID
	event.Username = principal.Username
	event.JTI = pair.JTI
	event.IPAddress = meta.IPAddress
	event.UserAgent = meta.UserAgent
	event.Detail["previous_jti"] = baseJTI
	audit.BestEffortLog(ctx, m.auditor, event)

	return pair, newClaims, nil
}

// Revoke marks the jti revoked and ends the token's open sessions when a
// session tracker is attached. Revoking an unknown or already-revoked jti
// is a successful no-op.
func (m *Manager) Revoke(ctx context.Context, jti, reason string) (bool, error) {
	now := m.now().UTC()
	changed, err := m.store.Revoke(ctx, jti, reason, now)
	if err != nil {
		m.auditInfraFailure(ctx, audit.EventTypeTokenRevoked, 0, "", jti, err)
		return false, err
	}
	if !changed {
		return false, nil
	}

	if m.sessions != nil {
		if _, err := m.sessions.EndAllForJTI(ctx, jti, now); err != nil {
			// The token is already revoked; surface the partial failure.
			m.auditInfraFailure(ctx, audit.EventTypeTokenRevoked, 0, "", jti, err)
			return true, fmt.Errorf("failed to end sessions for revoked token: %w", err)
		}
	}

	m.audit(ctx, audit.EventTypeTokenRevoked, audit.EventStatusSuccess, 0, "", jti, RequestMeta{}, reason)
	return true, nil
}

// RevokeAllForPrincipal revokes every live token the principal holds and
// cascade-ends their open sessions. It returns the affected jtis and the
// number of sessions ended.
func (m *Manager) RevokeAllForPrincipal(ctx context.Context, principalID int64, reason string) ([]string, int64, error) {
	now := m.now().UTC()
	jtis, err := m.store.RevokeAllForPrincipal(ctx, principalID, reason, now)
	if err != nil {
		m.auditInfraFailure(ctx, audit.EventTypeTokenRevoked, principalID, "", "", err)
		return nil, 0, err
	}

	var ended int64
	if m.sessions != nil {
		ended, err = m.sessions.EndAllForPrincipal(ctx, principalID, now)
		if err != nil {
			m.auditInfraFailure(ctx, audit.EventTypeTokenRevoked, principalID, "", "", err)
			return jtis, 0, fmt.Errorf("failed to end sessions for principal: %w", err)
		}
	}

	if len(jtis) > 0 || ended > 0 {
		event := audit.NewEvent(ctx, audit.EventTypeTokenRevoked, audit.EventStatusSuccess)
		event.PrincipalID = &principalID
		event.Reason = reason
		event.Detail["revoked_count"] = len(jtis)
		event.Detail["jtis"] = jtis
		event.Detail["ended_sessions"] = ended
		audit.BestEffortLog(ctx, m.auditor, event)
	}
	return jtis, ended, nil
}

// ListActiveForPrincipal returns the principal's live token records
func (m *Manager) ListActiveForPrincipal(ctx context.Context, principalID int64) ([]*Record, error) {
	return m.store.ListActiveForPrincipal(ctx, principalID, m.now().UTC())
}

// CleanupExpired deletes records that have been expired for longer than the
// retention window.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := m.now().UTC().Add(-m.retention)
	return m.store.DeleteExpiredBefore(ctx, cutoff)
}

// AccessTTL returns the configured access token lifetime
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

func (m *Manager) audit(ctx context.Context, eventType audit.EventType, status audit.EventStatus, principalID int64, username, jti string, meta RequestMeta, reason string) {
	event := audit.NewEvent(ctx, eventType, status)
	if principalID != 0 {
		event.PrincipalID = &principalID
	}
	event.Username = username
	event.JTI = jti
	event.IPAddress = meta.IPAddress
	event.UserAgent = meta.UserAgent
	event.Reason = reason
	audit.BestEffortLog(ctx, m.auditor, event)
}

// auditInfraFailure records that an operation failed against a backing
// store before the error propagates to the caller.
func (m *Manager) auditInfraFailure(ctx context.Context, eventType audit.EventType, principalID int64, username, jti string, opErr error) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusError)
	if principalID != 0 {
		event.PrincipalID = &principalID
	}
	event.Username = username
	event.JTI = jti
	event.Reason = "infrastructure_failure"
	event.Detail["error"] = opErr.Error()
	audit.BestEffortLog(ctx, m.auditor, event)
}

func (m *Manager) auditValidation(ctx context.Context, claims *Claims, status Status) {
	eventStatus := audit.EventStatusSuccess
	reason := ""
	if status != StatusValid {
		eventStatus = audit.EventStatusFailure
		reason = status.String()
	}
	m.audit(ctx, audit.EventTypeTokenValidated, eventStatus,
		claimsPrincipal(claims), claimsUsername(claims), claimsBase(claims), RequestMeta{}, reason)
}

func claimsPrincipal(c *Claims) int64 {
	if c == nil {
		return 0
	}
	return c.PrincipalID
}

func claimsUsername(c *Claims) string {
	if c == nil {
		return ""
	}
	return c.Username
}

func claimsBase(c *Claims) string {
	if c == nil {
		return ""
	}
	return c.BaseJTI()
}
