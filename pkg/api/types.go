package api

import (
	"time"

	"github.com/gatehouse-sso/gatehouse/pkg/identity"
	"github.com/gatehouse-sso/gatehouse/pkg/session"
)

// TokenRequest carries login credentials
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the issued pair plus the principal it represents
type TokenResponse struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	TokenType    string              `json:"token_type"`
	ExpiresAt    time.Time           `json:"expires_at"`
	User         *identity.Principal `json:"user"`
}

// RefreshRequest carries the refresh token to exchange
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// ValidateRequest optionally carries the token in the body when no
// Authorization header is sent.
type ValidateRequest struct {
	Token string `json:"token"`
}

// ValidateResponse is always 200; failure is a typed valid:false result
type ValidateResponse struct {
	Valid  bool                `json:"valid"`
	Reason string              `json:"reason,omitempty"`
	User   *identity.Principal `json:"user,omitempty"`
}

// UserInfoResponse is the principal plus the permission snapshot embedded
// in the presented token.
type UserInfoResponse struct {
	User        *identity.Principal `json:"user"`
	Permissions map[string]bool     `json:"permissions"`
}

// CheckPermissionRequest names the application to check
type CheckPermissionRequest struct {
	AppName string `json:"app_name"`
}

// CheckPermissionResponse reports the check result
type CheckPermissionResponse struct {
	HasPermission bool   `json:"has_permission"`
	AppName       string `json:"app_name"`
}

// LogoutResponse reports how many tokens the logout revoked. Zero means
// the principal had already logged out.
type LogoutResponse struct {
	RevokedTokens int64 `json:"revoked_tokens"`
	EndedSessions int64 `json:"ended_sessions"`
}

// TokenInfo is the caller-visible view of an active token record
type TokenInfo struct {
	JTI        string     `json:"jti"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
}

// SessionsResponse lists the caller's live tokens and open sessions
type SessionsResponse struct {
	Tokens   []TokenInfo        `json:"tokens"`
	Sessions []*session.Session `json:"sessions"`
}
