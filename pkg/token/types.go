// Package token implements the SSO token lifecycle: issuance, validation,
// refresh, and revocation of signed bearer tokens carrying a principal and
// its permission snapshot.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type distinguishes access tokens from refresh tokens
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// RefreshSuffix is appended to an access token's jti to form the paired
// refresh token's jti.
const RefreshSuffix = "_refresh"

// Claims is the payload embedded in every signed token. The permission map
// is a point-in-time snapshot taken at issuance: later permission changes
// do not affect an already-issued access token until it expires or is
// revoked.
type Claims struct {
	jwt.RegisteredClaims

	PrincipalID int64           `json:"principal_id"`
	Username    string          `json:"username"`
	Email       string          `json:"email,omitempty"`
	FullName    string          `json:"full_name,omitempty"`
	EmployeeID  string          `json:"employee_id,omitempty"`
	Department  string          `json:"department,omitempty"`
	IsStaff     bool            `json:"is_staff"`
	IsSuperuser bool            `json:"is_superuser"`
	Permissions map[string]bool `json:"permissions"`
	TokenType   Type            `json:"token_type"`
}

// JTI returns the token's unique identifier
func (c *Claims) JTI() string {
	return c.ID
}

// BaseJTI returns the access-token jti, stripping the refresh suffix when
// the claims belong to a refresh token.
func (c *Claims) BaseJTI() string {
	if c.TokenType == TypeRefresh && len(c.ID) > len(RefreshSuffix) {
		return c.ID[:len(c.ID)-len(RefreshSuffix)]
	}
	return c.ID
}

// Record is the persisted metadata about an issued token pair, keyed by the
// access token's jti. The store, not the embedded expiry, is the source of
// truth for revocation.
type Record struct {
	JTI              string     `json:"jti"`
	PrincipalID      int64      `json:"principal_id"`
	AccessToken      string     `json:"-"`
	RefreshToken     string     `json:"-"`
	IssuedAt         time.Time  `json:"issued_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	IPAddress        string     `json:"ip_address,omitempty"`
	UserAgent        string     `json:"user_agent,omitempty"`
	IsActive         bool       `json:"is_active"`
	IsRevoked        bool       `json:"is_revoked"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
}

// Valid reports whether the record permits use at the given instant.
// Invariant: IsRevoked implies !IsActive, so the IsActive check alone
// covers both flags; both are kept for auditability.
func (r *Record) Valid(now time.Time) bool {
	return r.IsActive && !r.IsRevoked && now.Before(r.ExpiresAt)
}

// RequestMeta carries the request attribution stored with each issued token
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// IssuedPair is the result of a successful issuance
type IssuedPair struct {
	JTI          string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
