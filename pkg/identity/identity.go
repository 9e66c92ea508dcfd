// Package identity defines the port to the external identity and permission
// store. The token service never verifies passwords or stores permission
// data itself; it consumes both through the Provider interface.
package identity

import (
	"context"
	"errors"
	"time"
)

// Principal is the authenticated identity a token represents.
type Principal struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	FullName    string     `json:"full_name,omitempty"`
	EmployeeID  string     `json:"employee_id,omitempty"`
	Department  string     `json:"department,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Credentials carry a username/password pair for verification.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

var (
	// ErrInvalidCredentials is returned when the username/password pair does
	// not verify. Callers must not reveal which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPrincipalNotFound is returned when no principal exists for the
	// given identifier.
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrPrincipalInactive is returned when the principal exists but has
	// been deactivated.
	ErrPrincipalInactive = errors.New("principal inactive")
)

// Provider is the black-box identity and permission store.
//
// Permissions returns the principal's per-application capability flags as a
// map of permission key to granted. The map is a point-in-time read; the
// token layer snapshots it into claims at issuance.
type Provider interface {
	// Authenticate verifies credentials and returns the principal.
	// Returns ErrInvalidCredentials on a failed check and
	// ErrPrincipalInactive when the credentials verify but the account is
	// deactivated.
	Authenticate(ctx context.Context, creds Credentials) (*Principal, error)

	// Lookup resolves a principal by ID. Returns ErrPrincipalNotFound when
	// the principal no longer exists.
	Lookup(ctx context.Context, id int64) (*Principal, error)

	// Permissions returns the principal's current capability flags.
	Permissions(ctx context.Context, id int64) (map[string]bool, error)
}
