package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// VerifyFunc checks a presented password against the stored credential
// value. The hashing scheme belongs to the identity store deployment, not
// to this service, so it is injected.
type VerifyFunc func(stored, presented string) bool

// SQLProvider reads principals and per-application permission flags from a
// relational identity schema.
type SQLProvider struct {
	db      *sql.DB
	verify  VerifyFunc
	timeout time.Duration
}

// NewSQLProvider creates a provider over the given database. timeout bounds
// every query; zero means 5 seconds.
func NewSQLProvider(db *sql.DB, verify VerifyFunc, timeout time.Duration) (*SQLProvider, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if verify == nil {
		return nil, fmt.Errorf("password verify function is required")
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &SQLProvider{db: db, verify: verify, timeout: timeout}, nil
}

// Authenticate verifies credentials against the users table.
func (p *SQLProvider) Authenticate(ctx context.Context, creds Credentials) (*Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		principal Principal
		password  string
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, employee_id, department,
			is_active, is_staff, is_superuser, last_login_at, password
		FROM users WHERE username = $1
	`, creds.Username).Scan(
		&principal.ID, &principal.Username, &principal.Email,
		&principal.FullName, &principal.EmployeeID, &principal.Department,
		&principal.IsActive, &principal.IsStaff, &principal.IsSuperuser,
		&principal.LastLoginAt, &password,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Same error as a wrong password so callers cannot probe usernames.
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query principal: %w", err)
	}

	if !p.verify(password, creds.Password) {
		return nil, ErrInvalidCredentials
	}
	if !principal.IsActive {
		return nil, ErrPrincipalInactive
	}

	return &principal, nil
}

// Lookup resolves a principal by ID.
func (p *SQLProvider) Lookup(ctx context.Context, id int64) (*Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var principal Principal
	err := p.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, employee_id, department,
			is_active, is_staff, is_superuser, last_login_at
		FROM users WHERE id = $1
	`, id).Scan(
		&principal.ID, &principal.Username, &principal.Email,
		&principal.FullName, &principal.EmployeeID, &principal.Department,
		&principal.IsActive, &principal.IsStaff, &principal.IsSuperuser,
		&principal.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query principal: %w", err)
	}

	return &principal, nil
}

// Permissions returns the principal's current per-application flags.
func (p *SQLProvider) Permissions(ctx context.Context, id int64) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT permission_key, granted
		FROM app_permissions WHERE user_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	perms := make(map[string]bool)
	for rows.Next() {
		var (
			key     string
			granted bool
		)
		if err := rows.Scan(&key, &granted); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms[key] = granted
	}

	return perms, rows.Err()
}
