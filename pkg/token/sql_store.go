package token

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore persists token records in a SQL database. The schema avoids
// database-side time functions so the same statements run against
// PostgreSQL in production and SQLite in tests.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store backed by the given connection and ensures
// the sso_tokens table exists.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	store := &SQLStore{db: db}

	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure sso_tokens table: %w", err)
	}

	return store, nil
}

// ensureTable creates the sso_tokens table if it doesn't exist
func (s *SQLStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS sso_tokens (
		jti VARCHAR(64) PRIMARY KEY,
		principal_id BIGINT NOT NULL,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		issued_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		last_used_at TIMESTAMP,
		ip_address VARCHAR(45),
		user_agent TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
		revoked_at TIMESTAMP,
		revocation_reason VARCHAR(100)
	);

	CREATE INDEX IF NOT EXISTS idx_sso_tokens_principal_id ON sso_tokens(principal_id);
	CREATE INDEX IF NOT EXISTS idx_sso_tokens_expires_at ON sso_tokens(expires_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// Create inserts a new token record
func (s *SQLStore) Create(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO sso_tokens (
			jti, principal_id, access_token, refresh_token,
			issued_at, expires_at, last_used_at,
			ip_address, user_agent,
			is_active, is_revoked, revoked_at, revocation_reason
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9,
			$10, $11, $12, $13
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.JTI, rec.PrincipalID, rec.AccessToken, rec.RefreshToken,
		rec.IssuedAt, rec.ExpiresAt, rec.LastUsedAt,
		rec.IPAddress, rec.UserAgent,
		rec.IsActive, rec.IsRevoked, rec.RevokedAt, rec.RevocationReason,
	)
	if err != nil {
		return fmt.Errorf("failed to create token record: %w", err)
	}

	return nil
}

// Get returns the record for the given jti
func (s *SQLStore) Get(ctx context.Context, jti string) (*Record, error) {
	query := `
		SELECT
			jti, principal_id, access_token, refresh_token,
			issued_at, expires_at, last_used_at,
			ip_address, user_agent,
			is_active, is_revoked, revoked_at, revocation_reason
		FROM sso_tokens
		WHERE jti = $1
	`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, jti))
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token record: %w", err)
	}

	return rec, nil
}

// Touch updates the record's last-used timestamp
func (s *SQLStore) Touch(ctx context.Context, jti string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sso_tokens SET last_used_at = $1 WHERE jti = $2", at, jti)
	if err != nil {
		return fmt.Errorf("failed to touch token record: %w", err)
	}
	return nil
}

// Revoke marks the record revoked. Already-revoked records are left
// untouched so the original revocation time and reason survive.
func (s *SQLStore) Revoke(ctx context.Context, jti, reason string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sso_tokens
		SET is_active = FALSE, is_revoked = TRUE, revoked_at = $1, revocation_reason = $2
		WHERE jti = $3 AND is_revoked = FALSE
	`, at, reason, jti)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RevokeAllForPrincipal revokes every unrevoked record for the principal.
// The single UPDATE ... RETURNING keeps the revoked rows and the reported
// jtis identical under concurrent issuance.
func (s *SQLStore) RevokeAllForPrincipal(ctx context.Context, principalID int64, reason string, at time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE sso_tokens
		SET is_active = FALSE, is_revoked = TRUE, revoked_at = $1, revocation_reason = $2
		WHERE principal_id = $3 AND is_revoked = FALSE
		RETURNING jti
	`, at, reason, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke token records: %w", err)
	}
	defer rows.Close()

	jtis := make([]string, 0)
	for rows.Next() {
		var jti string
		if err := rows.Scan(&jti); err != nil {
			return nil, fmt.Errorf("failed to scan jti: %w", err)
		}
		jtis = append(jtis, jti)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token records: %w", err)
	}

	return jtis, nil
}

// ListActiveForPrincipal returns the principal's live records, newest first
func (s *SQLStore) ListActiveForPrincipal(ctx context.Context, principalID int64, now time.Time) ([]*Record, error) {
	query := `
		SELECT
			jti, principal_id, access_token, refresh_token,
			issued_at, expires_at, last_used_at,
			ip_address, user_agent,
			is_active, is_revoked, revoked_at, revocation_reason
		FROM sso_tokens
		WHERE principal_id = $1 AND is_revoked = FALSE AND is_active = TRUE AND expires_at > $2
		ORDER BY issued_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, principalID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list token records: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token records: %w", err)
	}

	return records, nil
}

// DeleteExpiredBefore removes records whose expiry precedes the cutoff
func (s *SQLStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM sso_tokens WHERE expires_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired token records: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the database connection may be shared and its owner
// closes it.
func (s *SQLStore) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec := &Record{}
	var lastUsed, revokedAt sql.NullTime
	var ip, userAgent, reason sql.NullString

	err := row.Scan(
		&rec.JTI, &rec.PrincipalID, &rec.AccessToken, &rec.RefreshToken,
		&rec.IssuedAt, &rec.ExpiresAt, &lastUsed,
		&ip, &userAgent,
		&rec.IsActive, &rec.IsRevoked, &revokedAt, &reason,
	)
	if err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		t := lastUsed.Time
		rec.LastUsedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	rec.IPAddress = ip.String
	rec.UserAgent = userAgent.String
	rec.RevocationReason = reason.String

	return rec, nil
}
