package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore persists sessions in a SQL database. The upsert and the absence
// of database-side time functions keep the statements portable between
// PostgreSQL and SQLite.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store backed by the given connection and ensures
// the sso_sessions table exists.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	store := &SQLStore{db: db}

	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure sso_sessions table: %w", err)
	}

	return store, nil
}

// ensureTable creates the sso_sessions table if it doesn't exist
func (s *SQLStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS sso_sessions (
		jti VARCHAR(64) NOT NULL,
		app_name VARCHAR(100) NOT NULL,
		app_base_url VARCHAR(255),
		principal_id BIGINT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		last_seen_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		ip_address VARCHAR(45),
		user_agent TEXT,
		PRIMARY KEY (jti, app_name)
	);

	CREATE INDEX IF NOT EXISTS idx_sso_sessions_principal_id ON sso_sessions(principal_id);
	CREATE INDEX IF NOT EXISTS idx_sso_sessions_last_seen_at ON sso_sessions(last_seen_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// Track creates the session on first sight and advances last_seen_at on
// every later call.
func (s *SQLStore) Track(ctx context.Context, sess *Session) error {
	query := `
		INSERT INTO sso_sessions (
			jti, app_name, app_base_url, principal_id,
			started_at, last_seen_at, ended_at,
			ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, $8)
		ON CONFLICT (jti, app_name) DO UPDATE SET last_seen_at = $9
	`

	_, err := s.db.ExecContext(ctx, query,
		sess.JTI, sess.AppName, sess.AppBaseURL, sess.PrincipalID,
		sess.StartedAt, sess.LastSeenAt,
		sess.IPAddress, sess.UserAgent,
		sess.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to track session: %w", err)
	}

	return nil
}

// ListActiveForPrincipal returns the principal's open sessions, most
// recently active first.
func (s *SQLStore) ListActiveForPrincipal(ctx context.Context, principalID int64) ([]*Session, error) {
	query := `
		SELECT
			jti, app_name, app_base_url, principal_id,
			started_at, last_seen_at, ended_at,
			ip_address, user_agent
		FROM sso_sessions
		WHERE principal_id = $1 AND ended_at IS NULL
		ORDER BY last_seen_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		sess := &Session{}
		var endedAt sql.NullTime
		var baseURL, ip, userAgent sql.NullString

		err := rows.Scan(
			&sess.JTI, &sess.AppName, &baseURL, &sess.PrincipalID,
			&sess.StartedAt, &sess.LastSeenAt, &endedAt,
			&ip, &userAgent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if endedAt.Valid {
			t := endedAt.Time
			sess.EndedAt = &t
		}
		sess.AppBaseURL = baseURL.String
		sess.IPAddress = ip.String
		sess.UserAgent = userAgent.String

		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// EndAllForJTI closes the token's open sessions
func (s *SQLStore) EndAllForJTI(ctx context.Context, jti string, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sso_sessions SET ended_at = $1 WHERE jti = $2 AND ended_at IS NULL",
		at, jti)
	if err != nil {
		return 0, fmt.Errorf("failed to end sessions: %w", err)
	}
	return result.RowsAffected()
}

// EndAllForPrincipal closes the principal's open sessions
func (s *SQLStore) EndAllForPrincipal(ctx context.Context, principalID int64, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sso_sessions SET ended_at = $1 WHERE principal_id = $2 AND ended_at IS NULL",
		at, principalID)
	if err != nil {
		return 0, fmt.Errorf("failed to end sessions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteEndedBefore removes sessions closed before the cutoff
func (s *SQLStore) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM sso_sessions WHERE ended_at IS NOT NULL AND ended_at < $1",
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete ended sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the database connection may be shared and its owner
// closes it.
func (s *SQLStore) Close() error { return nil }
