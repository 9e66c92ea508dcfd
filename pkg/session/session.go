// Package session tracks which applications each token has been seen at.
// A session row exists per (jti, application) pair and is touched on every
// enforced request, giving an activity trail alongside the token record.
package session

import (
	"context"
	"time"
)

// Session is one token's activity at one application
type Session struct {
	JTI         string     `json:"jti"`
	AppName     string     `json:"app_name"`
	AppBaseURL  string     `json:"app_base_url,omitempty"`
	PrincipalID int64      `json:"principal_id"`
	StartedAt   time.Time  `json:"started_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	IPAddress   string     `json:"ip_address,omitempty"`
	UserAgent   string     `json:"user_agent,omitempty"`
}

// Active reports whether the session has not been ended
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// Store persists sessions. Track is an upsert: the first call for a
// (jti, app) pair creates the row, later calls only advance last_seen_at.
type Store interface {
	// Track records activity for the pair, creating the session if needed
	Track(ctx context.Context, sess *Session) error

	// ListActiveForPrincipal returns the principal's open sessions ordered
	// by last activity, newest first.
	ListActiveForPrincipal(ctx context.Context, principalID int64) ([]*Session, error)

	// EndAllForJTI closes every open session for the token and returns the
	// number closed.
	EndAllForJTI(ctx context.Context, jti string, at time.Time) (int64, error)

	// EndAllForPrincipal closes every open session for the principal and
	// returns the number closed.
	EndAllForPrincipal(ctx context.Context, principalID int64, at time.Time) (int64, error)

	// DeleteEndedBefore removes sessions closed before the cutoff and
	// returns the number deleted.
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases store resources
	Close() error
}
