package token

import (
	"context"
	"time"
)

// Store persists token records. Implementations must treat revocation as
// idempotent: revoking an already-revoked jti reports no change rather
// than an error.
type Store interface {
	// Create inserts a new record
	Create(ctx context.Context, rec *Record) error

	// Get returns the record for the given jti, or ErrRecordNotFound
	Get(ctx context.Context, jti string) (*Record, error)

	// Touch updates the record's last-used timestamp
	Touch(ctx context.Context, jti string, at time.Time) error

	// Revoke marks the record revoked and inactive. It reports whether the
	// record transitioned from valid to revoked.
	Revoke(ctx context.Context, jti, reason string, at time.Time) (bool, error)

	// RevokeAllForPrincipal revokes every active record belonging to the
	// principal and returns the jtis that transitioned.
	RevokeAllForPrincipal(ctx context.Context, principalID int64, reason string, at time.Time) ([]string, error)

	// ListActiveForPrincipal returns the principal's unrevoked, unexpired
	// records ordered by issuance time, newest first.
	ListActiveForPrincipal(ctx context.Context, principalID int64, now time.Time) ([]*Record, error)

	// DeleteExpiredBefore removes records whose expiry precedes the cutoff
	// and returns the number deleted.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases store resources
	Close() error
}
