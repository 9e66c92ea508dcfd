package token

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db)
	require.NoError(t, err)
	return store
}

func testRecord(jti string, principalID int64, issuedAt time.Time) *Record {
	return &Record{
		JTI:          jti,
		PrincipalID:  principalID,
		AccessToken:  "access-" + jti,
		RefreshToken: "refresh-" + jti,
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.Add(time.Hour),
		IPAddress:    "10.0.0.1",
		UserAgent:    "test-agent",
		IsActive:     true,
	}
}

func TestSQLStoreCreateAndGet(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rec := testRecord("jti-1", 42, now)
	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, "jti-1", got.JTI)
	assert.Equal(t, int64(42), got.PrincipalID)
	assert.Equal(t, "access-jti-1", got.AccessToken)
	assert.Equal(t, "10.0.0.1", got.IPAddress)
	assert.True(t, got.IsActive)
	assert.False(t, got.IsRevoked)
	assert.Nil(t, got.LastUsedAt)
	assert.True(t, got.Valid(now))
}

func TestSQLStoreGetMissing(t *testing.T) {
	store := newSQLStore(t)

	_, err := store.Get(context.Background(), "no-such-jti")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSQLStoreTouch(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Create(ctx, testRecord("jti-1", 42, now)))
	require.NoError(t, store.Touch(ctx, "jti-1", now.Add(time.Minute)))

	got, err := store.Get(ctx, "jti-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.Equal(t, now.Add(time.Minute), got.LastUsedAt.UTC())
}

func TestSQLStoreRevoke(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Create(ctx, testRecord("jti-1", 42, now)))

	changed, err := store.Revoke(ctx, "jti-1", "logout", now)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := store.Get(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, got.IsRevoked)
	assert.False(t, got.IsActive)
	assert.Equal(t, "logout", got.RevocationReason)
	require.NotNil(t, got.RevokedAt)

	// Second revocation leaves the original reason in place
	changed, err = store.Revoke(ctx, "jti-1", "expired", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err = store.Get(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, "logout", got.RevocationReason)
}

func TestSQLStoreRevokeAllForPrincipal(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Create(ctx, testRecord("jti-1", 42, now)))
	require.NoError(t, store.Create(ctx, testRecord("jti-2", 42, now.Add(time.Second))))
	require.NoError(t, store.Create(ctx, testRecord("jti-3", 7, now)))

	jtis, err := store.RevokeAllForPrincipal(ctx, 42, "logout", now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"jti-1", "jti-2"}, jtis)

	// Every reported jti is actually revoked
	got, err := store.Get(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, got.IsRevoked)
	assert.False(t, got.IsActive)
	assert.Equal(t, "logout", got.RevocationReason)

	// The other principal's token is untouched
	got, err = store.Get(ctx, "jti-3")
	require.NoError(t, err)
	assert.False(t, got.IsRevoked)

	jtis, err = store.RevokeAllForPrincipal(ctx, 42, "logout", now)
	require.NoError(t, err)
	assert.Empty(t, jtis)
}

func TestSQLStoreListActiveForPrincipal(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Create(ctx, testRecord("jti-old", 42, now.Add(-time.Minute))))
	require.NoError(t, store.Create(ctx, testRecord("jti-new", 42, now)))

	expired := testRecord("jti-expired", 42, now.Add(-2*time.Hour))
	require.NoError(t, store.Create(ctx, expired))

	revoked := testRecord("jti-revoked", 42, now)
	require.NoError(t, store.Create(ctx, revoked))
	_, err := store.Revoke(ctx, "jti-revoked", "logout", now)
	require.NoError(t, err)

	records, err := store.ListActiveForPrincipal(ctx, 42, now)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "jti-new", records[0].JTI)
	assert.Equal(t, "jti-old", records[1].JTI)
}

func TestSQLStoreDeleteExpiredBefore(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Create(ctx, testRecord("jti-stale", 42, now.Add(-10*24*time.Hour))))
	require.NoError(t, store.Create(ctx, testRecord("jti-live", 42, now)))

	deleted, err := store.DeleteExpiredBefore(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.Get(ctx, "jti-stale")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = store.Get(ctx, "jti-live")
	assert.NoError(t, err)
}
