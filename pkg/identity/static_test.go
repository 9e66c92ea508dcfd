package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededProvider() *StaticProvider {
	p := NewStaticProvider()
	p.Add(Principal{
		ID:       42,
		Username: "jdoe",
		Email:    "jdoe@example.com",
		IsActive: true,
	}, "hunter2", map[string]bool{"wiki_access": true})
	p.Add(Principal{
		ID:       13,
		Username: "ghost",
		IsActive: false,
	}, "boo", nil)
	return p
}

func TestStaticAuthenticate(t *testing.T) {
	p := seededProvider()
	ctx := context.Background()

	principal, err := p.Authenticate(ctx, Credentials{Username: "jdoe", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.ID)

	_, err = p.Authenticate(ctx, Credentials{Username: "jdoe", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.Authenticate(ctx, Credentials{Username: "nobody", Password: "hunter2"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.Authenticate(ctx, Credentials{Username: "ghost", Password: "boo"})
	assert.ErrorIs(t, err, ErrPrincipalInactive)
}

func TestStaticLookup(t *testing.T) {
	p := seededProvider()
	ctx := context.Background()

	principal, err := p.Lookup(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", principal.Username)

	// Returned principal is a copy
	principal.Username = "mutated"
	again, err := p.Lookup(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", again.Username)

	_, err = p.Lookup(ctx, 999)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestStaticPermissions(t *testing.T) {
	p := seededProvider()
	ctx := context.Background()

	perms, err := p.Permissions(ctx, 42)
	require.NoError(t, err)
	assert.True(t, perms["wiki_access"])

	// Mutating the returned map does not affect the provider
	perms["wiki_access"] = false
	again, err := p.Permissions(ctx, 42)
	require.NoError(t, err)
	assert.True(t, again["wiki_access"])

	p.SetPermissions(42, map[string]bool{"wiki_access": false, "crm_system": true})
	updated, err := p.Permissions(ctx, 42)
	require.NoError(t, err)
	assert.False(t, updated["wiki_access"])
	assert.True(t, updated["crm_system"])

	_, err = p.Permissions(ctx, 999)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestStaticRemove(t *testing.T) {
	p := seededProvider()
	ctx := context.Background()

	p.Remove(42)

	_, err := p.Lookup(ctx, 42)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
	_, err = p.Authenticate(ctx, Credentials{Username: "jdoe", Password: "hunter2"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
