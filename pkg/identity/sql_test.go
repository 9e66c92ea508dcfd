package identity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plaintextVerify(stored, presented string) bool { return stored == presented }

func newMockProvider(t *testing.T) (*SQLProvider, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	provider, err := NewSQLProvider(db, plaintextVerify, time.Second)
	require.NoError(t, err)

	return provider, mock, db
}

func principalColumns() []string {
	return []string{
		"id", "username", "email", "full_name", "employee_id", "department",
		"is_active", "is_staff", "is_superuser", "last_login_at",
	}
}

func TestNewSQLProviderValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLProvider(nil, plaintextVerify, time.Second)
	assert.Error(t, err)

	_, err = NewSQLProvider(db, nil, time.Second)
	assert.Error(t, err)
}

func TestSQLAuthenticate(t *testing.T) {
	provider, mock, db := newMockProvider(t)
	defer db.Close()

	rows := sqlmock.NewRows(append(principalColumns(), "password")).
		AddRow(int64(42), "jdoe", "jdoe@example.com", "Jane Doe", "E-100", "Engineering",
			true, true, false, nil, "hunter2")

	mock.ExpectQuery("SELECT(.+)FROM users WHERE username").
		WithArgs("jdoe").
		WillReturnRows(rows)

	principal, err := provider.Authenticate(context.Background(), Credentials{Username: "jdoe", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.ID)
	assert.True(t, principal.IsStaff)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAuthenticateWrongPassword(t *testing.T) {
	provider, mock, db := newMockProvider(t)
	defer db.Close()

	rows := sqlmock.NewRows(append(principalColumns(), "password")).
		AddRow(int64(42), "jdoe", "", "", "", "", true, false, false, nil, "hunter2")

	mock.ExpectQuery("SELECT(.+)FROM users WHERE username").
		WithArgs("jdoe").
		WillReturnRows(rows)

	_, err := provider.Authenticate(context.Background(), Credentials{Username: "jdoe", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSQLAuthenticateUnknownUser(t *testing.T) {
	provider, mock, db := newMockProvider(t)
	defer db.Close()

	mock.ExpectQuery("SELECT(.+)FROM users WHERE username").
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	_, err := provider.Authenticate(context.Background(), Credentials{Username: "nobody", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials, "unknown user and wrong password are indistinguishable")
}

func TestSQLAuthenticateInactive(t *testing.T) {
	provider, mock, db := newMockProvider(t)
	defer db.Close()

	rows := sqlmock.NewRows(append(principalColumns(), "password")).
		AddRow(int64(13), "ghost", "", "", "", "", false, false, false, nil, "boo")

	mock.ExpectQuery("SELECT(.+)FROM users WHERE username").
		WithArgs("ghost").
		WillReturnRows(rows)

	_, err := provider.Authenticate(context.Background(), Credentials{Username: "ghost", Password: "boo"})
	assert.ErrorIs(t, err, ErrPrincipalInactive)
}

func TestSQLLookup(t *testing.T) {
	provider, mock, db := newMockProvider(t)
	defer db.Close()

	lastLogin := time.Now().UTC()
	rows := sqlmock.NewRows(principalColumns()).
		AddRow(int64(42), "jdoe", "jdoe@example.com", "Jane Doe", "E-100", "Engineering",
			true, false, false, lastLogin)

	mock.ExpectQuery("SELECT(.+)FROM users WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(rows)

	principal, err := provider.Lookup(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", principal.Username)
	require.NotNil(t, principal.LastLoginAt)

	mock.ExpectQuery("SELECT(.+)FROM users WHERE id").
		WithArgs(int64(999)).
		WillReturnError(sql.ErrNoRows)

	_, err = provider.Lookup(context.Background(), 999)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestSQLPermissions(t *testing.T) {
	provider, mock, db := newMockProvider(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"permission_key", "granted"}).
		AddRow("wiki_access", true).
		AddRow("crm_system", false)

	mock.ExpectQuery("SELECT(.+)FROM app_permissions").
		WithArgs(int64(42)).
		WillReturnRows(rows)

	perms, err := provider.Permissions(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, perms["wiki_access"])
	assert.False(t, perms["crm_system"])
	assert.Len(t, perms, 2)
}
