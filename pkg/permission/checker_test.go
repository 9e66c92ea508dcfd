package permission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-sso/gatehouse/pkg/token"
)

func claimsWith(perms map[string]bool) *token.Claims {
	return &token.Claims{
		PrincipalID: 42,
		Username:    "jdoe",
		Permissions: perms,
	}
}

func TestCheckSnapshot(t *testing.T) {
	checker := NewChecker()
	claims := claimsWith(map[string]bool{
		"expense_system": true,
		"crm_system":     false,
	})

	assert.True(t, checker.Check(claims, "expense_system"))
	assert.False(t, checker.Check(claims, "crm_system"))
	assert.False(t, checker.Check(claims, "unknown_app"))
}

func TestCheckSynonyms(t *testing.T) {
	checker := NewChecker()
	claims := claimsWith(map[string]bool{
		"expense_system": true,
		"crm_system":     true,
	})

	// URL-path fragments resolve to the same logical application
	assert.True(t, checker.Check(claims, "expenses"))
	assert.True(t, checker.Check(claims, "crm"))
}

func TestCheckSuperuserBypassesSnapshot(t *testing.T) {
	checker := NewChecker()
	claims := claimsWith(map[string]bool{"crm_system": false})
	claims.IsSuperuser = true

	for _, app := range []string{"crm_system", "expense_system", "unknown_app"} {
		assert.True(t, checker.Check(claims, app), app)
	}
}

func TestCheckStaffBypassesSnapshot(t *testing.T) {
	checker := NewChecker()
	claims := claimsWith(nil)
	claims.IsStaff = true

	assert.True(t, checker.Check(claims, "wiki"))
}

func TestCheckNilClaims(t *testing.T) {
	checker := NewChecker()
	assert.False(t, checker.Check(nil, "wiki"))
}

func TestResolveBuiltinApplications(t *testing.T) {
	checker := NewChecker()

	for name, want := range map[string]string{
		"expenses":          "expense_system",
		"crm":               "crm_system",
		"leave":             "leave_management",
		"leave_management":  "leave_management",
		"attendance":        "attendance_system",
		"attendance_system": "attendance_system",
		"events":            "event_management",
		"event_management":  "event_management",
		"quotations":        "quotation_system",
		"quotation_system":  "quotation_system",
	} {
		key, ok := checker.Resolve(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, key, name)
	}
}

func TestResolve(t *testing.T) {
	checker := NewChecker()

	key, ok := checker.Resolve("reports")
	assert.True(t, ok)
	assert.Equal(t, "report_access", key)

	_, ok = checker.Resolve("no-such-app")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.yaml")
	content := `
applications:
  timesheets: timesheet_access
  wiki: wiki_write
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	checker := NewChecker()
	require.NoError(t, checker.LoadFile(path))

	key, ok := checker.Resolve("timesheets")
	assert.True(t, ok)
	assert.Equal(t, "timesheet_access", key)

	// File entries override the built-in table
	key, _ = checker.Resolve("wiki")
	assert.Equal(t, "wiki_write", key)
}

func TestLoadFileMissing(t *testing.T) {
	checker := NewChecker()
	assert.Error(t, checker.LoadFile("/no/such/file.yaml"))
}
