package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-sso/gatehouse/pkg/audit"
	"github.com/gatehouse-sso/gatehouse/pkg/identity"
	"github.com/gatehouse-sso/gatehouse/pkg/middleware"
	"github.com/gatehouse-sso/gatehouse/pkg/permission"
	"github.com/gatehouse-sso/gatehouse/pkg/session"
	"github.com/gatehouse-sso/gatehouse/pkg/token"
)

type apiFixture struct {
	router   *mux.Router
	provider *identity.StaticProvider
	manager  *token.Manager
	sessions *session.MemoryStore
	auditor  *audit.MemoryLogger
	handlers *SSOHandlers
}

func newAPIFixture(t *testing.T, limiter middleware.Limiter) *apiFixture {
	t.Helper()

	provider := identity.NewStaticProvider()
	provider.Add(identity.Principal{
		ID:       42,
		Username: "jdoe",
		Email:    "jdoe@example.com",
		IsActive: true,
	}, "hunter2", map[string]bool{"expense_system": true, "crm_system": false})
	provider.Add(identity.Principal{
		ID:          7,
		Username:    "root",
		IsActive:    true,
		IsSuperuser: true,
	}, "toor", nil)
	provider.Add(identity.Principal{
		ID:       13,
		Username: "ghost",
		IsActive: false,
	}, "boo", nil)

	auditor := audit.NewMemoryLogger()
	manager, err := token.NewManager(token.ManagerOptions{Secret: "test-secret"},
		token.NewMemoryStore(), provider, auditor)
	require.NoError(t, err)

	sessions := session.NewMemoryStore()
	manager.AttachSessionTracker(sessions)
	handlers := NewSSOHandlers(manager, provider, permission.NewChecker(),
		sessions, auditor, limiter, nil, nil)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	return &apiFixture{
		router:   router,
		provider: provider,
		manager:  manager,
		sessions: sessions,
		auditor:  auditor,
		handlers: handlers,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T, username, password string) TokenResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/sso/token", TokenRequest{Username: username, Password: password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var resp struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error, resp.Reason
}

func TestObtainToken(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.login(t, "jdoe", "hunter2")
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	require.NotNil(t, resp.User)
	assert.Equal(t, int64(42), resp.User.ID)

	events := f.auditor.EventsOfType(audit.EventTypeLoginSuccess)
	require.Len(t, events, 1)
	assert.Equal(t, "jdoe", events[0].Username)
}

func TestObtainTokenBadCredentials(t *testing.T) {
	f := newAPIFixture(t, nil)

	wrongPassword := f.do(t, http.MethodPost, "/sso/token",
		TokenRequest{Username: "jdoe", Password: "wrong"}, "")
	unknownUser := f.do(t, http.MethodPost, "/sso/token",
		TokenRequest{Username: "nobody", Password: "wrong"}, "")

	require.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	require.Equal(t, http.StatusUnauthorized, unknownUser.Code)

	// Identical bodies: the response must not reveal which half was wrong
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())

	failed := f.auditor.EventsOfType(audit.EventTypeLoginFailed)
	assert.Len(t, failed, 2)
}

func TestObtainTokenInactivePrincipal(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/sso/token",
		TokenRequest{Username: "ghost", Password: "boo"}, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	_, reason := decodeError(t, rec)
	assert.Equal(t, "principal_inactive", reason)
}

func TestObtainTokenRateLimited(t *testing.T) {
	f := newAPIFixture(t, middleware.NewLoginLimiter(1, 0))

	first := f.do(t, http.MethodPost, "/sso/token",
		TokenRequest{Username: "jdoe", Password: "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, first.Code)

	second := f.do(t, http.MethodPost, "/sso/token",
		TokenRequest{Username: "jdoe", Password: "hunter2"}, "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRefreshToken(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "jdoe", "hunter2")

	rec := f.do(t, http.MethodPost, "/sso/refresh", RefreshRequest{Refresh: pair.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, pair.AccessToken, resp.AccessToken)
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "jdoe", "hunter2")

	rec := f.do(t, http.MethodPost, "/sso/refresh", RefreshRequest{Refresh: pair.AccessToken}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	_, reason := decodeError(t, rec)
	assert.Equal(t, "wrong_type", reason)
}

func TestRefreshTokenPrincipalGone(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "jdoe", "hunter2")

	f.provider.Remove(42)

	rec := f.do(t, http.MethodPost, "/sso/refresh", RefreshRequest{Refresh: pair.RefreshToken}, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	_, reason := decodeError(t, rec)
	assert.Equal(t, "principal_not_found", reason)
}

func TestValidateToken(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "jdoe", "hunter2")

	tests := []struct {
		name       string
		body       interface{}
		bearer     string
		wantValid  bool
		wantReason string
	}{
		{name: "valid via bearer", bearer: pair.AccessToken, wantValid: true},
		{name: "valid via body", body: ValidateRequest{Token: pair.AccessToken}, wantValid: true},
		{name: "malformed", body: ValidateRequest{Token: "garbage"}, wantReason: "malformed"},
		{name: "missing", body: ValidateRequest{}, wantReason: "missing_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/sso/validate", tt.body, tt.bearer)
			require.Equal(t, http.StatusOK, rec.Code, "validate never rejects")

			var resp ValidateResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantValid, resp.Valid)
			assert.Equal(t, tt.wantReason, resp.Reason)
			if tt.wantValid {
				require.NotNil(t, resp.User)
				assert.Equal(t, "jdoe", resp.User.Username)
			}
		})
	}
}

func TestValidateRevokedToken(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "jdoe", "hunter2")

	records, err := f.manager.ListActiveForPrincipal(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, records, 1)
	_, err = f.manager.Revoke(context.Background(), records[0].JTI, "compromise")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/sso/validate", ValidateRequest{Token: pair.AccessToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ValidateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, "revoked", resp.Reason)
}

func TestUserInfo(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "jdoe", "hunter2")

	rec := f.do(t, http.MethodGet, "/sso/user", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UserInfoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "jdoe", resp.User.Username)
	assert.True(t, resp.Permissions["expense_system"])
	assert.False(t, resp.Permissions["crm_system"])

	// No token at all
	rec = f.do(t, http.MethodGet, "/sso/user", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckPermission(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "jdoe", "hunter2")

	check := func(app string) bool {
		rec := f.do(t, http.MethodPost, "/sso/check-permission",
			CheckPermissionRequest{AppName: app}, pair.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp CheckPermissionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, app, resp.AppName)
		return resp.HasPermission
	}

	assert.True(t, check("expense_system"))
	assert.False(t, check("crm_system"))
	assert.False(t, check("unknown_app"))

	denied := f.auditor.EventsOfType(audit.EventTypePermissionDenied)
	assert.Len(t, denied, 2)
}

func TestCheckPermissionSuperuser(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "root", "toor")

	for _, app := range []string{"expense_system", "crm_system", "unknown_app"} {
		rec := f.do(t, http.MethodPost, "/sso/check-permission",
			CheckPermissionRequest{AppName: app}, pair.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp CheckPermissionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.HasPermission, app)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "jdoe", "hunter2")
	other := f.login(t, "jdoe", "hunter2")

	rec := f.do(t, http.MethodPost, "/sso/logout", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LogoutResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(2), resp.RevokedTokens, "both concurrent logins revoked")

	// Every token for the principal is now dead
	result, err := f.manager.Validate(context.Background(), other.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, token.StatusRevoked, result.Status)

	// Second logout with the revoked token: success, nothing left to do
	rec = f.do(t, http.MethodPost, "/sso/logout", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Zero(t, resp.RevokedTokens)

	assert.Len(t, f.auditor.EventsOfType(audit.EventTypeLogout), 1)
	assert.Len(t, f.auditor.EventsOfType(audit.EventTypeTokenRevoked), 1)
}

func TestLogoutEndsTrackedSessions(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "jdoe", "hunter2")

	require.NoError(t, f.sessions.Track(context.Background(), &session.Session{
		JTI:         "jti-wiki",
		AppName:     "wiki",
		PrincipalID: 42,
	}))

	rec := f.do(t, http.MethodPost, "/sso/logout", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LogoutResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(1), resp.EndedSessions)

	open, err := f.sessions.ListActiveForPrincipal(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestListSessions(t *testing.T) {
	f := newAPIFixture(t, nil)
	pair := f.login(t, "jdoe", "hunter2")
	f.login(t, "jdoe", "hunter2")

	require.NoError(t, f.sessions.Track(context.Background(), &session.Session{
		JTI:         "jti-x",
		AppName:     "wiki",
		PrincipalID: 42,
	}))

	rec := f.do(t, http.MethodGet, "/sso/sessions", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Tokens, 2)
	assert.Len(t, resp.Sessions, 1)
}
