package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/insights_dashboard/internal/analytics"
	"github.com/ncecere/insights_dashboard/internal/apikeys"
	"github.com/ncecere/insights_dashboard/internal/app"
	"github.com/ncecere/insights_dashboard/internal/auth"
	"github.com/ncecere/insights_dashboard/internal/cache"
	"github.com/ncecere/insights_dashboard/internal/config"
	"github.com/ncecere/insights_dashboard/internal/integrations"
	"github.com/ncecere/insights_dashboard/internal/limits"
	"github.com/ncecere/insights_dashboard/internal/rbac"
	"github.com/ncecere/insights_dashboard/internal/warehouse"
)

type memoryUsers struct {
	mu          sync.Mutex
	users       map[string]auth.User
	memberships map[string][]rbac.Membership
}

func (m *memoryUsers) UserByEmail(_ context.Context, email string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func (m *memoryUsers) UserByID(_ context.Context, id string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (m *memoryUsers) CreateUser(_ context.Context, email, name, hash string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := auth.User{ID: uuid.NewString(), Email: email, Name: name, PasswordHash: hash, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryUsers) TouchLogin(context.Context, string, time.Time) error { return nil }

func (m *memoryUsers) Memberships(_ context.Context, userID string) ([]rbac.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memberships[userID], nil
}

type emptyWarehouse struct{}

func (emptyWarehouse) Query(context.Context, string, string) (warehouse.Result, error) {
	return warehouse.Result{Results: [][]any{}}, nil
}

type fixture struct {
	server *Server
	keys   *apikeys.Service
	users  *memoryUsers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{}
	cfg.Server.BodyLimitMB = 1
	cfg.Auth.Session.CookieName = "dashboard_session"
	cfg.Auth.Local.Enabled = true

	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	users := &memoryUsers{
		users: map[string]auth.User{
			"admin-1":  {ID: "admin-1", Email: "admin@example.com", PasswordHash: hash},
			"member-1": {ID: "member-1", Email: "member@example.com", PasswordHash: hash},
		},
		memberships: map[string][]rbac.Membership{
			"admin-1":  {{OrganizationID: "org", Role: rbac.RoleAdmin}},
			"member-1": {{OrganizationID: "org", Role: rbac.RoleMember}},
		},
	}

	tokens, err := auth.NewTokenManager("test-secret-test-secret", time.Hour, "insights-dashboard")
	require.NoError(t, err)
	identity := auth.NewIdentity(users, tokens, cache.NewSessionDenylist(rdb), auth.IdentityOptions{LocalEnabled: true})
	keys := apikeys.NewService(apikeys.NewMemoryStore(), auth.NewKeyCodec("ida"), apikeys.Options{})

	container := &app.Container{
		Config:        cfg,
		Redis:         rdb,
		Keys:          keys,
		Identity:      identity,
		LoginStates:   cache.NewOneTimeStore(rdb, "oidc:login", time.Minute),
		Authenticator: auth.NewRequestAuthenticator(keys, identity),
		Gate:          rbac.NewGate(identity),
		Analytics:     analytics.NewService(emptyWarehouse{}, analytics.Options{}),
		Integrations:  integrations.NewRegistry(config.IntegrationsConfig{}, nil, nil),
		Limiter:       limits.NewRateLimiter(rdb, limits.Limits{RequestsPerMinute: 5}),
	}
	srv, err := New(container)
	require.NoError(t, err)
	return &fixture{server: srv, keys: keys, users: users}
}

func (f *fixture) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp, body
}

func bearer(method, path, secret string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+secret)
	return req
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func (f *fixture) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"`+email+`","password":"correct horse"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := f.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == "dashboard_session" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestAPIKeyAccessEndsAtRevocation(t *testing.T) {
	f := newFixture(t)
	issued, err := f.keys.Issue(context.Background(), "user_42", apikeys.IssueOptions{Label: "ci"})
	require.NoError(t, err)

	resp, body := f.do(t, bearer(http.MethodGet, "/api/keys", issued.Secret))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	require.NotContains(t, data[0].(map[string]any), "secret_digest")

	resp, _ = f.do(t, bearer(http.MethodDelete, "/api/keys/"+issued.Record.ID.String(), issued.Secret))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = f.do(t, bearer(http.MethodGet, "/api/keys", issued.Secret))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_api_key", errorCode(body))
}

func TestIssueKeyReturnsSecretOnce(t *testing.T) {
	f := newFixture(t)
	cookie := f.login(t, "member@example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/keys", strings.NewReader(`{"label":"laptop"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	resp, body := f.do(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	secret := body["data"].(map[string]any)["secret"].(string)
	require.True(t, strings.HasPrefix(secret, "ida"))

	resp, body = f.do(t, bearer(http.MethodGet, "/api/keys", secret))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotContains(t, body["data"].([]any)[0].(map[string]any), "secret")
}

func TestRevokeUnknownKeyIsSilent(t *testing.T) {
	f := newFixture(t)
	issued, err := f.keys.Issue(context.Background(), "user_42", apikeys.IssueOptions{})
	require.NoError(t, err)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		resp, _ := f.do(t, bearer(http.MethodDelete, "/api/keys/"+id, issued.Secret))
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
}

func TestAuthorizationHeaderNeverFallsBackToSession(t *testing.T) {
	f := newFixture(t)
	cookie := f.login(t, "member@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/keys", nil)
	req.AddCookie(cookie)
	resp, _ := f.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req = bearer(http.MethodGet, "/api/keys", "ida_bogus")
	req.AddCookie(cookie)
	resp, body := f.do(t, req)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_api_key", errorCode(body))

	req = httptest.NewRequest(http.MethodGet, "/api/keys", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	req.AddCookie(cookie)
	resp, body = f.do(t, req)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_authorization_header", errorCode(body))
}

func TestLogoutEndsSession(t *testing.T) {
	f := newFixture(t)
	cookie := f.login(t, "admin@example.com")

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(cookie)
	resp, body := f.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	require.Equal(t, "admin-1", data["subject"])
	require.Equal(t, "session", data["method"])

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	resp, _ = f.do(t, req)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(cookie)
	resp, body = f.do(t, req)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "authentication_required", errorCode(body))
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"admin@example.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, body := f.do(t, req)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_credentials", errorCode(body))
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.keys.Issue(context.Background(), "user_42", apikeys.IssueOptions{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/keys?owner=user_42", nil)
	req.AddCookie(f.login(t, "member@example.com"))
	resp, _ := f.do(t, req)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodDelete, "/api/admin/keys?owner=user_42", nil)
	req.AddCookie(f.login(t, "admin@example.com"))
	resp, body := f.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["data"].(map[string]any)["deleted"])
}

func TestAnalyticsValidatesQuery(t *testing.T) {
	f := newFixture(t)
	issued, err := f.keys.Issue(context.Background(), "user_42", apikeys.IssueOptions{})
	require.NoError(t, err)

	resp, body := f.do(t, bearer(http.MethodGet, "/api/analytics/events/cumulative?end_date=2024-01-31", issued.Secret))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request", errorCode(body))

	resp, body = f.do(t, bearer(http.MethodGet, "/api/analytics/events/summary?start_date=2024-01-01&end_date=2024-01-31&event=signup", issued.Secret))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "meta")
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/analytics/events/summary", nil))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "authentication_required", errorCode(body))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}

func TestAnalyticsRateLimitedPerSubject(t *testing.T) {
	f := newFixture(t)
	first, err := f.keys.Issue(context.Background(), "user_42", apikeys.IssueOptions{})
	require.NoError(t, err)
	second, err := f.keys.Issue(context.Background(), "user_7", apikeys.IssueOptions{})
	require.NoError(t, err)

	path := "/api/analytics/events/summary?start_date=2024-01-01&end_date=2024-01-07"
	for i := 0; i < 5; i++ {
		resp, _ := f.do(t, bearer(http.MethodGet, path, first.Secret))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := f.do(t, bearer(http.MethodGet, path, first.Secret))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "rate_limited", errorCode(body))
	require.Equal(t, "60", resp.Header.Get("Retry-After"))

	resp, _ = f.do(t, bearer(http.MethodGet, path, second.Secret))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIssueSummaryWhenTrackerDisabled(t *testing.T) {
	f := newFixture(t)
	issued, err := f.keys.Issue(context.Background(), "user_42", apikeys.IssueOptions{})
	require.NoError(t, err)

	resp, body := f.do(t, bearer(http.MethodGet, "/api/issues/summary", issued.Secret))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "configuration_error", errorCode(body))
}
