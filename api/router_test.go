package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authx"
	"github.com/MrEthical07/authx/internal/stores"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mailbox struct {
	mu   sync.Mutex
	sent []authx.Notification
}

func (m *mailbox) Notify(_ context.Context, n authx.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mailbox) last(t *testing.T, kind authx.NotificationKind) authx.Notification {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s notification sent", kind)
	return authx.Notification{}
}

type apiHarness struct {
	router chi.Router
	engine *authx.Engine
	mail   *mailbox
	now    time.Time
}

func newHarness(t *testing.T, cfg Config) *apiHarness {
	t.Helper()
	h := &apiHarness{mail: &mailbox{}, now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}

	ac := authx.DefaultConfig()
	ac.Token.PrivateKey = []byte("test-signing-secret-0123456789abcdef")
	ac.Password.Memory = 8 * 1024
	ac.Password.Time = 1
	ac.Password.Parallelism = 1
	ac.Notifications.Async = false
	ac.Reset.URLBase = "https://app.example.com"

	engine, err := authx.New().
		WithConfig(ac).
		WithStore(stores.NewMemoryAccountStore()).
		WithNotifier(h.mail).
		WithClock(func() time.Time { return h.now }).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	h.engine = engine
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return h.now }
	}
	h.router = NewRouter(engine, cfg, nil)
	return h
}

// multipartFields is sent as a multipart/form-data body.
type multipartFields map[string]string

type apiResponse struct {
	Code    int
	Body    map[string]any
	Cookies []*http.Cookie
}

func (h *apiHarness) do(t *testing.T, method, path string, body any, cookie string) apiResponse {
	t.Helper()

	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case url.Values:
		req = httptest.NewRequest(method, path, strings.NewReader(b.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	case multipartFields:
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for k, v := range b {
			require.NoError(t, mw.WriteField(k, v))
		}
		require.NoError(t, mw.Close())
		req = httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, strings.NewReader(string(raw)))
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: cookie})
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	resp := apiResponse{Code: rec.Code, Cookies: rec.Result().Cookies()}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp.Body), "body: %s", rec.Body.String())
	}
	return resp
}

func (r apiResponse) cookie(name string) *http.Cookie {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestMultipartBodies(t *testing.T) {
	h := newHarness(t, Config{})

	reg := h.do(t, http.MethodPost, "/api/v1/auth/register", multipartFields{
		"username": "alice", "email": "a@x.com", "password": "longpassword123",
	}, "")
	require.Equal(t, http.StatusCreated, reg.Code, "body: %v", reg.Body)
	assert.Equal(t, "User Created Successfully", reg.Body["message"])

	code := h.mail.last(t, authx.NotifyVerification).Code
	verify := h.do(t, http.MethodPost, "/api/v1/auth/verifyEmail", multipartFields{"token": code}, "")
	require.Equal(t, http.StatusOK, verify.Code)

	missing := h.do(t, http.MethodPost, "/api/v1/auth/login", multipartFields{"email": "a@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, "Please provide all fields", missing.Body["message"])
}

func TestAuthScenario(t *testing.T) {
	h := newHarness(t, Config{})

	reg := h.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "longpassword123",
	}, "")
	require.Equal(t, http.StatusCreated, reg.Code)
	assert.Equal(t, true, reg.Body["success"])
	assert.Equal(t, "User Created Successfully", reg.Body["message"])

	session := reg.cookie("token")
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, "/", session.Path)
	assert.Equal(t, 7*24*60*60, session.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)
	assert.False(t, session.Secure)

	dup := h.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "alice2", "email": "a@x.com", "password": "longpassword123",
	}, "")
	assert.Equal(t, http.StatusBadRequest, dup.Code)
	assert.Equal(t, "User already exists", dup.Body["message"])

	login := h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "a@x.com", "password": "longpassword123",
	}, "")
	assert.Equal(t, http.StatusBadRequest, login.Code)
	assert.Equal(t, "Email not verified", login.Body["message"])

	code := h.mail.last(t, authx.NotifyVerification).Code
	verify := h.do(t, http.MethodPost, "/api/v1/auth/verifyEmail", map[string]string{"token": code}, "")
	require.Equal(t, http.StatusOK, verify.Code)
	assert.Equal(t, "Email verfied successfully", verify.Body["message"])

	replay := h.do(t, http.MethodPost, "/api/v1/auth/verifyEmail", map[string]string{"token": code}, "")
	assert.Equal(t, http.StatusBadRequest, replay.Code)
	assert.Equal(t, "Invalid token", replay.Body["message"])

	login = h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "a@x.com", "password": "longpassword123",
	}, "")
	require.Equal(t, http.StatusOK, login.Code)
	user, ok := login.Body["user"].(map[string]any)
	require.True(t, ok, "login response carries a user")
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, true, user["isVerified"])
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, user, "password")

	token := login.cookie("token").Value
	check := h.do(t, http.MethodGet, "/api/v1/auth/checkAuth", nil, token)
	require.Equal(t, http.StatusOK, check.Code)
	assert.Equal(t, "Authenticated", check.Body["message"])

	logout := h.do(t, http.MethodGet, "/api/v1/auth/logout", nil, token)
	assert.Equal(t, http.StatusOK, logout.Code)
	cleared := logout.cookie("token")
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestForgotAndResetOverHTTP(t *testing.T) {
	h := newHarness(t, Config{})
	registerVerified(t, h)

	unknown := h.do(t, http.MethodPost, "/api/v1/auth/forgetPassword", map[string]string{"email": "nobody@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, unknown.Code)
	assert.Equal(t, "User not found with this email", unknown.Body["message"])

	forgot := h.do(t, http.MethodPost, "/api/v1/auth/forgetPassword", url.Values{"email": {"a@x.com"}}, "")
	require.Equal(t, http.StatusOK, forgot.Code)
	assert.Equal(t, "Email sent !", forgot.Body["message"])

	link := h.mail.last(t, authx.NotifyResetRequest).ResetURL
	require.True(t, strings.HasPrefix(link, "https://app.example.com/resetpassword/"), link)
	code := strings.TrimPrefix(link, "https://app.example.com/resetpassword/")

	reset := h.do(t, http.MethodPost, "/api/v1/auth/resetPassword/"+code, map[string]string{"password": "brand-new-password"}, "")
	require.Equal(t, http.StatusOK, reset.Code)
	assert.Equal(t, "Password Changed Successfully", reset.Body["message"])

	again := h.do(t, http.MethodPost, "/api/v1/auth/resetPassword/"+code, map[string]string{"password": "another-password"}, "")
	assert.Equal(t, http.StatusBadRequest, again.Code)
	assert.Equal(t, "User not found", again.Body["message"])

	old := h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "longpassword123"}, "")
	assert.Equal(t, "Invalid password", old.Body["message"])
	fresh := h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "brand-new-password"}, "")
	assert.Equal(t, http.StatusOK, fresh.Code)
}

func TestExpiredResetCodeOverHTTP(t *testing.T) {
	h := newHarness(t, Config{})
	registerVerified(t, h)

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/auth/forgetPassword", map[string]string{"email": "a@x.com"}, "").Code)
	code := strings.TrimPrefix(h.mail.last(t, authx.NotifyResetRequest).ResetURL, "https://app.example.com/resetpassword/")

	h.now = h.now.Add(time.Hour + time.Second)
	resp := h.do(t, http.MethodPost, "/api/v1/auth/resetPassword/"+code, map[string]string{"password": "brand-new-password"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Reset token has expired", resp.Body["message"])
}

func TestCheckAuthRejections(t *testing.T) {
	h := newHarness(t, Config{})

	none := h.do(t, http.MethodGet, "/api/v1/auth/checkAuth", nil, "")
	assert.Equal(t, http.StatusUnauthorized, none.Code)
	assert.Equal(t, "Not Authorized - No token provided", none.Body["message"])
	assert.Equal(t, false, none.Body["success"])

	garbage := h.do(t, http.MethodGet, "/api/v1/auth/checkAuth", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, garbage.Code)
	assert.Equal(t, "Invalid token", garbage.Body["message"])

	token := registerVerified(t, h)
	h.now = h.now.Add(7*24*time.Hour + time.Second)
	expired := h.do(t, http.MethodGet, "/api/v1/auth/checkAuth", nil, token)
	assert.Equal(t, http.StatusUnauthorized, expired.Code)
	assert.Equal(t, "Token expired", expired.Body["message"])
}

func TestLogoutAllRevokesOverHTTP(t *testing.T) {
	h := newHarness(t, Config{})
	token := registerVerified(t, h)

	resp := h.do(t, http.MethodPost, "/api/v1/auth/logoutAll", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, resp.cookie("token"))

	after := h.do(t, http.MethodGet, "/api/v1/auth/checkAuth", nil, token)
	assert.Equal(t, http.StatusUnauthorized, after.Code)
	assert.Equal(t, "Token revoked", after.Body["message"])
}

func TestValidationMessages(t *testing.T) {
	h := newHarness(t, Config{})

	tests := []struct {
		path    string
		body    any
		message string
	}{
		{"/api/v1/auth/register", map[string]string{"username": "alice"}, "Please provide all fields"},
		{"/api/v1/auth/login", map[string]string{"email": "a@x.com"}, "Please provide all fields"},
		{"/api/v1/auth/verifyEmail", map[string]string{}, "Token not provided"},
		{"/api/v1/auth/forgetPassword", nil, "Email not provided"},
		{"/api/v1/auth/resendVerification", map[string]any{"email": 42}, "Email not provided"},
		{"/api/v1/auth/resetPassword/123456", map[string]string{}, "Credentials not provided"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := h.do(t, http.MethodPost, tt.path, tt.body, "")
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, tt.message, resp.Body["message"])
		})
	}
}

func TestMalformedBody(t *testing.T) {
	h := newHarness(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	h := newHarness(t, Config{Metrics: metrics})

	resp := h.do(t, http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Auth-X API is running", resp.Body["message"])
	assert.Equal(t, "ok", resp.Body["status"])
	assert.Equal(t, "2026-01-10T12:00:00Z", resp.Body["timestamp"])

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())
}

func TestProductionCookie(t *testing.T) {
	h := newHarness(t, Config{Cookie: CookieConfig{Production: true, Domain: "example.com"}})

	resp := h.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "longpassword123",
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code)

	c := resp.cookie("token")
	require.NotNil(t, c)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
	assert.Equal(t, "example.com", c.Domain)
}

type failingService struct {
	Service
}

func (failingService) Login(context.Context, authx.LoginRequest) (*authx.LoginResult, error) {
	return nil, errors.New("pg: connection reset")
}

func TestInternalErrorDetails(t *testing.T) {
	for _, dev := range []bool{false, true} {
		router := NewRouter(failingService{}, Config{Development: dev}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@x.com","password":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal server error", body["message"])
		if dev {
			assert.Equal(t, "pg: connection reset", body["details"])
		} else {
			assert.NotContains(t, body, "details")
		}
	}
}

// registerVerified creates alice/a@x.com, verifies her, and returns a fresh session token.
func registerVerified(t *testing.T, h *apiHarness) string {
	t.Helper()
	reg := h.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "longpassword123",
	}, "")
	require.Equal(t, http.StatusCreated, reg.Code)

	code := h.mail.last(t, authx.NotifyVerification).Code
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/auth/verifyEmail", map[string]string{"token": code}, "").Code)

	login := h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "longpassword123"}, "")
	require.Equal(t, http.StatusOK, login.Code)
	return login.cookie("token").Value
}
