package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/benvon/authgate/internal/directory"
	"github.com/benvon/authgate/internal/handlers"
	"github.com/benvon/authgate/internal/middleware"
	"github.com/benvon/authgate/internal/models"
	"github.com/benvon/authgate/internal/services/oauth"
	"github.com/benvon/authgate/internal/session"
	"github.com/benvon/authgate/internal/token"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const testKey = "0123456789abcdef0123456789abcdef"

type stubProvider struct{}

func (stubProvider) AuthCodeURL(state string) string {
	return "https://github.com/login/oauth/authorize?state=" + state
}

func (stubProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "gho_" + code}, nil
}

func (stubProvider) FetchAttributes(context.Context, *oauth2.Token) (map[string]any, error) {
	return map[string]any{"id": float64(42), "login": "ann", "name": "Ann"}, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, attrs map[string]any, _ string) (*models.ProviderIdentity, error) {
	return &models.ProviderIdentity{Attributes: attrs, GithubID: 42, Login: "ann", Name: "Ann", Email: "a@x.com"}, nil
}

type memKV struct {
	mu   sync.Mutex
	next int
	vals map[string]int64
}

func (m *memKV) put(v int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	k := "k" + strconv.Itoa(m.next)
	m.vals[k] = v
	return k
}

func (m *memKV) take(k string, remove bool) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[k]
	if remove {
		delete(m.vals, k)
	}
	return v, ok
}

type memStates struct{ kv memKV }

func (s *memStates) Issue(context.Context) (string, error) { return s.kv.put(1), nil }
func (s *memStates) Consume(_ context.Context, state string) error {
	if _, ok := s.kv.take(state, true); !ok {
		return oauth.ErrInvalidState
	}
	return nil
}

type memPrincipals struct{ kv memKV }

func (p *memPrincipals) Save(_ context.Context, id int64) (string, error) { return p.kv.put(id), nil }
func (p *memPrincipals) Load(_ context.Context, sid string) (int64, error) {
	id, ok := p.kv.take(sid, false)
	if !ok {
		return 0, session.ErrPrincipalNotFound
	}
	return id, nil
}
func (p *memPrincipals) Delete(_ context.Context, sid string) error {
	p.kv.take(sid, true)
	return nil
}

func newTestServer(t *testing.T, rate string) (*httptest.Server, *token.Codec) {
	t.Helper()

	codec, err := token.NewCodec(token.Config{SigningKey: []byte(testKey), Lifetime: time.Hour})
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	dir := directory.New(directory.NewMemoryStore(), nil)
	issuer := session.NewIssuer(stubResolver{}, dir, codec)
	principals := &memPrincipals{kv: memKV{vals: map[string]int64{}}}
	states := &memStates{kv: memKV{vals: map[string]int64{}}}
	cookies := handlers.CookieConfig{PrincipalTTL: time.Minute, StateTTL: time.Minute}

	openAPI, err := handlers.NewOpenAPIHandler()
	if err != nil {
		t.Fatalf("NewOpenAPIHandler() error = %v", err)
	}
	limits, err := middleware.NewRateLimitReloader(memory.NewStore(), nil, rate, nil, 0)
	if err != nil {
		t.Fatalf("NewRateLimitReloader() error = %v", err)
	}

	h := newRouter(routerDeps{
		auth: handlers.NewAuthHandler(issuer, dir, principals, cookies, nil),
		oauth: handlers.NewOAuthHandler(stubProvider{}, states, issuer, principals, handlers.OAuthRedirects{
			CallbackURL: "http://localhost:5173/oauth-callback",
			LoginURL:    "http://localhost:5173/login",
		}, cookies, nil),
		health:    handlers.NewHealthChecker(nil, "test"),
		openapi:   openAPI,
		verifier:  codec,
		cors:      middleware.NewCORSReloader(nil, "http://localhost:5173", nil, 0),
		rateLimit: limits,
		logger:    zap.NewNop(),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, codec
}

func noRedirectClient(t *testing.T) *http.Client {
	t.Helper()
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func get(t *testing.T, client *http.Client, target string, header http.Header, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET %s error = %v", target, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRouter_LoginFlow(t *testing.T) {
	t.Parallel()
	srv, codec := newTestServer(t, "100-S")
	client := noRedirectClient(t)

	login := get(t, client, srv.URL+"/oauth2/authorization/github", nil)
	if login.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302 from login, got %d", login.StatusCode)
	}
	stateCookie := cookieNamed(login, "authgate_oauth_state")
	if stateCookie == nil {
		t.Fatal("Expected state cookie")
	}

	cb := get(t, client, srv.URL+"/login/oauth2/code/github?code=abc&state="+stateCookie.Value, nil, stateCookie)
	if cb.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302 from callback, got %d", cb.StatusCode)
	}
	loc, err := url.Parse(cb.Header.Get("Location"))
	if err != nil {
		t.Fatalf("Bad Location: %v", err)
	}
	tok := loc.Query().Get("token")
	claims, err := codec.Verify(tok)
	if err != nil {
		t.Fatalf("Expected valid token in redirect, got %v", err)
	}
	if claims.UserID != 1 {
		t.Errorf("Expected first user id 1, got %d", claims.UserID)
	}

	bearer := http.Header{"Authorization": {"Bearer " + tok}}
	if resp := get(t, client, srv.URL+"/api/auth/validate", bearer); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from validate, got %d", resp.StatusCode)
	}

	user := get(t, client, srv.URL+"/api/auth/user", bearer)
	var body struct {
		Success bool                 `json:"success"`
		Data    handlers.UserProfile `json:"data"`
	}
	if err := json.NewDecoder(user.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode user: %v", err)
	}
	if !body.Success || body.Data.Email != "a@x.com" {
		t.Errorf("Unexpected user response %+v", body)
	}

	principal := cookieNamed(cb, "authgate_session")
	if principal == nil {
		t.Fatal("Expected principal cookie from callback")
	}
	if resp := get(t, client, srv.URL+"/api/auth/token", nil, principal); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from token exchange, got %d", resp.StatusCode)
	}

	truncated := http.Header{"Authorization": {"Bearer " + tok[:len(tok)-1]}}
	if resp := get(t, client, srv.URL+"/api/auth/validate", truncated); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for truncated token, got %d", resp.StatusCode)
	}
}

func TestRouter_Gate(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, "100-S")
	client := noRedirectClient(t)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/auth/validate", http.StatusUnauthorized},
		{"/api/auth/user", http.StatusUnauthorized},
		{"/unknown", http.StatusUnauthorized},
		{"/healthz", http.StatusOK},
		{"/version", http.StatusOK},
		{"/api/auth/openapi.json", http.StatusOK},
		{"/api/auth/token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			resp := get(t, client, srv.URL+tt.path, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if resp.Header.Get("X-Request-ID") == "" {
				t.Error("Expected X-Request-ID header")
			}
			if resp.Header.Get("Cache-Control") != "no-store" {
				t.Error("Expected security headers")
			}
		})
	}
}

func TestRouter_Preflight(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, "100-S")

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/auth/user", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		t.Errorf("Expected successful preflight, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Expected allowed origin header, got '%s'", got)
	}
}

func TestRouter_RateLimitsLogin(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, "2-M")
	client := noRedirectClient(t)

	for i := 0; i < 2; i++ {
		if resp := get(t, client, srv.URL+"/oauth2/authorization/github", nil); resp.StatusCode != http.StatusFound {
			t.Fatalf("Request %d: expected 302, got %d", i+1, resp.StatusCode)
		}
	}
	if resp := get(t, client, srv.URL+"/oauth2/authorization/github", nil); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", resp.StatusCode)
	}
	if resp := get(t, client, srv.URL+"/healthz", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected health to be unlimited, got %d", resp.StatusCode)
	}
}
