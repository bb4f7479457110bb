package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/login/oauth2/code/github",
	})

	if client.config.Endpoint != github.Endpoint {
		t.Errorf("Expected GitHub endpoint, got %+v", client.config.Endpoint)
	}
	if strings.Join(client.config.Scopes, ",") != strings.Join(DefaultScopes, ",") {
		t.Errorf("Expected default scopes, got %v", client.config.Scopes)
	}
	if client.apiURL != "https://api.github.com" {
		t.Errorf("Expected default API URL, got '%s'", client.apiURL)
	}
}

func TestClient_AuthCodeURL(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{
		ClientID:    "client-id",
		RedirectURL: "http://localhost:8080/login/oauth2/code/github",
	})

	raw := client.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthCodeURL() returned invalid URL: %v", err)
	}
	if !strings.HasPrefix(raw, github.Endpoint.AuthURL) {
		t.Errorf("Expected GitHub authorize URL, got %s", raw)
	}
	q := u.Query()
	if q.Get("state") != "state-123" {
		t.Errorf("Expected state 'state-123', got '%s'", q.Get("state"))
	}
	if q.Get("client_id") != "client-id" {
		t.Errorf("Expected client_id 'client-id', got '%s'", q.Get("client_id"))
	}
	if q.Get("redirect_uri") != "http://localhost:8080/login/oauth2/code/github" {
		t.Errorf("Unexpected redirect_uri '%s'", q.Get("redirect_uri"))
	}
	if !strings.Contains(q.Get("scope"), "user:email") {
		t.Errorf("Expected user:email scope, got '%s'", q.Get("scope"))
	}
}

func newFakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/oauth/access_token":
			if err := r.ParseForm(); err != nil {
				t.Errorf("ParseForm() error = %v", err)
			}
			if r.Form.Get("code") != "good-code" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": "bad_verification_code"})
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "gho_token",
				"token_type":   "bearer",
				"scope":        "read:user,user:email",
			})
		case "/user":
			if r.Header.Get("Authorization") != "Bearer gho_token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":         42,
				"login":      "ann",
				"name":       "Ann",
				"avatar_url": "https://avatars.example.com/42",
				"email":      nil,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/login/oauth2/code/github",
		Endpoint: oauth2.Endpoint{
			AuthURL:  server.URL + "/login/oauth/authorize",
			TokenURL: server.URL + "/login/oauth/access_token",
		},
		APIURL:     server.URL,
		HTTPClient: server.Client(),
	})
}

func TestClient_ExchangeAndFetchAttributes(t *testing.T) {
	t.Parallel()
	client := newTestClient(newFakeGitHub(t))
	ctx := context.Background()

	token, err := client.Exchange(ctx, "good-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if token.AccessToken != "gho_token" {
		t.Errorf("Expected access token 'gho_token', got '%s'", token.AccessToken)
	}

	attrs, err := client.FetchAttributes(ctx, token)
	if err != nil {
		t.Fatalf("FetchAttributes() error = %v", err)
	}
	if attrs["login"] != "ann" {
		t.Errorf("Expected login 'ann', got %v", attrs["login"])
	}
	if attrs["id"] != float64(42) {
		t.Errorf("Expected id 42, got %v", attrs["id"])
	}
}

func TestClient_ExchangeErrors(t *testing.T) {
	t.Parallel()
	client := newTestClient(newFakeGitHub(t))

	if _, err := client.Exchange(context.Background(), ""); err == nil {
		t.Error("Expected error for empty code")
	}
	if _, err := client.Exchange(context.Background(), "bad-code"); err == nil {
		t.Error("Expected error for rejected code")
	}
}

func TestClient_FetchAttributesUnauthorized(t *testing.T) {
	t.Parallel()
	client := newTestClient(newFakeGitHub(t))

	_, err := client.FetchAttributes(context.Background(), &oauth2.Token{AccessToken: "revoked", TokenType: "bearer"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Expected status 401 error, got %v", err)
	}
}
