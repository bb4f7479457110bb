// Package oauth wraps the GitHub OAuth2 authorization-code flow.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// DefaultScopes are requested on every login. user:email is needed for the
// primary-address lookup.
var DefaultScopes = []string{"read:user", "user:email"}

// Config configures a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Endpoint defaults to GitHub's authorize and token URLs.
	Endpoint oauth2.Endpoint
	// APIURL is the REST base used for GET /user.
	APIURL string
	// HTTPClient is used for the code exchange and API calls.
	HTTPClient *http.Client
}

// Client wraps OAuth2 client functionality
type Client struct {
	config     *oauth2.Config
	apiURL     string
	httpClient *http.Client
}

// NewClient creates a new GitHub OAuth2 client
func NewClient(cfg Config) *Client {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = github.Endpoint
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the authorization URL
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// Exchange exchanges an authorization code for an access token
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}
	token, err := c.config.Exchange(c.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}

// FetchAttributes returns the raw attribute map of GET /user for token.
func (c *Client) FetchAttributes(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.config.Client(c.clientContext(ctx), token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("failed to fetch user: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var attrs map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&attrs); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return attrs, nil
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
