// Package github resolves GitHub OAuth2 logins into provider identities.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benvon/authgate/internal/logger"
	"github.com/benvon/authgate/internal/models"
	"github.com/benvon/authgate/internal/telemetry"
	"github.com/benvon/authgate/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ErrIdentityResolution means GitHub did not yield a usable primary email.
// It is fatal for the login attempt.
var ErrIdentityResolution = errors.New("identity resolution failed")

const (
	// DefaultAPIURL is the public GitHub REST API.
	DefaultAPIURL = "https://api.github.com"

	defaultEmailTimeout = 5 * time.Second
	defaultReposTimeout = 3 * time.Second

	reposPerPage = 100
	// maxRepoPages bounds pagination for accounts with very many repositories.
	maxRepoPages = 10
	maxBodyBytes = 1 << 20
)

// APIError is a non-2xx answer from the GitHub API.
type APIError struct {
	Operation string
	Status    int
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github %s: status %d: %s", e.Operation, e.Status, e.Message)
}

// Config configures a Resolver.
type Config struct {
	APIURL       string
	EmailTimeout time.Duration
	ReposTimeout time.Duration
	// HTTPClient supplies the base transport. Bearer auth is layered on top.
	HTTPClient *http.Client
}

// Resolver turns GitHub attributes plus an access token into a ProviderIdentity.
// It is safe for concurrent use.
type Resolver struct {
	apiURL       string
	emailTimeout time.Duration
	reposTimeout time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewResolver creates a resolver, filling unset config with defaults.
func NewResolver(cfg Config, zapLogger *zap.Logger) *Resolver {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.EmailTimeout <= 0 {
		cfg.EmailTimeout = defaultEmailTimeout
	}
	if cfg.ReposTimeout <= 0 {
		cfg.ReposTimeout = defaultReposTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Resolver{
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		emailTimeout: cfg.EmailTimeout,
		reposTimeout: cfg.ReposTimeout,
		httpClient:   cfg.HTTPClient,
		logger:       zapLogger,
	}
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Resolve reads id, login, name, avatar_url and email from attrs. When attrs
// carry no usable email the primary address is fetched from /user/emails;
// public repositories are listed for enrichment at the same time. A failed
// email lookup fails resolution. A failed repository lookup only degrades it.
func (r *Resolver) Resolve(ctx context.Context, attrs map[string]any, accessToken string) (*models.ProviderIdentity, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "github.resolve")
	defer span.End()

	identity := identityFromAttributes(attrs)
	needEmail := !usableEmail(identity.Email)
	if needEmail {
		identity.Email = ""
	}
	if accessToken == "" {
		if needEmail {
			span.SetStatus(codes.Error, "missing access token")
			return nil, fmt.Errorf("%w: no email attribute and no access token", ErrIdentityResolution)
		}
		r.logger.Warn("github_repos_lookup_skipped", zap.String("reason", "missing_access_token"))
		return r.finish(identity, span)
	}

	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, r.httpClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	)

	var (
		wg       sync.WaitGroup
		email    string
		emailErr error
		repos    []map[string]any
		reposErr error
	)
	if needEmail {
		wg.Add(1)
		go func() {
			defer wg.Done()
			email, emailErr = r.primaryEmail(ctx, client)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		repos, reposErr = r.publicRepos(ctx, client)
	}()
	wg.Wait()

	if needEmail {
		if emailErr != nil {
			span.RecordError(emailErr)
			span.SetStatus(codes.Error, "email lookup failed")
			return nil, fmt.Errorf("%w: %w", ErrIdentityResolution, emailErr)
		}
		identity.Email = email
	}

	if reposErr != nil {
		r.logger.Warn("github_repos_lookup_degraded",
			zap.Int64("github_id", identity.GithubID),
			zap.String("error", logger.SanitizeError(reposErr)),
		)
	} else {
		identity.PublicRepos = repos
		identity.ReposResolved = true
	}

	return r.finish(identity, span)
}

func (r *Resolver) finish(identity *models.ProviderIdentity, span trace.Span) (*models.ProviderIdentity, error) {
	if err := validation.ValidateIdentity(identity); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIdentityResolution, err)
	}
	span.SetAttributes(
		attribute.Int64("github.id", identity.GithubID),
		attribute.Int("github.public_repos", identity.PublicRepoCount()),
		attribute.Bool("github.repos_resolved", identity.ReposResolved),
	)
	return identity, nil
}

// primaryEmail returns the entry flagged primary. There is deliberately no
// fallback to a secondary address.
func (r *Resolver) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "github.user_emails")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.emailTimeout)
	defer cancel()

	var emails []githubEmail
	if _, err := r.getJSON(ctx, client, "emails", r.apiURL+"/user/emails", &emails); err != nil {
		span.RecordError(err)
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Email != "" {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("no primary email among %d addresses", len(emails))
}

// publicRepos lists the user's public repositories, following pagination.
func (r *Resolver) publicRepos(ctx context.Context, client *http.Client) ([]map[string]any, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "github.user_repos")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.reposTimeout)
	defer cancel()

	next := fmt.Sprintf("%s/user/repos?type=public&per_page=%d", r.apiURL, reposPerPage)
	repos := []map[string]any{}
	for page := 0; next != "" && page < maxRepoPages; page++ {
		var batch []map[string]any
		link, err := r.getJSON(ctx, client, "repos", next, &batch)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		repos = append(repos, batch...)
		next = nextLink(link)
	}
	span.SetAttributes(attribute.Int("github.repo_count", len(repos)))
	return repos, nil
}

// getJSON decodes a 2xx JSON response into out and returns the Link header.
func (r *Resolver) getJSON(ctx context.Context, client *http.Client, op, url string, out any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("github %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("github %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("github %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{Operation: op, Status: resp.StatusCode, Message: apiErrorMessage(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return "", fmt.Errorf("github %s: decode: %w", op, err)
	}
	return resp.Header.Get("Link"), nil
}

func apiErrorMessage(body []byte) string {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return logger.SanitizeString(apiErr.Message, logger.MaxErrorMessageLength)
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return logger.SanitizeString(msg, logger.MaxErrorMessageLength)
	}
	return "github request failed"
}

// nextLink extracts the rel="next" URL from an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}

func identityFromAttributes(attrs map[string]any) *models.ProviderIdentity {
	identity := &models.ProviderIdentity{Attributes: attrs}
	if attrs == nil {
		return identity
	}
	identity.GithubID = int64Attr(attrs["id"])
	identity.Login = stringAttr(attrs["login"])
	identity.Name = stringAttr(attrs["name"])
	identity.AvatarURL = stringAttr(attrs["avatar_url"])
	identity.Email = stringAttr(attrs["email"])
	return identity
}

func usableEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1
}

func stringAttr(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func int64Attr(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}
