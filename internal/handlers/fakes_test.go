package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/benvon/authgate/internal/directory"
	"github.com/benvon/authgate/internal/models"
	"github.com/benvon/authgate/internal/services/oauth"
	"github.com/benvon/authgate/internal/session"
	"github.com/benvon/authgate/internal/token"
	"golang.org/x/oauth2"
)

const testKey = "0123456789abcdef0123456789abcdef"

type memStates struct {
	mu     sync.Mutex
	next   int
	issued map[string]bool
}

func newMemStates() *memStates { return &memStates{issued: map[string]bool{}} }

func (s *memStates) Issue(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	state := "state-" + strconv.Itoa(s.next)
	s.issued[state] = true
	return state, nil
}

func (s *memStates) Consume(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.issued[state] {
		return oauth.ErrInvalidState
	}
	delete(s.issued, state)
	return nil
}

type memPrincipals struct {
	mu   sync.Mutex
	next int
	ids  map[string]int64
}

func newMemPrincipals() *memPrincipals { return &memPrincipals{ids: map[string]int64{}} }

func (p *memPrincipals) Save(_ context.Context, userID int64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	sid := "sid-" + strconv.Itoa(p.next)
	p.ids[sid] = userID
	return sid, nil
}

func (p *memPrincipals) Load(_ context.Context, sid string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.ids[sid]
	if !ok {
		return 0, session.ErrPrincipalNotFound
	}
	return id, nil
}

func (p *memPrincipals) Delete(_ context.Context, sid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ids, sid)
	return nil
}

type fakeProvider struct {
	attrs       map[string]any
	exchangeErr error
	fetchErr    error
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://github.com/login/oauth/authorize?state=" + state
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if code == "" {
		return nil, errors.New("missing code")
	}
	return &oauth2.Token{AccessToken: "gho_" + code}, nil
}

func (f *fakeProvider) FetchAttributes(context.Context, *oauth2.Token) (map[string]any, error) {
	return f.attrs, f.fetchErr
}

// resolverFunc adapts a function to session.IdentityResolver.
type resolverFunc func(ctx context.Context, attrs map[string]any, accessToken string) (*models.ProviderIdentity, error)

func (f resolverFunc) Resolve(ctx context.Context, attrs map[string]any, accessToken string) (*models.ProviderIdentity, error) {
	return f(ctx, attrs, accessToken)
}

// staticResolver resolves every login to GitHub user 42 with the given email.
func staticResolver(email string) resolverFunc {
	return func(_ context.Context, attrs map[string]any, _ string) (*models.ProviderIdentity, error) {
		return &models.ProviderIdentity{
			Attributes:    attrs,
			GithubID:      42,
			Login:         "ann",
			Name:          "Ann",
			Email:         email,
			PublicRepos:   []map[string]any{{"id": 1}, {"id": 2}},
			ReposResolved: true,
		}, nil
	}
}

type testDeps struct {
	codec      *token.Codec
	directory  *directory.Directory
	issuer     *session.Issuer
	states     *memStates
	principals *memPrincipals
	provider   *fakeProvider
}

func newTestDeps(t *testing.T, resolver session.IdentityResolver) *testDeps {
	t.Helper()
	codec, err := token.NewCodec(token.Config{SigningKey: []byte(testKey), Lifetime: time.Hour})
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	dir := directory.New(directory.NewMemoryStore(), nil)
	return &testDeps{
		codec:      codec,
		directory:  dir,
		issuer:     session.NewIssuer(resolver, dir, codec),
		states:     newMemStates(),
		principals: newMemPrincipals(),
		provider:   &fakeProvider{attrs: map[string]any{"id": float64(42), "login": "ann"}},
	}
}

var testRedirects = OAuthRedirects{
	CallbackURL: "http://localhost:5173/oauth-callback",
	LoginURL:    "http://localhost:5173/login",
}

var testCookies = CookieConfig{PrincipalTTL: 10 * time.Minute, StateTTL: 10 * time.Minute}

func findCookie(resp *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range resp.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
