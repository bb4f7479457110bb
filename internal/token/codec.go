// Package token issues and verifies the HS256 session tokens handed to clients
// after a successful login.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/authgate/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalid is returned for any token that is malformed, carries a bad
// signature, or has expired. Callers treat it as "unauthenticated".
var ErrInvalid = errors.New("invalid token")

const (
	claimUserID      = "userId"
	claimGithubID    = "githubId"
	claimGithubLogin = "githubLogin"
	claimName        = "name"
	claimPicture     = "picture"
)

// Config holds the process-wide signing configuration.
// Changing SigningKey invalidates every token issued with the previous key.
type Config struct {
	SigningKey []byte
	Lifetime   time.Duration
}

// Codec encodes claim sets into signed tokens and verifies them.
// It is safe for concurrent use.
type Codec struct {
	key      []byte
	lifetime time.Duration
	now      func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the wall clock used for issued-at, expiry and validation.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a codec from an immutable configuration.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	// Timestamps are whole seconds, so a shorter lifetime would issue
	// tokens that are already expired.
	if cfg.Lifetime < time.Second {
		return nil, fmt.Errorf("token lifetime must be at least 1s, got %s", cfg.Lifetime)
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	c := &Codec{
		key:      key,
		lifetime: cfg.Lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs the claim set. IssuedAt and ExpiresAt on the input are ignored
// and replaced by the codec's clock and lifetime.
func (c *Codec) Issue(claims models.Claims) (string, error) {
	if claims.Subject == "" {
		return "", fmt.Errorf("cannot issue token without subject")
	}

	now := c.now().Truncate(time.Second)
	b := jwt.NewBuilder().
		Subject(claims.Subject).
		IssuedAt(now).
		Expiration(now.Add(c.lifetime)).
		Claim(claimUserID, claims.UserID)
	if claims.GithubID != nil {
		b = b.Claim(claimGithubID, *claims.GithubID)
	}
	if claims.GithubLogin != "" {
		b = b.Claim(claimGithubLogin, claims.GithubLogin)
	}
	if claims.Name != "" {
		b = b.Claim(claimName, claims.Name)
	}
	if claims.Picture != "" {
		b = b.Claim(claimPicture, claims.Picture)
	}

	tok, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, c.key))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

// Verify checks signature and expiry and returns the typed claim set.
// Every failure wraps ErrInvalid.
func (c *Codec) Verify(tokenString string) (*models.Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalid)
	}

	tok, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(jwa.HS256, c.key),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(c.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	// Tokens without an expiry would never lapse; this codec never issues them.
	if tok.Expiration().IsZero() {
		return nil, fmt.Errorf("%w: missing expiration", ErrInvalid)
	}
	if tok.Subject() == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}

	claims := &models.Claims{
		Subject:   tok.Subject(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}

	v, ok := tok.Get(claimUserID)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s claim", ErrInvalid, claimUserID)
	}
	userID, ok := int64Claim(v)
	if !ok {
		return nil, fmt.Errorf("%w: malformed %s claim", ErrInvalid, claimUserID)
	}
	claims.UserID = userID

	if v, ok := tok.Get(claimGithubID); ok {
		if id, ok := int64Claim(v); ok {
			claims.GithubID = &id
		}
	}
	claims.GithubLogin = stringClaim(tok, claimGithubLogin)
	claims.Name = stringClaim(tok, claimName)
	claims.Picture = stringClaim(tok, claimPicture)

	return claims, nil
}

// SubjectOf returns the subject (email) of a valid token.
func (c *Codec) SubjectOf(tokenString string) (string, error) {
	claims, err := c.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// UserIDOf returns the internal user id of a valid token.
func (c *Codec) UserIDOf(tokenString string) (int64, error) {
	claims, err := c.Verify(tokenString)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// int64Claim converts a decoded JSON number to int64.
func int64Claim(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), n == float64(int64(n))
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
