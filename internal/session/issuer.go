// Package session turns completed OAuth2 logins into signed session tokens.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/authgate/internal/directory"
	"github.com/benvon/authgate/internal/events"
	"github.com/benvon/authgate/internal/logger"
	"github.com/benvon/authgate/internal/models"
	"go.uber.org/zap"
)

// Stage names the login step that failed.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageUpsert  Stage = "upsert"
	StageIssue   Stage = "issue"
)

// LoginFailedError wraps the cause of a failed login. Its message is for
// logs only; callers show users a generic reason.
type LoginFailedError struct {
	Stage Stage
	Err   error
}

func (e *LoginFailedError) Error() string {
	return fmt.Sprintf("login failed at %s: %v", e.Stage, e.Err)
}

func (e *LoginFailedError) Unwrap() error {
	return e.Err
}

// IdentityResolver resolves provider attributes into an identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, attrs map[string]any, accessToken string) (*models.ProviderIdentity, error)
}

// UserDirectory is the part of the directory the issuer needs.
type UserDirectory interface {
	Reconcile(ctx context.Context, identity *models.ProviderIdentity) (*directory.Result, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

// TokenCodec signs and verifies claim sets.
type TokenCodec interface {
	Issue(claims models.Claims) (string, error)
	Verify(token string) (*models.Claims, error)
}

// Login is the result of a successful login.
type Login struct {
	Token   string
	User    *models.User
	Created bool
}

// Introspection is the outcome of inspecting a token.
type Introspection struct {
	Valid  bool           `json:"valid"`
	Claims *models.Claims `json:"claims,omitempty"`
}

// Issuer orchestrates resolve, upsert and issue. It holds no per-request state.
type Issuer struct {
	resolver       IdentityResolver
	directory      UserDirectory
	codec          TokenCodec
	publisher      events.Publisher
	publishTimeout time.Duration
	logger         *zap.Logger
}

// DefaultPublishTimeout bounds login event publishing.
const DefaultPublishTimeout = 2 * time.Second

// Option configures an Issuer.
type Option func(*Issuer)

// WithPublisher publishes a user.signed_in event after each login.
func WithPublisher(p events.Publisher) Option {
	return func(i *Issuer) {
		if p != nil {
			i.publisher = p
		}
	}
}

// WithPublishTimeout overrides DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.publishTimeout = d
		}
	}
}

// WithLogger sets the issuer's logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Issuer) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIssuer creates an issuer.
func NewIssuer(resolver IdentityResolver, dir UserDirectory, codec TokenCodec, opts ...Option) *Issuer {
	i := &Issuer{
		resolver:  resolver,
		directory: dir,
		codec:     codec,
		publisher:      events.NopPublisher{},
		publishTimeout: DefaultPublishTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// CompleteLogin resolves the identity, upserts the user and issues a token,
// in that order. Any failure returns a *LoginFailedError and no token.
func (i *Issuer) CompleteLogin(ctx context.Context, attrs map[string]any, accessToken string) (*Login, error) {
	identity, err := i.resolver.Resolve(ctx, attrs, accessToken)
	if err != nil {
		return nil, &LoginFailedError{Stage: StageResolve, Err: err}
	}

	res, err := i.directory.Reconcile(ctx, identity)
	if err != nil {
		return nil, &LoginFailedError{Stage: StageUpsert, Err: err}
	}

	token, err := i.codec.Issue(models.ClaimsForUser(res.User))
	if err != nil {
		return nil, &LoginFailedError{Stage: StageIssue, Err: err}
	}

	i.logger.Info("login_completed",
		zap.Int64("user_id", res.User.ID),
		zap.String("email", logger.MaskEmail(res.User.Email)),
		zap.String("match", string(res.MatchBy)),
		zap.Bool("repos_resolved", identity.ReposResolved),
	)

	i.publish(ctx, events.NewSignedIn(res.User, res.Created()))

	return &Login{Token: token, User: res.User, Created: res.Created()}, nil
}

// Introspect verifies token. It never fails: an unusable token is simply not valid.
func (i *Issuer) Introspect(token string) Introspection {
	claims, err := i.codec.Verify(token)
	if err != nil {
		return Introspection{Valid: false}
	}
	return Introspection{Valid: true, Claims: claims}
}

// IssueFor issues a fresh token for principal, with claims taken from the
// principal's current directory row.
func (i *Issuer) IssueFor(ctx context.Context, p Principal) (string, error) {
	user, err := i.currentUser(ctx, p)
	if err != nil {
		return "", err
	}
	token, err := i.codec.Issue(models.ClaimsForUser(user))
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

func (i *Issuer) currentUser(ctx context.Context, p Principal) (*models.User, error) {
	switch p.Kind {
	case PrincipalLocalUser:
		if p.User == nil {
			return nil, ErrInvalidPrincipal
		}
		return i.directory.FindByID(ctx, p.User.ID)
	case PrincipalProvider:
		if p.Identity == nil || p.Identity.Email == "" {
			return nil, ErrInvalidPrincipal
		}
		return i.directory.FindByEmail(ctx, p.Identity.Email)
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidPrincipal, p.Kind)
	}
}

// IsUnauthenticated reports whether err means the caller has no usable principal.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrInvalidPrincipal) ||
		errors.Is(err, ErrPrincipalNotFound) ||
		errors.Is(err, directory.ErrNotFound)
}

// publish hands event to the publisher and waits at most publishTimeout.
// A publisher stuck on a blocked broker connection keeps running in the
// background; the login does not wait for it.
func (i *Issuer) publish(ctx context.Context, event *events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.publishTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- i.publisher.Publish(ctx, event) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		i.logger.Warn("login_event_publish_failed",
			zap.Int64("user_id", event.UserID),
			zap.String("error", logger.SanitizeError(err)),
		)
	}
}
