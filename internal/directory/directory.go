// Package directory maps resolved provider identities onto durable local users.
//
// A login is matched by GitHub id first, then by email, and only creates a
// new user when neither key is known. The whole decision runs inside a single
// store transaction so concurrent logins for the same person converge on one row.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/authgate/internal/logger"
	"github.com/benvon/authgate/internal/models"
	"github.com/benvon/authgate/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned by lookups when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrConflict is returned when an update would give two users the same key.
	ErrConflict = errors.New("user key already taken")
	// ErrInvalidIdentity is returned for identities without an email.
	ErrInvalidIdentity = errors.New("identity has no email")
)

// DirectoryError wraps a store failure with the directory operation that hit it.
type DirectoryError struct {
	Op  string
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("directory %s: %v", e.Op, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// Tx is the store as seen from inside one transaction.
// Lookups return ErrNotFound when nothing matches.
type Tx interface {
	FindByGithubID(ctx context.Context, githubID int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// Insert assigns ID, CreatedAt and UpdatedAt.
	Insert(ctx context.Context, user *models.User) error
	// Update persists the user by ID and refreshes UpdatedAt.
	Update(ctx context.Context, user *models.User) error
}

// Store is the persistence behind a Directory.
type Store interface {
	// WithTx runs fn in a transaction, committing only when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

// Match says which key linked a login to an existing user.
type Match string

const (
	MatchGithubID Match = "github_id"
	MatchEmail    Match = "email"
	MatchCreated  Match = "created"
)

// Result is the outcome of reconciling one identity.
type Result struct {
	User    *models.User
	MatchBy Match
}

// Created reports whether the login created a new user.
func (r *Result) Created() bool {
	return r.MatchBy == MatchCreated
}

// Directory is the user directory. It is safe for concurrent use.
type Directory struct {
	store  Store
	logger *zap.Logger
}

// New creates a directory backed by store.
func New(store Store, zapLogger *zap.Logger) *Directory {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Directory{store: store, logger: zapLogger}
}

// Upsert creates or refreshes the user for identity and returns the stored row.
func (d *Directory) Upsert(ctx context.Context, identity *models.ProviderIdentity) (*models.User, error) {
	res, err := d.Reconcile(ctx, identity)
	if err != nil {
		return nil, err
	}
	return res.User, nil
}

// Reconcile is Upsert that also reports how the identity was matched.
func (d *Directory) Reconcile(ctx context.Context, identity *models.ProviderIdentity) (*Result, error) {
	if identity == nil || identity.Email == "" {
		return nil, &DirectoryError{Op: "upsert", Err: ErrInvalidIdentity}
	}

	ctx, span := telemetry.Tracer().Start(ctx, "directory.upsert")
	defer span.End()

	var res *Result
	err := d.store.WithTx(ctx, func(tx Tx) error {
		r, err := reconcile(ctx, tx, identity)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		span.RecordError(err)
		var de *DirectoryError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DirectoryError{Op: "upsert", Err: err}
	}

	span.SetAttributes(
		attribute.Int64("user.id", res.User.ID),
		attribute.String("directory.match", string(res.MatchBy)),
	)
	d.logger.Debug("user_reconciled",
		zap.Int64("user_id", res.User.ID),
		zap.String("email", logger.MaskEmail(res.User.Email)),
		zap.String("match", string(res.MatchBy)),
	)
	return res, nil
}

func reconcile(ctx context.Context, tx Tx, identity *models.ProviderIdentity) (*Result, error) {
	if identity.GithubID != 0 {
		user, err := tx.FindByGithubID(ctx, identity.GithubID)
		switch {
		case err == nil:
			user.Merge(identity)
			if err := tx.Update(ctx, user); err != nil {
				return nil, err
			}
			return &Result{User: user, MatchBy: MatchGithubID}, nil
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	user, err := tx.FindByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		user.Merge(identity)
		if err := tx.Update(ctx, user); err != nil {
			return nil, err
		}
		return &Result{User: user, MatchBy: MatchEmail}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	user = models.NewUserFromIdentity(identity)
	if err := tx.Insert(ctx, user); err != nil {
		return nil, err
	}
	return &Result{User: user, MatchBy: MatchCreated}, nil
}

// FindByEmail returns the user with the given email or ErrNotFound.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := d.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &DirectoryError{Op: "find_by_email", Err: err}
	}
	return user, nil
}

// FindByID returns the user with the given id or ErrNotFound.
func (d *Directory) FindByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := d.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &DirectoryError{Op: "find_by_id", Err: err}
	}
	return user, nil
}
