package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/benvon/authgate/internal/directory"
	"github.com/benvon/authgate/internal/models"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const userColumns = `id, email, name, picture, github_id, github_login, public_repos, created_at, updated_at`

// UserStore is the Postgres implementation of directory.Store.
type UserStore struct {
	db *DB
}

var _ directory.Store = (*UserStore)(nil)

// NewUserStore creates a new Postgres user store
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// WithTx runs fn in a transaction. Two first logins for the same person can
// both miss on lookup and race to insert; the loser hits a unique violation
// and is run once more so that it merges into the winner's row.
func (s *UserStore) WithTx(ctx context.Context, fn func(tx directory.Tx) error) error {
	err := s.runTx(ctx, fn)
	if isUniqueViolation(err) {
		err = s.runTx(ctx, fn)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %w", directory.ErrConflict, err)
	}
	return err
}

func (s *UserStore) runTx(ctx context.Context, fn func(tx directory.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback()
	}()

	if err := fn(&userTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByEmail retrieves a user by email
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row, "get user by email")
}

// FindByID retrieves a user by ID
func (s *UserStore) FindByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, "get user")
}

type userTx struct {
	tx *sql.Tx
}

// FindByGithubID locks the matching row until the transaction ends.
func (t *userTx) FindByGithubID(ctx context.Context, githubID int64) (*models.User, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE github_id = $1 FOR UPDATE`, githubID)
	return scanUser(row, "get user by github id")
}

// FindByEmail locks the matching row until the transaction ends.
func (t *userTx) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 FOR UPDATE`, email)
	return scanUser(row, "get user by email")
}

func (t *userTx) Insert(ctx context.Context, user *models.User) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO users (email, name, picture, github_id, github_login, public_repos)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`,
		user.Email,
		user.Name,
		user.Picture,
		nullInt64(user.GithubID),
		nullString(user.GithubLogin),
		nullInt(user.PublicRepos),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Update never nulls a key column: a NULL argument keeps the stored value.
func (t *userTx) Update(ctx context.Context, user *models.User) error {
	row := t.tx.QueryRowContext(ctx, `
		UPDATE users
		SET email = $2,
			name = $3,
			picture = $4,
			github_id = COALESCE($5, github_id),
			github_login = COALESCE($6, github_login),
			public_repos = COALESCE($7, public_repos),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID,
		user.Email,
		user.Name,
		user.Picture,
		nullInt64(user.GithubID),
		nullString(user.GithubLogin),
		nullInt(user.PublicRepos),
	)
	updated, err := scanUser(row, "update user")
	if err != nil {
		return err
	}
	*user = *updated
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, op string) (*models.User, error) {
	var (
		u           models.User
		githubID    sql.NullInt64
		githubLogin sql.NullString
		publicRepos sql.NullInt32
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Picture,
		&githubID,
		&githubLogin,
		&publicRepos,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}

	if githubID.Valid {
		u.GithubID = &githubID.Int64
	}
	if githubLogin.Valid {
		u.GithubLogin = &githubLogin.String
	}
	if publicRepos.Valid {
		n := int(publicRepos.Int32)
		u.PublicRepos = &n
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}
