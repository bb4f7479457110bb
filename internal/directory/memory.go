package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/authgate/internal/models"
)

// MemoryStore is an in-process Store. Transactions are serialized and
// applied atomically; users handed out are copies.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[int64]*models.User
	nextID int64
	now    func() time.Time
}

// NewMemoryStore creates an empty store. The first inserted user gets id 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]*models.User),
		nextID: 1,
		now:    time.Now,
	}
}

// WithTx runs fn against a private copy of the table and swaps it in on success.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		users:  make(map[int64]*models.User, len(s.users)),
		nextID: s.nextID,
		now:    s.now,
	}
	for id, u := range s.users {
		tx.users[id] = u
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.users = tx.users
	s.nextID = tx.nextID
	return nil
}

// FindByEmail implements Store.
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findBy(s.users, func(u *models.User) bool { return u.Email == email })
}

// FindByID implements Store.
func (s *MemoryStore) FindByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

// Len returns the number of stored users.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

type memoryTx struct {
	users  map[int64]*models.User
	nextID int64
	now    func() time.Time
}

func (tx *memoryTx) FindByGithubID(_ context.Context, githubID int64) (*models.User, error) {
	return findBy(tx.users, func(u *models.User) bool {
		return u.GithubID != nil && *u.GithubID == githubID
	})
}

func (tx *memoryTx) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return findBy(tx.users, func(u *models.User) bool { return u.Email == email })
}

func (tx *memoryTx) Insert(_ context.Context, user *models.User) error {
	if err := tx.checkUnique(user); err != nil {
		return err
	}
	now := tx.now()
	user.ID = tx.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	tx.nextID++
	tx.users[user.ID] = cloneUser(user)
	return nil
}

func (tx *memoryTx) Update(_ context.Context, user *models.User) error {
	existing, ok := tx.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if err := tx.checkUnique(user); err != nil {
		return err
	}
	// Keys are never cleared by an update.
	if user.GithubID == nil {
		user.GithubID = existing.GithubID
	}
	if user.GithubLogin == nil {
		user.GithubLogin = existing.GithubLogin
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = tx.now()
	tx.users[user.ID] = cloneUser(user)
	return nil
}

func (tx *memoryTx) checkUnique(user *models.User) error {
	for id, u := range tx.users {
		if id == user.ID {
			continue
		}
		if u.Email == user.Email {
			return fmt.Errorf("%w: email", ErrConflict)
		}
		if user.GithubID != nil && u.GithubID != nil && *u.GithubID == *user.GithubID {
			return fmt.Errorf("%w: github_id", ErrConflict)
		}
	}
	return nil
}

func findBy(users map[int64]*models.User, match func(*models.User) bool) (*models.User, error) {
	for _, u := range users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.GithubID != nil {
		v := *u.GithubID
		c.GithubID = &v
	}
	if u.GithubLogin != nil {
		v := *u.GithubLogin
		c.GithubLogin = &v
	}
	if u.PublicRepos != nil {
		v := *u.PublicRepos
		c.PublicRepos = &v
	}
	return &c
}
