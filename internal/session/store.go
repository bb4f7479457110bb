package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrPrincipalNotFound is returned for unknown or expired principal sessions.
var ErrPrincipalNotFound = errors.New("principal session not found")

const principalKeyPrefix = "authgate:principal:"

// PrincipalStore keeps the short-lived server-side record of who completed
// an OAuth2 login, keyed by an opaque session id carried in a cookie.
type PrincipalStore interface {
	Save(ctx context.Context, userID int64) (string, error)
	Load(ctx context.Context, sessionID string) (int64, error)
	Delete(ctx context.Context, sessionID string) error
}

// RedisPrincipalStore implements PrincipalStore with expiring Redis keys.
type RedisPrincipalStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPrincipalStore creates a Redis-backed principal store
func NewRedisPrincipalStore(client *redis.Client, ttl time.Duration) *RedisPrincipalStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisPrincipalStore{client: client, ttl: ttl}
}

// Save implements PrincipalStore.
func (s *RedisPrincipalStore) Save(ctx context.Context, userID int64) (string, error) {
	sessionID := uuid.NewString()
	if err := s.client.Set(ctx, principalKeyPrefix+sessionID, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to save principal: %w", err)
	}
	return sessionID, nil
}

// Load implements PrincipalStore.
func (s *RedisPrincipalStore) Load(ctx context.Context, sessionID string) (int64, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return 0, ErrPrincipalNotFound
	}
	raw, err := s.client.Get(ctx, principalKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrPrincipalNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load principal: %w", err)
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt principal record: %w", err)
	}
	return userID, nil
}

// Delete implements PrincipalStore. Deleting an unknown session is not an error.
func (s *RedisPrincipalStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, principalKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete principal: %w", err)
	}
	return nil
}
