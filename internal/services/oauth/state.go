package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidState is returned for unknown, expired or already used states.
var ErrInvalidState = errors.New("invalid oauth state")

const stateKeyPrefix = "authgate:oauth_state:"

// StateStore issues single-use OAuth2 state values.
type StateStore interface {
	Issue(ctx context.Context) (string, error)
	// Consume succeeds at most once per issued state.
	Consume(ctx context.Context, state string) error
}

// RedisStateStore keeps states in Redis with a TTL.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore creates a Redis-backed state store
func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStateStore{client: client, ttl: ttl}
}

// Issue implements StateStore.
func (s *RedisStateStore) Issue(ctx context.Context) (string, error) {
	state := uuid.NewString()
	if err := s.client.Set(ctx, stateKeyPrefix+state, "1", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return state, nil
}

// Consume implements StateStore. GETDEL makes the check-and-delete atomic.
func (s *RedisStateStore) Consume(ctx context.Context, state string) error {
	if state == "" {
		return ErrInvalidState
	}
	err := s.client.GetDel(ctx, stateKeyPrefix+state).Err()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidState
	}
	if err != nil {
		return fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return nil
}
