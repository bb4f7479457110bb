package middleware

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	defaultRatelimitRate = "5-S"
	limiterKeyPrefix     = "authgate:limiter"
)

// NewRedisLimiterStore returns a limiter store shared by every server
// replica through Redis.
func NewRedisLimiterStore(client *redis.Client) (limiter.Store, error) {
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: limiterKeyPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter store: %w", err)
	}
	return store, nil
}
