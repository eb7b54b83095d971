package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UserRateLimiter caps mutating engine requests (place order, create alert)
// per user over a fixed window. Counters live in per-window buckets keyed by
// the window index, so a counter that misses its EXPIRE still stops matching
// once the window rolls over.
type UserRateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewUserRateLimiter(client *redis.Client, limit int64, window time.Duration) *UserRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &UserRateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func rateLimitKey(userID uuid.UUID, bucket int64) string {
	return fmt.Sprintf("engine:ratelimit:%s:%d", userID, bucket)
}

func (r *UserRateLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	const op = "redis.UserRateLimiter.Allow"

	bucket := time.Now().UnixNano() / int64(r.window)
	key := rateLimitKey(userID, bucket)

	pipe := r.client.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return count.Val() <= r.limit, nil
}
