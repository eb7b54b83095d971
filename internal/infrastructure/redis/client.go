package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewClient dials redis and verifies the connection before handing the
// client out.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	const op = "redis.NewClient"

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return client, nil
}
