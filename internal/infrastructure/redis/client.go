package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// NewClient creates a Redis client from redisURL and verifies the connection
// within pingTimeout.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	return newClient(ctx, redisURL, pingTimeout)
}

func newClient(ctx context.Context, redisURL string, timeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	// socket reads and writes honour context deadlines
	opts.ContextTimeoutEnabled = true
	if opts.ClientName == "" {
		opts.ClientName = "bondtab"
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}
