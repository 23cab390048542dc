package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Placeholder is stored while the first request for a key is in flight.
const Placeholder = "processing"

const (
	keyPrefix = "bondtab:idempotency:"
	// claimAttempts bounds retries when a claimed key expires between SETNX
	// and GET.
	claimAttempts = 3
)

// releaseScript deletes a key only while it still holds the placeholder, so
// a late Release never drops a finished response.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdempotencyStore implements usecase.IdempotencyStore on Redis strings.
type IdempotencyStore struct {
	client *redis.Client
}

func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// CheckAndSet claims key with response, or with Placeholder when response is
// nil. If key is already claimed it returns exists with the stored value.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	var value any = Placeholder
	if response != nil {
		value = response
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		claimed, err := s.client.SetNX(ctx, keyPrefix+key, value, ttl).Result()
		if err != nil {
			return false, nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if claimed {
			return false, nil, nil
		}

		stored, err := s.client.Get(ctx, keyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return false, nil, fmt.Errorf("read idempotency key: %w", err)
		}
		return true, stored, nil
	}
	return false, nil, fmt.Errorf("claim idempotency key %q: expired %d times while reading", key, claimAttempts)
}

// Update stores the final response for key.
func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return s.client.Set(ctx, keyPrefix+key, response, ttl).Err()
}

// Release frees a key still holding the placeholder so the request can be
// retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, s.client, []string{keyPrefix + key}, Placeholder).Err()
}
