package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStoreClaimsNewKeyWithPlaceholder(t *testing.T) {
	client, mr := newTestRedisClient(t)
	store := NewIdempotencyStore(client)

	exists, stored, err := store.CheckAndSet(context.Background(), "0xa11:mint-1", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Nil(t, stored)

	got, err := mr.Get(keyPrefix + "0xa11:mint-1")
	require.NoError(t, err)
	assert.Equal(t, Placeholder, got)
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"0xa11:mint-1"))
}

func TestIdempotencyStoreReportsFirstClaim(t *testing.T) {
	client, _ := newTestRedisClient(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	exists, _, err := store.CheckAndSet(ctx, "k", []byte("first"), time.Minute)
	require.NoError(t, err)
	require.False(t, exists)

	exists, stored, err := store.CheckAndSet(ctx, "k", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "first", string(stored))
}

func TestIdempotencyStoreUpdateReplacesPlaceholder(t *testing.T) {
	client, mr := newTestRedisClient(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	_, _, err := store.CheckAndSet(ctx, "k", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, "k", []byte(`{"status":201}`), time.Hour))

	got, err := mr.Get(keyPrefix + "k")
	require.NoError(t, err)
	assert.Equal(t, `{"status":201}`, got)
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"k"))
}

func TestIdempotencyStoreExpiredKeyIsClaimable(t *testing.T) {
	client, mr := newTestRedisClient(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	_, _, err := store.CheckAndSet(ctx, "ttl", nil, time.Minute)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	exists, _, err := store.CheckAndSet(ctx, "ttl", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIdempotencyStoreReleaseOnlyDropsPlaceholder(t *testing.T) {
	client, mr := newTestRedisClient(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	_, _, err := store.CheckAndSet(ctx, "pending", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "pending"))
	assert.False(t, mr.Exists(keyPrefix+"pending"))

	require.NoError(t, store.Update(ctx, "done", []byte("response"), time.Minute))
	require.NoError(t, store.Release(ctx, "done"))
	assert.True(t, mr.Exists(keyPrefix+"done"))

	assert.NoError(t, store.Release(ctx, "missing"))
}

func TestIdempotencyStoreServerDown(t *testing.T) {
	client, mr := newTestRedisClient(t)
	store := NewIdempotencyStore(client)
	mr.Close()

	_, _, err := store.CheckAndSet(context.Background(), "k", nil, time.Minute)
	assert.ErrorContains(t, err, "claim idempotency key")
}
