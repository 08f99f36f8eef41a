package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	locker := NewRedisLocker(client)
	key := "payments:test:" + uuid.NewString()

	token, ok, err := locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, key, "someone-else"))
	_, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, key, token))
	token, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, locker.Release(ctx, key, token))
}

func TestRedisLockerRejectsBadArguments(t *testing.T) {
	var unset *RedisLocker
	_, _, err := unset.TryLock(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.NoError(t, unset.Release(context.Background(), "k", "t"))

	locker := NewRedisLocker(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	_, _, err = locker.TryLock(context.Background(), "", time.Minute)
	assert.Error(t, err)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	assert.Error(t, err)
}
