package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "course-payments"), mr
}

func TestRedisStore_ReserveIsExclusive(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	token, ok, err := store.Reserve(ctx, "verify:bkash:P1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)
	require.True(t, mr.Exists("course-payments:verify:bkash:P1"))

	_, ok, err = store.Reserve(ctx, "verify:bkash:P1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore_ReleaseRequiresToken(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	token, ok, err := store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Release(ctx, "k", "someone-else"))
	require.True(t, mr.Exists("course-payments:k"))

	require.NoError(t, store.Release(ctx, "k", token))
	require.False(t, mr.Exists("course-payments:k"))
}

func TestRedisStore_ReserveExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Reserve(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = store.Reserve(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, _, err := store.Reserve(context.Background(), "k", time.Second)
	require.Error(t, err)
}
