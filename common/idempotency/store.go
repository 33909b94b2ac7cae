package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store guards a key so that only one holder processes it at a time
type Store interface {
	// Reserve claims the key for ttl. ok is false when another holder already has it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release frees the key if it is still held with token
	Release(ctx context.Context, key, token string) error
}

// releaseScript deletes the key only when its value still matches the holder's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is a Store backed by SET NX
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis backed store whose keys live under prefix
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// Reserve claims key with a fresh token
func (s *RedisStore) Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.fullKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to reserve key %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees key when token still owns it; an expired or stolen key is left alone
func (s *RedisStore) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.fullKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release key %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) fullKey(key string) string {
	return s.prefix + ":" + key
}
