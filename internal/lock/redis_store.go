package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// metaSuffix names the companion key holding a lock's owner/acquired_at/
// metadata envelope, set and expired alongside the CAS token under the same
// TTL so Status can report more than just the bare token.
const metaSuffix = ":meta"

// releaseScript performs the compare-and-delete release atomically: it deletes
// the key only if its current value still matches the caller's lock_id.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisStore is the production Store backing LockManager, realizing
// "SET key lock_id NX PX ttl_ms" for acquire and a scripted compare-and-delete
// for release.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client for lock storage.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) TryAcquire(ctx context.Context, key, lockID string, metadata []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, lockID, ttl).Result()
	if err != nil || !ok {
		return ok, err
	}
	if err := s.client.Set(ctx, key+metaSuffix, metadata, ttl).Err(); err != nil {
		return true, err
	}
	return true, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, lockID string) (bool, error) {
	result, err := releaseScript.Run(ctx, s.client, []string{key}, lockID).Int64()
	if err != nil {
		return false, err
	}
	if result == 1 {
		s.client.Del(ctx, key+metaSuffix)
	}
	return result == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, []byte, time.Duration, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil, 0, false, nil
	}
	if err != nil {
		return "", nil, 0, false, err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return "", nil, 0, false, err
	}
	if ttl < 0 {
		// Key has no expiry or expired between GET and TTL; treat negative-no-expiry
		// as "found with no known remaining TTL" rather than as absent.
		ttl = 0
	}

	metadata, err := s.client.Get(ctx, key+metaSuffix).Bytes()
	if err != nil && err != redis.Nil {
		return "", nil, 0, false, err
	}
	if err == redis.Nil {
		metadata = nil
	}

	return value, metadata, ttl, true, nil
}
