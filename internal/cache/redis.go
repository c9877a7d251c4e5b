package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cache:"
const tagPrefix = "cache:tag:"

// RedisManager is an optional multi-process CacheManager backed by Redis.
// Each instance is independent (per spec §4.4's "no cross-instance
// consistency contract"); it mirrors the in-memory reverse tag index with a
// Redis set per tag maintained alongside the forward key.
type RedisManager struct {
	client *redis.Client
}

// NewRedisManager wraps an existing Redis client for cache storage.
func NewRedisManager(client *redis.Client) *RedisManager {
	return &RedisManager{client: client}
}

func (m *RedisManager) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	fullKey := keyPrefix + key

	// Remove this key from whatever tags it was previously a member of before
	// re-establishing tag membership, mirroring the in-memory implementation's
	// "set wholly replaces the previous tag set" semantics.
	if err := m.untagLocked(ctx, fullKey); err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	if ttl > 0 {
		pipe.Set(ctx, fullKey, value, ttl)
	} else {
		pipe.Set(ctx, fullKey, value, 0)
	}
	for _, tag := range tags {
		pipe.SAdd(ctx, tagPrefix+tag, fullKey)
	}
	if len(tags) > 0 {
		pipe.SAdd(ctx, memberTagsKey(fullKey), tagsAsInterfaces(tags)...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisManager) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	value, err := m.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *RedisManager) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return m.untagLocked(ctx, keyPrefix+key)
}

func (m *RedisManager) InvalidateByTag(ctx context.Context, tag string) (int, error) {
	members, err := m.client.SMembers(ctx, tagPrefix+tag).Result()
	if err != nil {
		return 0, err
	}

	// Each member is removed from every tag set it belongs to, not only this
	// one, and only keys Redis has not already expired are counted.
	removed := 0
	for _, fullKey := range members {
		exists, err := m.client.Exists(ctx, fullKey).Result()
		if err != nil {
			return removed, err
		}
		if err := m.untagLocked(ctx, fullKey); err != nil {
			return removed, err
		}
		removed += int(exists)
	}
	if err := m.client.Del(ctx, tagPrefix+tag).Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (m *RedisManager) Stats(ctx context.Context) (Stats, error) {
	// Redis expires entries itself; there is no server-side way to distinguish
	// "active" from "logically expired but not yet swept" without scanning
	// every key, so Stats on this backend reports only the active population.
	keys, err := m.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return Stats{}, err
	}
	active := 0
	for _, k := range keys {
		if isMemberTagsKey(k) || strings.HasPrefix(k, tagPrefix) {
			continue
		}
		active++
	}
	return Stats{Total: active, Active: active}, nil
}

// untagLocked removes fullKey from every tag set it currently belongs to and
// deletes the key itself.
func (m *RedisManager) untagLocked(ctx context.Context, fullKey string) error {
	tags, err := m.client.SMembers(ctx, memberTagsKey(fullKey)).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, fullKey)
	pipe.Del(ctx, memberTagsKey(fullKey))
	for _, tag := range tags {
		pipe.SRem(ctx, tagPrefix+tag, fullKey)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func memberTagsKey(fullKey string) string {
	return fmt.Sprintf("%s:tags", fullKey)
}

func isMemberTagsKey(key string) bool {
	return len(key) > 5 && key[len(key)-5:] == ":tags"
}

func tagsAsInterfaces(tags []string) []interface{} {
	out := make([]interface{}, len(tags))
	for i, t := range tags {
		out[i] = t
	}
	return out
}
