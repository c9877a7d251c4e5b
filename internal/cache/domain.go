// Package cache implements the tagged, TTL-aware CacheManager.
package cache

import (
	"context"
	"time"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
)

// Entry is a single cache record.
type Entry struct {
	Key       string
	Value     []byte
	ExpiresAt *time.Time
	Tags      []string
	CreatedAt time.Time
}

// Stats summarizes the cache's current population.
type Stats struct {
	Total   int
	Expired int
	Active  int
}

// Manager is the CacheManager contract (spec §4.4).
type Manager interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	InvalidateByTag(ctx context.Context, tag string) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

func validateKey(key string) error {
	if key == "" {
		return domain.NewValidationFieldError("key", "cache key must not be empty")
	}
	return nil
}
