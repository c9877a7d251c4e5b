package cache

import (
	"context"
	"sync"
	"time"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
)

// MemoryManager is the reference CacheManager implementation: a single mutex
// protects both the forward key->entry map and an explicit tag->keys reverse
// index, updated together inside the same critical section so tag
// invalidation never has to fall back to a linear scan.
type MemoryManager struct {
	mu      sync.Mutex
	entries map[string]Entry
	tags    map[string]map[string]struct{}
}

// NewMemoryManager constructs an empty in-memory CacheManager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		entries: make(map[string]Entry),
		tags:    make(map[string]map[string]struct{}),
	}
}

func (m *MemoryManager) Set(_ context.Context, key string, value []byte, ttl time.Duration, tagList []string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(key)

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	m.entries[key] = Entry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt,
		Tags:      tagList,
		CreatedAt: time.Now(),
	}

	for _, tag := range tagList {
		if m.tags[tag] == nil {
			m.tags[tag] = make(map[string]struct{})
		}
		m.tags[tag][key] = struct{}{}
	}

	return nil
}

func (m *MemoryManager) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if entry.ExpiresAt != nil && !entry.ExpiresAt.After(time.Now()) {
		m.removeLocked(key)
		return nil, false, nil
	}

	return entry.Value, true, nil
}

func (m *MemoryManager) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
	return nil
}

func (m *MemoryManager) InvalidateByTag(_ context.Context, tag string) (int, error) {
	if tag == "" {
		return 0, domain.NewValidationFieldError("tag", "tag must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.tags[tag]
	count := len(keys)
	for key := range keys {
		m.removeLocked(key)
	}
	return count, nil
}

func (m *MemoryManager) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stats := Stats{Total: len(m.entries)}
	for _, entry := range m.entries {
		if entry.ExpiresAt != nil && !entry.ExpiresAt.After(now) {
			stats.Expired++
		}
	}
	stats.Active = stats.Total - stats.Expired
	return stats, nil
}

// removeLocked deletes key from both the forward map and every tag's reverse
// index entry. Callers must hold m.mu.
func (m *MemoryManager) removeLocked(key string) {
	entry, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	for _, tag := range entry.Tags {
		if set, ok := m.tags[tag]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(m.tags, tag)
			}
		}
	}
}
