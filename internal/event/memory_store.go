package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests. It serializes appends
// per stream with a mutex so the gap-free version invariant holds even though
// there is no database transaction backing it.
type MemoryStore struct {
	mu      sync.Mutex
	streams map[string][]Event
}

// NewMemoryStore constructs an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{streams: make(map[string][]Event)}
}

func (s *MemoryStore) Append(_ context.Context, req AppendRequest) (*Event, error) {
	if err := validateAppend(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := int64(len(s.streams[req.StreamID])) + 1
	e := Event{
		ID:        uuid.NewString(),
		StreamID:  req.StreamID,
		EventType: req.EventType,
		Data:      req.Data,
		Metadata:  req.Metadata,
		Version:   version,
		CreatedAt: time.Now().UTC(),
	}
	s.streams[req.StreamID] = append(s.streams[req.StreamID], e)
	return &e, nil
}

func (s *MemoryStore) GetEvents(_ context.Context, streamID string, fromVersion int64, limit int64) ([]Event, error) {
	if fromVersion <= 0 {
		fromVersion = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Event
	for _, e := range s.streams[streamID] {
		if e.Version < fromVersion {
			continue
		}
		result = append(result, e)
		if limit > 0 && int64(len(result)) >= limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) StreamVersion(_ context.Context, streamID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.streams[streamID])), nil
}
