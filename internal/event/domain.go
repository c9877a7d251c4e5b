// Package event implements the append-only EventStore: per-stream event logs
// with gap-free, monotonically increasing versions.
package event

import (
	"context"
	"time"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
)

// Event is a single, immutable entry in a stream's log.
type Event struct {
	ID        string            `json:"id"`
	StreamID  string            `json:"stream_id"`
	EventType string            `json:"event_type"`
	Data      []byte            `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Version   int64             `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
}

// AppendRequest describes a single event to append to a stream.
type AppendRequest struct {
	StreamID  string
	EventType string
	Data      []byte
	Metadata  map[string]string
}

// Store is the Store contract EventStore depends on. The production
// implementation is PostgreSQL-backed; an in-memory implementation exists for
// tests, serialized per-stream to preserve the gap-free invariant.
type Store interface {
	Append(ctx context.Context, req AppendRequest) (*Event, error)
	GetEvents(ctx context.Context, streamID string, fromVersion int64, limit int64) ([]Event, error)
	StreamVersion(ctx context.Context, streamID string) (int64, error)
}

// EventStore is the public contract (spec §4.3); Store implementations satisfy it directly.
type EventStore = Store

func validateAppend(req AppendRequest) error {
	if req.StreamID == "" {
		return domain.NewValidationFieldError("stream_id", "stream_id must not be empty")
	}
	if req.EventType == "" {
		return domain.NewValidationFieldError("event_type", "event_type must not be empty")
	}
	return nil
}
