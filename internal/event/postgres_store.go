package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/axiom-software-co/coordination/internal/shared/database"
	"github.com/axiom-software-co/coordination/internal/shared/domain"
	"github.com/google/uuid"
)

// PostgresStore is the production Store, persisting to the events table with
// a unique index on (stream_id, version) and assigning versions inside a
// serializable transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB for event storage.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const maxVersionRetries = 3

func (s *PostgresStore) Append(ctx context.Context, req AppendRequest) (*Event, error) {
	if err := validateAppend(req); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, domain.WrapError(err, "failed to marshal event metadata")
	}

	var appended *Event
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		appended, err = s.appendOnce(ctx, req, metadata)
		if err == nil {
			return appended, nil
		}
		if !database.IsDuplicateKeyError(err) && !database.IsSerializationFailure(err) {
			return nil, domain.NewDependencyError("event store", err)
		}
		// Another writer assigned the same version concurrently; retry with a
		// freshly computed version.
	}
	return nil, domain.NewDependencyError("event store", fmt.Errorf("exhausted %d version retries for stream %s: %w", maxVersionRetries, req.StreamID, err))
}

func (s *PostgresStore) appendOnce(ctx context.Context, req AppendRequest, metadata []byte) (*Event, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM events WHERE stream_id = $1`,
		req.StreamID,
	).Scan(&version)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	createdAt := time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, stream_id, event_type, data, metadata, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, req.StreamID, req.EventType, req.Data, metadata, version, createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Event{
		ID:        id,
		StreamID:  req.StreamID,
		EventType: req.EventType,
		Data:      req.Data,
		Metadata:  req.Metadata,
		Version:   version,
		CreatedAt: createdAt,
	}, nil
}

func (s *PostgresStore) GetEvents(ctx context.Context, streamID string, fromVersion int64, limit int64) ([]Event, error) {
	if streamID == "" {
		return nil, domain.NewValidationFieldError("stream_id", "stream_id must not be empty")
	}
	if fromVersion <= 0 {
		fromVersion = 1
	}

	query := `SELECT id, stream_id, event_type, data, metadata, version, created_at
	          FROM events WHERE stream_id = $1 AND version >= $2 ORDER BY version ASC`
	args := []interface{}{streamID, fromVersion}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewDependencyError("event store", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.StreamID, &e.EventType, &e.Data, &metadata, &e.Version, &e.CreatedAt); err != nil {
			return nil, domain.WrapError(err, "failed to scan event row")
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, domain.WrapError(err, "failed to unmarshal event metadata")
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDependencyError("event store", err)
	}

	return events, nil
}

func (s *PostgresStore) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	if streamID == "" {
		return 0, domain.NewValidationFieldError("stream_id", "stream_id must not be empty")
	}

	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`,
		streamID,
	).Scan(&version)
	if err != nil {
		return 0, domain.NewDependencyError("event store", err)
	}
	return version, nil
}
