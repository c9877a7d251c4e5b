package saga

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
)

// PostgresStore persists saga instances in the `sagas` table. Steps and
// metadata are immutable once the saga is created and are stored as JSON;
// status, current_step, and step_results change on every transition and are
// rewritten in full on each Update.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB for saga persistence.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, instance *Instance) error {
	steps, err := json.Marshal(instance.Steps)
	if err != nil {
		return domain.WrapError(err, "failed to marshal saga steps")
	}
	metadata, err := json.Marshal(instance.Metadata)
	if err != nil {
		return domain.WrapError(err, "failed to marshal saga metadata")
	}
	stepResults, err := json.Marshal(instance.StepResults)
	if err != nil {
		return domain.WrapError(err, "failed to marshal saga step results")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sagas (id, name, status, steps, current_step, step_results, created_at, updated_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, instance.ID, instance.Name, string(instance.Status), steps, instance.CurrentStep, stepResults,
		instance.CreatedAt, instance.UpdatedAt, metadata)
	if err != nil {
		return domain.NewDependencyError("postgres", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, instance *Instance) error {
	stepResults, err := json.Marshal(instance.StepResults)
	if err != nil {
		return domain.WrapError(err, "failed to marshal saga step results")
	}
	metadata, err := json.Marshal(instance.Metadata)
	if err != nil {
		return domain.WrapError(err, "failed to marshal saga metadata")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sagas
		SET status = $2, current_step = $3, step_results = $4, updated_at = $5, metadata = $6
		WHERE id = $1
	`, instance.ID, string(instance.Status), instance.CurrentStep, stepResults, instance.UpdatedAt, metadata)
	if err != nil {
		return domain.NewDependencyError("postgres", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.NewDependencyError("postgres", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("saga", instance.ID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, steps, current_step, step_results, created_at, updated_at, metadata
		FROM sagas WHERE id = $1
	`, id)

	var instance Instance
	var status string
	var steps, stepResults, metadata []byte
	if err := row.Scan(&instance.ID, &instance.Name, &status, &steps, &instance.CurrentStep,
		&stepResults, &instance.CreatedAt, &instance.UpdatedAt, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFoundError("saga", id)
		}
		return nil, domain.NewDependencyError("postgres", err)
	}
	instance.Status = Status(status)

	if err := json.Unmarshal(steps, &instance.Steps); err != nil {
		return nil, domain.WrapError(err, "failed to unmarshal saga steps")
	}
	if len(stepResults) > 0 {
		if err := json.Unmarshal(stepResults, &instance.StepResults); err != nil {
			return nil, domain.WrapError(err, "failed to unmarshal saga step results")
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &instance.Metadata); err != nil {
			return nil, domain.WrapError(err, "failed to unmarshal saga metadata")
		}
	}

	return &instance, nil
}
