package saga

import (
	"context"
	"sync"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
)

// MemoryStore is a test double for Store: a single mutex guards a plain map,
// with each instance deep-copied on the way in and out so callers can never
// mutate orchestrator-owned state through a shared pointer.
type MemoryStore struct {
	mu       sync.Mutex
	sagas    map[string]Instance
}

// NewMemoryStore constructs an empty in-memory saga Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sagas: make(map[string]Instance)}
}

func (s *MemoryStore) Save(_ context.Context, instance *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sagas[instance.ID]; exists {
		return domain.NewConflictError("saga " + instance.ID + " already exists")
	}
	s.sagas[instance.ID] = copyInstance(instance)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, instance *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sagas[instance.ID]; !exists {
		return domain.NewNotFoundError("saga", instance.ID)
	}
	s.sagas[instance.ID] = copyInstance(instance)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, exists := s.sagas[id]
	if !exists {
		return nil, domain.NewNotFoundError("saga", id)
	}
	copied := copyInstance(&instance)
	return &copied, nil
}

func copyInstance(instance *Instance) Instance {
	out := *instance
	out.Steps = append([]Step(nil), instance.Steps...)
	out.StepResults = append([]StepResult(nil), instance.StepResults...)
	if instance.Metadata != nil {
		out.Metadata = make(map[string]string, len(instance.Metadata))
		for k, v := range instance.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
