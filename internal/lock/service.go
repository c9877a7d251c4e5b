package lock

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
	"github.com/google/uuid"
)

// metadataEnvelope is the companion-key payload a Store persists alongside
// the CAS token, letting Status report owner/acquired_at/metadata without
// widening the CAS comparison itself.
type metadataEnvelope struct {
	Owner      string            `json:"owner"`
	AcquiredAt time.Time         `json:"acquired_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

const (
	initialBackoff = 20 * time.Millisecond
	maxBackoff     = 500 * time.Millisecond
	jitterPercent  = 0.2
)

// manager is the reference LockManager implementation: it owns no state of its
// own beyond the injected Store, so it can be backed interchangeably by Redis
// or an in-memory test double.
type manager struct {
	store  Store
	logger *slog.Logger
}

// NewManager constructs a LockManager over the given backing Store.
func NewManager(store Store, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &manager{store: store, logger: logger.With("component", "lock-manager")}
}

func (m *manager) Acquire(ctx context.Context, req AcquireRequest) (AcquireResult, error) {
	if err := validateAcquire(req); err != nil {
		return AcquireResult{}, err
	}

	key := KeyPrefix + req.Key
	lockID := uuid.NewString()

	metadata, err := json.Marshal(metadataEnvelope{
		Owner:      req.Owner,
		AcquiredAt: time.Now(),
		Metadata:   req.Metadata,
	})
	if err != nil {
		return AcquireResult{}, domain.WrapError(err, "encode lock metadata")
	}

	deadline := time.Now().Add(req.WaitTimeout)
	attempt := 0
	for {
		acquired, err := m.store.TryAcquire(ctx, key, lockID, metadata, req.TTL)
		if err != nil {
			return AcquireResult{}, domain.NewDependencyError("lock store", err)
		}
		if acquired {
			m.logger.DebugContext(ctx, "lock acquired", "key", req.Key, "owner", req.Owner, "lock_id", lockID)
			return AcquireResult{LockID: lockID, Success: true}, nil
		}

		if req.WaitTimeout <= 0 || time.Now().After(deadline) {
			return AcquireResult{Success: false, Reason: "lock already held"}, nil
		}

		select {
		case <-ctx.Done():
			return AcquireResult{}, domain.WrapError(ctx.Err(), "acquire cancelled while waiting for lock")
		case <-time.After(backoff(attempt)):
		}
		attempt++
	}
}

func (m *manager) Release(ctx context.Context, key, lockID, owner string) (ReleaseResult, error) {
	if key == "" {
		return ReleaseResult{}, domain.NewValidationFieldError("key", "lock key must not be empty")
	}
	if lockID == "" {
		return ReleaseResult{}, domain.NewValidationFieldError("lock_id", "lock_id must not be empty")
	}

	deleted, err := m.store.CompareAndDelete(ctx, KeyPrefix+key, lockID)
	if err != nil {
		return ReleaseResult{}, domain.NewDependencyError("lock store", err)
	}
	if !deleted {
		return ReleaseResult{Success: false, Reason: "not found or not owner"}, nil
	}
	m.logger.DebugContext(ctx, "lock released", "key", key, "owner", owner, "lock_id", lockID)
	return ReleaseResult{Success: true}, nil
}

func (m *manager) Status(ctx context.Context, key string) (*State, error) {
	if key == "" {
		return nil, domain.NewValidationFieldError("key", "lock key must not be empty")
	}

	value, metadata, ttl, found, err := m.store.Get(ctx, KeyPrefix+key)
	if err != nil {
		return nil, domain.NewDependencyError("lock store", err)
	}
	if !found {
		return nil, nil
	}

	state := &State{
		Key:       key,
		LockID:    value,
		ExpiresAt: time.Now().Add(ttl),
	}

	var envelope metadataEnvelope
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &envelope); err == nil {
			state.Owner = envelope.Owner
			state.AcquiredAt = envelope.AcquiredAt
			state.Metadata = envelope.Metadata
		}
	}

	return state, nil
}

// backoff returns an exponentially increasing delay with jitter, capped at
// maxBackoff, used while waiting out a held lock.
func backoff(attempt int) time.Duration {
	d := initialBackoff * time.Duration(uint64(1)<<uint(attempt))
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	jitter := time.Duration(float64(d) * jitterPercent * rand.Float64())
	return d + jitter
}
