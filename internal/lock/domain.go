// Package lock implements the distributed mutual-exclusion lock manager: keyed
// leases with wall-clock expiry, backed by a pluggable key-value store.
package lock

import (
	"context"
	"time"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
)

// KeyPrefix namespaces every lock key in the backing store.
const KeyPrefix = "locks:"

// State is the observable state of a held lock.
type State struct {
	Key        string            `json:"key"`
	LockID     string            `json:"lock_id"`
	Owner      string            `json:"owner"`
	AcquiredAt time.Time         `json:"acquired_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AcquireRequest describes an attempt to claim a lock.
type AcquireRequest struct {
	Key         string
	Owner       string
	TTL         time.Duration
	Metadata    map[string]string
	WaitTimeout time.Duration
}

// AcquireResult is the outcome of an acquire attempt.
type AcquireResult struct {
	LockID  string
	Success bool
	Reason  string
}

// ReleaseResult is the outcome of a release attempt.
type ReleaseResult struct {
	Success bool
	Reason  string
}

// Store is the backing-store abstraction LockManager depends on. A production
// instance is Redis-backed (SET NX PX + scripted compare-and-delete); an
// in-memory instance is used for tests and single-node deployments.
//
// Alongside the CAS token (lockID) each implementation keeps a companion
// metadata blob carrying the lock's owner, acquisition time, and caller
// metadata, so that Status can report the full observed state rather than
// just the token. The metadata blob has no bearing on CAS correctness; it is
// opaque to Store and owned by the caller.
type Store interface {
	// TryAcquire atomically claims key with CAS token lockID and the given TTL
	// if and only if key is currently absent, and stores metadata alongside it
	// under the same TTL. Returns true on success.
	TryAcquire(ctx context.Context, key, lockID string, metadata []byte, ttl time.Duration) (bool, error)
	// CompareAndDelete atomically deletes key if and only if its current CAS
	// token equals lockID, and then removes its companion metadata as well
	// (the Redis store does so in a separate call after the atomic delete).
	// Returns true if the delete happened.
	CompareAndDelete(ctx context.Context, key, lockID string) (bool, error)
	// Get returns the current CAS token and metadata blob stored under key and
	// its remaining TTL, or found=false if the key is absent or already
	// expired. metadata may be nil even when found is true, if the companion
	// entry is unavailable.
	Get(ctx context.Context, key string) (value string, metadata []byte, ttl time.Duration, found bool, err error)
}

// Manager is the LockManager contract (spec §4.1).
type Manager interface {
	Acquire(ctx context.Context, req AcquireRequest) (AcquireResult, error)
	Release(ctx context.Context, key, lockID, owner string) (ReleaseResult, error)
	Status(ctx context.Context, key string) (*State, error)
}

func validateAcquire(req AcquireRequest) error {
	if req.Key == "" {
		return domain.NewValidationFieldError("key", "lock key must not be empty")
	}
	if req.Owner == "" {
		return domain.NewValidationFieldError("owner", "lock owner must not be empty")
	}
	if req.TTL <= 0 {
		return domain.NewValidationFieldError("ttl", "lock ttl must be positive")
	}
	return nil
}
