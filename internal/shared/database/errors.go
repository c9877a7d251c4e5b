// Package database provides small helpers shared by the Postgres-backed
// repositories (EventStore, SagaOrchestrator).
package database

import (
	"errors"

	"github.com/lib/pq"
)

// IsDuplicateKeyError reports whether err is a unique-violation raised by
// PostgreSQL (SQLSTATE 23505), the signal the EventStore uses to retry a
// version assignment that raced another writer.
func IsDuplicateKeyError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// IsSerializationFailure reports whether err is a serialization failure
// (SQLSTATE 40001) raised by a SERIALIZABLE transaction, retriable by the
// caller.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001"
	}
	return false
}
