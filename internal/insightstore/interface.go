package insightstore

import (
	"context"
	"errors"
)

// Sentinel errors for store operations.
var (
	// ErrInvalidObservation is returned when an observation fails validation.
	ErrInvalidObservation = errors.New("invalid observation")

	// ErrInvalidKey is returned for an empty or malformed user ID or pattern type.
	ErrInvalidKey = errors.New("invalid insight key")

	// ErrUnknownBackend is returned by NewStore for an unsupported backend.
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("storage connection failed")

	// ErrMigrationFailed indicates schema or table setup failed.
	ErrMigrationFailed = errors.New("storage migration failed")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Store persists insight records.
//
// Implementations must be safe for concurrent use, and Upsert must be atomic
// at the storage layer.
type Store interface {
	// Upsert records one observation and returns the resulting record.
	Upsert(ctx context.Context, obs Observation) (*Record, error)

	// Delete removes the record for (userID, patternType). Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, userID, patternType string) error

	// List returns up to limit records for a user ordered by strength then
	// occurrences, both descending. A non-positive limit returns all records.
	List(ctx context.Context, userID string, limit int) ([]Record, error)

	// Close releases backend resources.
	Close() error
}
