package callback

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrMappingNotFound = errors.New("callback mapping not found")
)

// Repository defines central-database callback mapping access.
type Repository interface {
	// Upsert persists the mapping, idempotent on transaction id: registering
	// the same transaction twice leaves exactly one row.
	Upsert(ctx context.Context, m *Mapping) error

	// FindByTransactionID retrieves a mapping.
	// Returns ErrMappingNotFound if it cannot be found.
	FindByTransactionID(ctx context.Context, transactionID string) (*Mapping, error)

	// Update modifies an existing mapping's status and timestamps.
	Update(ctx context.Context, m *Mapping) error
}
