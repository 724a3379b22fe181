package processor

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrProcessorNotFound = errors.New("processor not found")
)

// Repository defines tenant-scoped processor catalog access. Catalog entries
// are seeded on tenant creation; versions are append-only.
type Repository interface {
	// Create persists a new catalog entry. Slug must be unique per tenant.
	Create(ctx context.Context, e *Entry) error

	// Update modifies an existing entry.
	Update(ctx context.Context, e *Entry) error

	// FindBySlug retrieves an entry by slug.
	// Returns ErrProcessorNotFound if it cannot be found.
	FindBySlug(ctx context.Context, slug string) (*Entry, error)

	// FindByID retrieves an entry by id.
	// Returns ErrProcessorNotFound if it cannot be found.
	FindByID(ctx context.Context, id string) (*Entry, error)

	// ListActive retrieves all active catalog entries.
	ListActive(ctx context.Context) ([]*Entry, error)
}
