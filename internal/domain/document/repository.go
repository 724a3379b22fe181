package document

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrDocumentNotFound = errors.New("document not found")
)

// TransitionError reports a rejected document state transition.
type TransitionError struct {
	From State
	To   State
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal document transition %s -> %s", e.From, e.To)
}

// Repository defines tenant-scoped document data access.
type Repository interface {
	// Create persists a new document.
	Create(ctx context.Context, d *Document) error

	// Update modifies an existing document, including state, metadata, and
	// processing history.
	Update(ctx context.Context, d *Document) error

	// FindByID retrieves a document by id.
	// Returns ErrDocumentNotFound if the document cannot be found.
	FindByID(ctx context.Context, id string) (*Document, error)

	// FindByPublicID retrieves a document by its public uuid.
	// Returns ErrDocumentNotFound if the document cannot be found.
	FindByPublicID(ctx context.Context, publicID string) (*Document, error)

	// FindExpired retrieves non-deleted documents created before the cutoff,
	// used by retention sweeps.
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]*Document, error)
}
