package execution

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrRecordNotFound = errors.New("execution record not found")
)

// TransitionError reports a rejected execution state transition.
type TransitionError struct {
	From State
	To   State
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal execution transition %s -> %s", e.From, e.To)
}

// Repository defines tenant-scoped execution record data access.
type Repository interface {
	// Create persists a new execution record.
	Create(ctx context.Context, r *Record) error

	// Update modifies an existing execution record.
	Update(ctx context.Context, r *Record) error

	// FindByID retrieves a record by id.
	// Returns ErrRecordNotFound if it cannot be found.
	FindByID(ctx context.Context, id string) (*Record, error)

	// FindByJobID retrieves all records for a job ordered by step index.
	FindByJobID(ctx context.Context, jobID string) ([]*Record, error)

	// FindByJobAndStep retrieves the record for a specific step of a job.
	// Returns ErrRecordNotFound if the step has not started.
	FindByJobAndStep(ctx context.Context, jobID string, stepIndex int) (*Record, error)

	// FindLatestByDocumentAndCategory finds the most recent record of the
	// given processor category across the document's latest job. Used by the
	// artifact adapter when a caller references only a document.
	FindLatestByDocumentAndCategory(ctx context.Context, documentID, category string) (*Record, error)
}
