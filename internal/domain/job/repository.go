package job

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrIndexOutOfBounds = errors.New("processor index out of bounds")
	ErrNotRetryable     = errors.New("job cannot be retried")
	ErrActiveJobExists  = errors.New("document already has an active job")
	ErrProgressNotFound = errors.New("pipeline progress not found")
)

// TransitionError reports a rejected job state transition.
type TransitionError struct {
	From State
	To   State
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal job transition %s -> %s", e.From, e.To)
}

// Repository defines tenant-scoped job data access.
type Repository interface {
	// Create persists a new job including its pipeline snapshot.
	Create(ctx context.Context, j *Job) error

	// Update modifies an existing job.
	Update(ctx context.Context, j *Job) error

	// FindByID retrieves a job by id.
	// Returns ErrJobNotFound if the job cannot be found.
	FindByID(ctx context.Context, id string) (*Job, error)

	// FindByPublicID retrieves a job by its public uuid.
	// Returns ErrJobNotFound if the job cannot be found.
	FindByPublicID(ctx context.Context, publicID string) (*Job, error)

	// FindActiveByDocument retrieves the single non-terminal job for a
	// document, or ErrJobNotFound when none exists.
	FindActiveByDocument(ctx context.Context, documentID string) (*Job, error)
}

// ProgressRepository defines tenant-scoped pipeline progress data access.
type ProgressRepository interface {
	// Create persists the progress row for a new job.
	Create(ctx context.Context, p *Progress) error

	// Update modifies the progress row.
	Update(ctx context.Context, p *Progress) error

	// FindByJobID retrieves the progress row for a job.
	// Returns ErrProgressNotFound if it cannot be found.
	FindByJobID(ctx context.Context, jobID string) (*Progress, error)
}
