package workflow

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// Repository defines tenant-scoped durable workflow state access. The engine
// persists through this interface after every activity boundary.
type Repository interface {
	// Create persists a new workflow.
	Create(ctx context.Context, w *Workflow) error

	// Update persists the workflow's current cursor, outputs, and state.
	Update(ctx context.Context, w *Workflow) error

	// FindByID retrieves a workflow by id.
	// Returns ErrWorkflowNotFound if it cannot be found.
	FindByID(ctx context.Context, id string) (*Workflow, error)

	// FindByJobID retrieves the workflow driving a job.
	// Returns ErrWorkflowNotFound if it cannot be found.
	FindByJobID(ctx context.Context, jobID string) (*Workflow, error)

	// FindResumable retrieves all non-terminal workflows, used at boot to
	// rehydrate and continue execution.
	FindResumable(ctx context.Context) ([]*Workflow, error)
}
