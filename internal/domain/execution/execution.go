package execution

import (
	"time"

	"github.com/google/uuid"
)

// State represents an execution record's lifecycle state.
type State string

// Predefined execution states. Within a step the transitions are totally
// ordered: pending < running < {completed | failed}. Skipped records are
// created terminal for pipeline entries with no processor slug.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// IsTerminal reports whether the state admits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateSkipped
}

// Record is the per-processor-step audit and state carrier within a job.
// Exactly one record exists per (job, processor step).
type Record struct {
	ID            string
	JobID         string
	ProcessorID   *string
	ProcessorSlug string
	StepIndex     int
	Input         map[string]any
	Output        map[string]any
	Config        map[string]any
	DurationMS    int64
	ErrorMessage  *string
	TokensUsed    int64
	CostCredits   float64
	State         State
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// New creates a pending execution record for a pipeline step.
func New(jobID, processorSlug string, processorID *string, stepIndex int, input, config map[string]any) *Record {
	return &Record{
		ID:            uuid.Must(uuid.NewV7()).String(),
		JobID:         jobID,
		ProcessorID:   processorID,
		ProcessorSlug: processorSlug,
		StepIndex:     stepIndex,
		Input:         input,
		Config:        config,
		State:         StatePending,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewSkipped creates a terminal skipped record for a step with no processor.
func NewSkipped(jobID string, stepIndex int) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:          uuid.Must(uuid.NewV7()).String(),
		JobID:       jobID,
		StepIndex:   stepIndex,
		State:       StateSkipped,
		CreatedAt:   now,
		CompletedAt: &now,
	}
}

// Start transitions the record from pending to running.
func (r *Record) Start() error {
	if r.State != StatePending {
		return &TransitionError{From: r.State, To: StateRunning}
	}
	now := time.Now().UTC()
	r.State = StateRunning
	r.StartedAt = &now
	return nil
}

// Complete transitions the record to completed and stores the validated
// output along with token and cost accounting.
func (r *Record) Complete(output map[string]any, tokensUsed int64, costCredits float64) error {
	if r.State == StateCompleted {
		return nil
	}
	if r.State != StateRunning {
		return &TransitionError{From: r.State, To: StateCompleted}
	}
	now := time.Now().UTC()
	r.State = StateCompleted
	r.Output = output
	r.TokensUsed = tokensUsed
	r.CostCredits = costCredits
	r.CompletedAt = &now
	if r.StartedAt != nil {
		r.DurationMS = now.Sub(*r.StartedAt).Milliseconds()
	}
	return nil
}

// Fail transitions the record to failed with the given error message.
func (r *Record) Fail(errMsg string) error {
	if r.State == StateFailed {
		return nil
	}
	if r.State != StateRunning && r.State != StatePending {
		return &TransitionError{From: r.State, To: StateFailed}
	}
	now := time.Now().UTC()
	r.State = StateFailed
	r.ErrorMessage = &errMsg
	r.CompletedAt = &now
	if r.StartedAt != nil {
		r.DurationMS = now.Sub(*r.StartedAt).Milliseconds()
	}
	return nil
}
