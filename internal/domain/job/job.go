package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/docflow/internal/domain/pipeline"
)

// State represents a job's lifecycle state.
type State string

// Predefined job states. Completed, failed, and cancelled are terminal.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether the state admits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ErrorEntry is one append-only error_log record on a job.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
}

// Job is one execution instance of a pipeline against one document. It
// carries its own deep copy of the campaign pipeline; the snapshot is the
// single source of truth for execution.
type Job struct {
	ID         string
	PublicID   string
	CampaignID string
	DocumentID string
	Pipeline   pipeline.Pipeline
	// CurrentProcessorIndex is the index of the next step to execute.
	// Invariant: 0 <= CurrentProcessorIndex <= len(Pipeline.Processors).
	CurrentProcessorIndex int
	QueueName             string
	Attempts              int
	MaxAttempts           int
	ErrorMessage          *string
	ErrorLog              []ErrorEntry
	State                 State
	CreatedAt             time.Time
	StartedAt             *time.Time
	CompletedAt           *time.Time
	UpdatedAt             *time.Time
}

// New creates a pending job for the document, snapshotting the campaign
// pipeline.
func New(campaignID, documentID string, p pipeline.Pipeline, queueName string, maxAttempts int) *Job {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Job{
		ID:          uuid.Must(uuid.NewV7()).String(),
		PublicID:    uuid.NewString(),
		CampaignID:  campaignID,
		DocumentID:  documentID,
		Pipeline:    p.Clone(),
		QueueName:   queueName,
		MaxAttempts: maxAttempts,
		State:       StatePending,
		CreatedAt:   time.Now().UTC(),
	}
}

// Start marks the job running and sets started_at.
func (j *Job) Start() error {
	if j.State == StateRunning {
		return nil
	}
	if j.State != StatePending {
		return &TransitionError{From: j.State, To: StateRunning}
	}
	now := time.Now().UTC()
	j.State = StateRunning
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.UpdatedAt = &now
	return nil
}

// Advance increments the current processor index after a step finishes.
func (j *Job) Advance() error {
	if j.CurrentProcessorIndex >= j.Pipeline.Len() {
		return ErrIndexOutOfBounds
	}
	j.CurrentProcessorIndex++
	now := time.Now().UTC()
	j.UpdatedAt = &now
	return nil
}

// Complete marks the job completed. Re-entry into completed is a no-op.
func (j *Job) Complete() error {
	if j.State == StateCompleted {
		return nil
	}
	if j.State.IsTerminal() {
		return &TransitionError{From: j.State, To: StateCompleted}
	}
	now := time.Now().UTC()
	j.State = StateCompleted
	j.CompletedAt = &now
	j.UpdatedAt = &now
	return nil
}

// Fail marks the job failed, increments attempts, and appends to the
// append-only error log.
func (j *Job) Fail(errMsg string) error {
	if j.State == StateFailed {
		return nil
	}
	if j.State.IsTerminal() {
		return &TransitionError{From: j.State, To: StateFailed}
	}
	now := time.Now().UTC()
	j.State = StateFailed
	j.Attempts++
	j.ErrorMessage = &errMsg
	j.ErrorLog = append(j.ErrorLog, ErrorEntry{Timestamp: now, Attempt: j.Attempts, Error: errMsg})
	j.CompletedAt = &now
	j.UpdatedAt = &now
	return nil
}

// Cancel marks the job cancelled. Re-entry into cancelled is a no-op.
func (j *Job) Cancel() error {
	if j.State == StateCancelled {
		return nil
	}
	if j.State.IsTerminal() {
		return &TransitionError{From: j.State, To: StateCancelled}
	}
	now := time.Now().UTC()
	j.State = StateCancelled
	j.CompletedAt = &now
	j.UpdatedAt = &now
	return nil
}

// CanRetry reports whether a failed job may be retried as a whole.
func (j *Job) CanRetry() bool {
	return j.State == StateFailed && j.Attempts < j.MaxAttempts
}

// Retry resets a failed job for another whole-job attempt. The step index is
// rewound so the workflow re-executes from the beginning; completed execution
// records make replayed steps idempotent.
func (j *Job) Retry() error {
	if !j.CanRetry() {
		return ErrNotRetryable
	}
	now := time.Now().UTC()
	j.State = StatePending
	j.CurrentProcessorIndex = 0
	j.ErrorMessage = nil
	j.CompletedAt = nil
	j.UpdatedAt = &now
	return nil
}

// IsTerminal reports whether the job reached a terminal state.
func (j *Job) IsTerminal() bool { return j.State.IsTerminal() }
