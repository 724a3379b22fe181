// Package workflow defines the durable per-job orchestration state the
// engine persists at every boundary so a worker crash never loses an
// in-flight job.
package workflow

import (
	"time"

	"github.com/google/uuid"
)

// State represents a workflow's execution state.
type State string

// Predefined workflow states.
const (
	StateRunning   State = "running"
	StateSuspended State = "suspended"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether the workflow reached a terminal state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Workflow is the resumable state machine that drives one job. It records
// the last completed step index, the outputs of every finished activity, and
// any in-flight signal wait; on restart execution continues at CurrentStep.
type Workflow struct {
	ID    string
	JobID string
	State State
	// CurrentStep is the index of the next pipeline step to execute.
	CurrentStep int
	// PreviousOutputs maps completed steps' slugs to their outputs. It is
	// the payload handed to each subsequent activity.
	PreviousOutputs map[string]map[string]any
	// WaitingSignal names the signal channel a suspended workflow blocks on,
	// derived from the pending transaction id.
	WaitingSignal string
	// CancelRequested is observed at the next cancellation point.
	CancelRequested bool
	ErrorMessage    *string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// New creates a running workflow positioned at step zero.
func New(jobID string) *Workflow {
	return &Workflow{
		ID:              uuid.Must(uuid.NewV7()).String(),
		JobID:           jobID,
		State:           StateRunning,
		PreviousOutputs: map[string]map[string]any{},
		CreatedAt:       time.Now().UTC(),
	}
}

// RecordOutput stores a completed step's output under its slug.
func (w *Workflow) RecordOutput(slug string, output map[string]any) {
	if w.PreviousOutputs == nil {
		w.PreviousOutputs = map[string]map[string]any{}
	}
	w.PreviousOutputs[slug] = output
}

// Suspend parks the workflow on the named signal.
func (w *Workflow) Suspend(signal string) {
	now := time.Now().UTC()
	w.State = StateSuspended
	w.WaitingSignal = signal
	w.UpdatedAt = &now
}

// ResumeFromSignal returns the workflow to running after a signal delivery.
func (w *Workflow) ResumeFromSignal() {
	now := time.Now().UTC()
	w.State = StateRunning
	w.WaitingSignal = ""
	w.UpdatedAt = &now
}

// AdvanceTo moves the cursor past a finished step.
func (w *Workflow) AdvanceTo(step int) {
	now := time.Now().UTC()
	w.CurrentStep = step
	w.UpdatedAt = &now
}

// Complete marks the workflow terminal-successful.
func (w *Workflow) Complete() {
	now := time.Now().UTC()
	w.State = StateCompleted
	w.UpdatedAt = &now
}

// Fail marks the workflow terminal-failed with a reason.
func (w *Workflow) Fail(reason string) {
	now := time.Now().UTC()
	w.State = StateFailed
	w.ErrorMessage = &reason
	w.UpdatedAt = &now
}

// Cancel marks the workflow terminal-cancelled.
func (w *Workflow) Cancel() {
	now := time.Now().UTC()
	w.State = StateCancelled
	w.UpdatedAt = &now
}

// RequestCancel flags the workflow for cooperative cancellation.
func (w *Workflow) RequestCancel() {
	now := time.Now().UTC()
	w.CancelRequested = true
	w.UpdatedAt = &now
}
