// Package event carries the real-time lifecycle event stream consumed by
// webhook delivery and UI subscribers.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a lifecycle event.
type Type string

// Predefined event types.
const (
	TypeJobCreated         Type = "job.created"
	TypeJobProgressed      Type = "job.progressed"
	TypeJobCompleted       Type = "job.completed"
	TypeJobFailed          Type = "job.failed"
	TypeJobCancelled       Type = "job.cancelled"
	TypeExecutionStarted   Type = "execution.started"
	TypeExecutionCompleted Type = "execution.completed"
	TypeExecutionFailed    Type = "execution.failed"
	TypeCallbackReceived   Type = "callback.received"
	// Document terminal events are the payloads webhook delivery posts.
	TypeDocumentProcessingCompleted Type = "document.processing_completed"
	TypeDocumentProcessingFailed    Type = "document.processing_failed"
)

// Event is one emitted lifecycle record.
type Event struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	TenantID    string         `json:"tenant_id"`
	CampaignID  string         `json:"campaign_id,omitempty"`
	DocumentID  string         `json:"document_id,omitempty"`
	JobID       string         `json:"job_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// New creates an event stamped with a sortable id and the current time.
func New(t Type, tenantID string) *Event {
	return &Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      t,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers events to observers.
type Publisher interface {
	Publish(e *Event)
}
