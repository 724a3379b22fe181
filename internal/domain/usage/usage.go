// Package usage defines append-only usage events emitted at metered actions
// (ingest, processor completion) for billing downstream.
package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Predefined event types.
const (
	EventDocumentIngested   = "document.ingested"
	EventProcessorCompleted = "processor.completed"
)

// Event is one immutable usage record.
type Event struct {
	ID          string
	CampaignID  string
	DocumentID  string
	JobID       *string
	EventType   string
	Units       int64
	CostCredits float64
	Metadata    map[string]any
	RecordedAt  time.Time
}

// NewEvent creates a usage event stamped with the current time.
func NewEvent(campaignID, documentID string, jobID *string, eventType string, units int64, costCredits float64, metadata map[string]any) *Event {
	return &Event{
		ID:          uuid.Must(uuid.NewV7()).String(),
		CampaignID:  campaignID,
		DocumentID:  documentID,
		JobID:       jobID,
		EventType:   eventType,
		Units:       units,
		CostCredits: costCredits,
		Metadata:    metadata,
		RecordedAt:  time.Now().UTC(),
	}
}

// Repository defines tenant-scoped, append-only usage access.
type Repository interface {
	// Create appends an event.
	Create(ctx context.Context, e *Event) error

	// FindByCampaign lists events for a campaign within a time range.
	FindByCampaign(ctx context.Context, campaignID string, from, to time.Time) ([]*Event, error)
}
