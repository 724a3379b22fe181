package document

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// State represents a document's processing state.
type State string

// Predefined document states. Completed, failed, and cancelled are terminal.
const (
	StatePending    State = "pending"
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// transitions holds the allowed state moves. Absent pairs are rejected.
var transitions = map[State][]State{
	StatePending:    {StateQueued, StateProcessing, StateCompleted, StateFailed, StateCancelled},
	StateQueued:     {StateProcessing, StateCancelled},
	StateProcessing: {StateCompleted, StateFailed, StateCancelled},
}

// IsTerminal reports whether the state admits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

func (s State) canTransitionTo(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// HistoryEntry records one processing-history event on a document.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
}

// Document represents one uploaded file owned by a tenant. A document may
// have many jobs over its lifetime but at most one non-terminal job.
type Document struct {
	ID       string
	PublicID string
	// CampaignID references the campaign whose pipeline processes this
	// document.
	CampaignID  string
	UserID      *string
	Filename    string
	MimeType    string
	SizeBytes   int64
	StoragePath string
	Disk        string
	ContentHash string
	State       State
	Metadata    map[string]any
	History     []HistoryEntry
	RetryCount  int
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	ProcessedAt *time.Time
	FailedAt    *time.Time
	DeletedAt   *time.Time
}

// New creates a pending document for uploaded bytes. The content hash is
// computed from the bytes so later integrity checks can verify storage.
func New(campaignID, filename, mimeType, storagePath, disk string, data []byte) *Document {
	sum := sha256.Sum256(data)
	return &Document{
		ID:          uuid.Must(uuid.NewV7()).String(),
		PublicID:    uuid.NewString(),
		CampaignID:  campaignID,
		Filename:    filename,
		MimeType:    mimeType,
		SizeBytes:   int64(len(data)),
		StoragePath: storagePath,
		Disk:        disk,
		ContentHash: hex.EncodeToString(sum[:]),
		State:       StatePending,
		Metadata:    map[string]any{},
		CreatedAt:   time.Now().UTC(),
	}
}

// transition moves the document to next, rejecting illegal moves. Re-entry
// into the current terminal state is a no-op.
func (d *Document) transition(next State) error {
	if d.State == next && d.State.IsTerminal() {
		return nil
	}
	if !d.State.canTransitionTo(next) {
		return &TransitionError{From: d.State, To: next}
	}
	now := time.Now().UTC()
	d.State = next
	d.UpdatedAt = &now
	switch next {
	case StateCompleted:
		d.ProcessedAt = &now
	case StateFailed:
		d.FailedAt = &now
	}
	return nil
}

// Enqueue moves the document to queued.
func (d *Document) Enqueue() error { return d.transition(StateQueued) }

// StartProcessing moves the document to processing. Pending documents may
// bypass the queued state.
func (d *Document) StartProcessing() error { return d.transition(StateProcessing) }

// Complete moves the document to completed and sets processed_at.
func (d *Document) Complete() error { return d.transition(StateCompleted) }

// Fail moves the document to failed and sets failed_at.
func (d *Document) Fail() error { return d.transition(StateFailed) }

// Cancel moves the document to cancelled.
func (d *Document) Cancel() error { return d.transition(StateCancelled) }

// MergeMetadata copies the given keys into the document metadata map.
func (d *Document) MergeMetadata(m map[string]any) {
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	for k, v := range m {
		d.Metadata[k] = v
	}
}

// AppendHistory records a processing-history event.
func (d *Document) AppendHistory(event, detail string) {
	d.History = append(d.History, HistoryEntry{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Detail:    detail,
	})
}

// SoftDelete marks the document deleted for retention sweeps.
func (d *Document) SoftDelete() {
	now := time.Now().UTC()
	d.DeletedAt = &now
	d.UpdatedAt = &now
}
