// Package callback defines the central, tenant-agnostic mapping that routes
// unauthenticated external callbacks to the correct tenant workflow.
package callback

import "time"

// Status represents a mapping's callback state.
type Status string

// Predefined mapping statuses. Exactly one terminal status is recorded per
// mapping.
const (
	StatusPending      Status = "pending"
	StatusApproved     Status = "auto_approved"
	StatusDeclined     Status = "declined"
	StatusExpired      Status = "expired"
	StatusFetchDone    Status = "fetch_completed"
	StatusFetchFailed  Status = "fetch_failed"
)

// Mapping links an externally-issued transaction identifier to the tenant,
// document, execution, and workflow that await its callback. It lives in the
// central database because the inbound callback carries no tenant identity.
type Mapping struct {
	// TransactionID is globally unique; registration is idempotent on it.
	TransactionID string
	TenantID      string
	DocumentID    string
	ExecutionID   string
	WorkflowID    string
	Status        Status
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	// CallbackReceivedAt is set when the public endpoint records a callback.
	CallbackReceivedAt *time.Time
	// FetchCompletedAt is set when the downstream result fetch finishes.
	FetchCompletedAt *time.Time
}

// New creates a pending mapping for a freshly issued transaction id.
func New(transactionID, tenantID, documentID, executionID, workflowID string, metadata map[string]any) *Mapping {
	return &Mapping{
		TransactionID: transactionID,
		TenantID:      tenantID,
		DocumentID:    documentID,
		ExecutionID:   executionID,
		WorkflowID:    workflowID,
		Status:        StatusPending,
		Metadata:      metadata,
		CreatedAt:     time.Now().UTC(),
	}
}

// RecordCallback marks the callback as received with the given status.
func (m *Mapping) RecordCallback(status Status) {
	now := time.Now().UTC()
	m.Status = status
	m.CallbackReceivedAt = &now
	m.UpdatedAt = &now
}

// RecordFetchCompleted marks the downstream fetch as finished.
func (m *Mapping) RecordFetchCompleted(status Status) {
	now := time.Now().UTC()
	m.Status = status
	m.FetchCompletedAt = &now
	m.UpdatedAt = &now
}
