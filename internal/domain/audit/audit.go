// Package audit defines the append-only audit log written at every domain
// state transition the engine cares about. Updates and deletes are rejected
// by construction: the repository exposes no mutating operations.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditableType is the closed set of entities the log references. The
// (type, id) pair is a tagged reference, not open polymorphism.
type AuditableType string

// Auditable entity types.
const (
	TypeDocument   AuditableType = "document"
	TypeJob        AuditableType = "job"
	TypeExecution  AuditableType = "execution"
	TypeCampaign   AuditableType = "campaign"
	TypeTenant     AuditableType = "tenant"
	TypeCredential AuditableType = "credential"
)

// Entry is one immutable audit record.
type Entry struct {
	ID            string
	UserID        *string
	AuditableType AuditableType
	AuditableID   string
	Event         string
	OldValues     map[string]any
	NewValues     map[string]any
	IPAddress     *string
	UserAgent     *string
	Tags          []string
	CreatedAt     time.Time
}

// NewEntry creates an audit record for an entity event.
func NewEntry(t AuditableType, id, event string, oldValues, newValues map[string]any) *Entry {
	return &Entry{
		ID:            uuid.Must(uuid.NewV7()).String(),
		AuditableType: t,
		AuditableID:   id,
		Event:         event,
		OldValues:     oldValues,
		NewValues:     newValues,
		CreatedAt:     time.Now().UTC(),
	}
}

// Repository defines tenant-scoped, append-only audit access.
type Repository interface {
	// Create appends an entry. There is deliberately no update or delete.
	Create(ctx context.Context, e *Entry) error

	// FindByAuditable lists entries for one entity, newest first.
	FindByAuditable(ctx context.Context, t AuditableType, id string) ([]*Entry, error)
}
