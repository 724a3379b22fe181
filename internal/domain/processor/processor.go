package processor

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a tenant-scoped processor catalog row. It binds a stable slug to
// a handler key that the registry resolves to executable code at runtime,
// and carries the schemas and dependency declarations the engine enforces.
type Entry struct {
	ID       string
	Slug     string
	Name     string
	Category string
	// HandlerKey references a registered handler implementation. Unknown
	// keys fail resolution with a non-retryable configuration error.
	HandlerKey string
	// ConfigSchema is an optional JSON schema for the step config.
	ConfigSchema []byte
	// OutputSchema is an optional JSON schema the handler output must
	// satisfy. The catalog schema takes effect when the handler itself does
	// not declare one.
	OutputSchema []byte
	// DependencySlugs lists processors that must have completed on the same
	// job before this one runs.
	DependencySlugs []string
	IsActive        bool
	Version         int
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// NewEntry creates an active catalog entry at version 1.
func NewEntry(slug, name, category, handlerKey string) *Entry {
	return &Entry{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Slug:       slug,
		Name:       name,
		Category:   category,
		HandlerKey: handlerKey,
		IsActive:   true,
		Version:    1,
		CreatedAt:  time.Now().UTC(),
	}
}
