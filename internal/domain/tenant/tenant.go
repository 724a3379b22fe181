package tenant

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Status represents the tenant's current status
type Status string

// Predefined tenant statuses
const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Tenant represents a customer tenant in the central registry. Each tenant
// owns a dedicated database; every tenant-scoped row lives there and is
// unreachable from any other tenant's context.
type Tenant struct {
	ID string
	// Slug is the unique, stable identifier used to derive the tenant
	// database name.
	Slug   string
	Name   string
	Status Status
	// EncryptedCredentials is the tenant's bootstrap credential blob,
	// encrypted with the process-wide key. Individual resolvable
	// credentials live in the tenant database's credentials table.
	EncryptedCredentials []byte
	Settings             map[string]any
	CreatedAt            time.Time
	UpdatedAt            *time.Time
	DeletedAt            *time.Time
}

// New creates a new active tenant with validation.
func New(slug, name string) (*Tenant, error) {
	if !isValidSlug(slug) {
		return nil, ErrInvalidSlug
	}
	return &Tenant{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Slug:      slug,
		Name:      name,
		Status:    StatusActive,
		Settings:  map[string]any{},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// isValidSlug validates the tenant slug format (lowercase letters, numbers, hyphens).
func isValidSlug(slug string) bool {
	pattern := regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	return pattern.MatchString(slug)
}

// Suspend marks the tenant as suspended. Suspended tenants reject ingest.
func (t *Tenant) Suspend() {
	t.Status = StatusSuspended
	now := time.Now().UTC()
	t.UpdatedAt = &now
}

// Activate marks the tenant as active.
func (t *Tenant) Activate() {
	t.Status = StatusActive
	now := time.Now().UTC()
	t.UpdatedAt = &now
}

// Delete soft-deletes the tenant.
func (t *Tenant) Delete() {
	now := time.Now().UTC()
	t.UpdatedAt = &now
	t.DeletedAt = &now
}

// IsActive checks if the tenant is active and not soft-deleted.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive && t.DeletedAt == nil
}
