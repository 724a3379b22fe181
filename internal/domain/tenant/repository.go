package tenant

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrInvalidSlug         = errors.New("invalid tenant slug")
	ErrTenantSuspended     = errors.New("tenant suspended")
)

// Repository defines the interface for tenant data access against the
// central database. This interface abstracts the underlying storage
// mechanism to allow for different implementations (database, in-memory, etc.).
type Repository interface {
	// Create persists a new tenant to the central registry.
	// If a tenant with the same slug already exists, an error is returned.
	Create(ctx context.Context, tenant *Tenant) error

	// Update modifies an existing tenant's properties.
	Update(ctx context.Context, tenant *Tenant) error

	// FindBySlug retrieves a tenant by its unique slug.
	// Returns ErrTenantNotFound if the tenant cannot be found.
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)

	// FindByID retrieves a tenant by its unique identifier.
	// Returns ErrTenantNotFound if the tenant cannot be found.
	FindByID(ctx context.Context, id string) (*Tenant, error)

	// ListActive retrieves all active, non-deleted tenants. Used at boot to
	// resume in-flight workflows tenant by tenant.
	ListActive(ctx context.Context) ([]*Tenant, error)
}
