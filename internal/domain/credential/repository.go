package credential

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrCredentialNotFound = errors.New("credential not found")
)

// Repository defines tenant-scoped credential data access. System-scope rows
// live in each tenant database with a nil scope id, seeded at tenant
// provisioning from the system credential store.
type Repository interface {
	// Create persists a new credential.
	Create(ctx context.Context, c *Credential) error

	// Update modifies an existing credential.
	Update(ctx context.Context, c *Credential) error

	// FindForScope retrieves the credential for (scopeType, scopeID, key).
	// scopeID is ignored for the system scope. Returns ErrCredentialNotFound
	// when absent.
	FindForScope(ctx context.Context, scopeType ScopeType, scopeID *string, key string) (*Credential, error)

	// TouchLastUsed records a resolution hit. Implementations may apply this
	// fire-and-forget; at-most-once is not required.
	TouchLastUsed(ctx context.Context, id string) error
}
