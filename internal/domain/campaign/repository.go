package campaign

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrInvalidSlug       = errors.New("invalid campaign slug")
	ErrInvalidTransition = errors.New("invalid campaign status transition")
	ErrEmptyPipeline     = errors.New("campaign pipeline must not be empty")
	ErrCampaignInactive  = errors.New("campaign is not active")
)

// Repository defines tenant-scoped campaign data access. Implementations
// resolve their database handle through the tenant scope bound to the
// context.
type Repository interface {
	// Create persists a new campaign. Slug must be unique per tenant.
	Create(ctx context.Context, c *Campaign) error

	// Update modifies an existing campaign.
	Update(ctx context.Context, c *Campaign) error

	// FindBySlug retrieves a campaign by its tenant-unique slug.
	// Returns ErrCampaignNotFound if the campaign cannot be found.
	FindBySlug(ctx context.Context, slug string) (*Campaign, error)

	// FindByID retrieves a campaign by id.
	// Returns ErrCampaignNotFound if the campaign cannot be found.
	FindByID(ctx context.Context, id string) (*Campaign, error)
}
