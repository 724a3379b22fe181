package campaign

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/docflow/internal/domain/pipeline"
)

// Status represents a campaign's lifecycle state.
type Status string

// Predefined campaign statuses.
const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusArchived Status = "archived"
)

// Campaign is a named, versioned pipeline configuration owned by a tenant.
// Jobs snapshot its pipeline at creation time; later edits never affect
// in-flight jobs.
type Campaign struct {
	ID       string
	Slug     string
	Name     string
	Status   Status
	Pipeline pipeline.Pipeline
	// ChecklistTemplate seeds per-document checklists for review UIs.
	ChecklistTemplate map[string]any
	AllowedMimeTypes  []string
	MaxFileSizeBytes  int64
	MaxConcurrency    int
	RetentionDays     int
	PublishedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

// New creates a draft campaign with validation.
func New(slug, name string, p pipeline.Pipeline) (*Campaign, error) {
	if !isValidSlug(slug) {
		return nil, ErrInvalidSlug
	}
	return &Campaign{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Slug:      slug,
		Name:      name,
		Status:    StatusDraft,
		Pipeline:  p,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func isValidSlug(slug string) bool {
	pattern := regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	return pattern.MatchString(slug)
}

// Publish activates a draft or paused campaign. Activation requires a
// nonempty pipeline.
func (c *Campaign) Publish() error {
	if c.Status != StatusDraft && c.Status != StatusPaused {
		return ErrInvalidTransition
	}
	if c.Pipeline.IsEmpty() {
		return ErrEmptyPipeline
	}
	now := time.Now().UTC()
	c.Status = StatusActive
	c.PublishedAt = &now
	c.UpdatedAt = &now
	return nil
}

// Pause suspends an active campaign.
func (c *Campaign) Pause() error {
	if c.Status != StatusActive {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	c.Status = StatusPaused
	c.UpdatedAt = &now
	return nil
}

// Archive retires the campaign. Archived is terminal.
func (c *Campaign) Archive() {
	if c.Status == StatusArchived {
		return
	}
	now := time.Now().UTC()
	c.Status = StatusArchived
	c.UpdatedAt = &now
}

// IsActive reports whether the campaign accepts documents.
func (c *Campaign) IsActive() bool { return c.Status == StatusActive }

// AcceptsMime reports whether the mime type is admitted. An empty allow list
// admits everything.
func (c *Campaign) AcceptsMime(mime string) bool {
	if len(c.AllowedMimeTypes) == 0 {
		return true
	}
	for _, m := range c.AllowedMimeTypes {
		if m == mime {
			return true
		}
	}
	return false
}

// AcceptsSize reports whether the file size is within the campaign limit.
// A zero limit means unlimited.
func (c *Campaign) AcceptsSize(size int64) bool {
	return c.MaxFileSizeBytes == 0 || size <= c.MaxFileSizeBytes
}
