package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/campaign"
	"github.com/ahrav/docflow/internal/domain/pipeline"
)

var _ campaign.Repository = (*campaignStore)(nil)

type campaignStore struct {
	tracer trace.Tracer
}

// NewCampaignStore creates a campaign.Repository backed by the tenant
// database.
func NewCampaignStore(tracer trace.Tracer) campaign.Repository {
	return &campaignStore{tracer: tracer}
}

// Create persists a new campaign.
func (s *campaignStore) Create(ctx context.Context, c *campaign.Campaign) error {
	ctx, span := s.tracer.Start(ctx, "campaignStore.Create")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	pipelineJSON, err := json.Marshal(c.Pipeline)
	if err != nil {
		return err
	}
	checklist, err := marshalJSON(c.ChecklistTemplate)
	if err != nil {
		return err
	}
	mimeTypes, err := marshalJSON(c.AllowedMimeTypes)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO campaigns
			(id, slug, name, status, pipeline, checklist_template, allowed_mime_types,
			 max_file_size_bytes, max_concurrency, retention_days, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.Slug, c.Name, string(c.Status), pipelineJSON, checklist, mimeTypes,
		c.MaxFileSizeBytes, c.MaxConcurrency, c.RetentionDays, nullableTime(c.PublishedAt), c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return campaign.ErrInvalidSlug
		}
		return err
	}
	return nil
}

// Update modifies an existing campaign.
func (s *campaignStore) Update(ctx context.Context, c *campaign.Campaign) error {
	ctx, span := s.tracer.Start(ctx, "campaignStore.Update")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	pipelineJSON, err := json.Marshal(c.Pipeline)
	if err != nil {
		return err
	}
	checklist, err := marshalJSON(c.ChecklistTemplate)
	if err != nil {
		return err
	}
	mimeTypes, err := marshalJSON(c.AllowedMimeTypes)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
		UPDATE campaigns
		SET name = $2, status = $3, pipeline = $4, checklist_template = $5,
		    allowed_mime_types = $6, max_file_size_bytes = $7, max_concurrency = $8,
		    retention_days = $9, published_at = $10, updated_at = $11
		WHERE id = $1`,
		c.ID, c.Name, string(c.Status), pipelineJSON, checklist, mimeTypes,
		c.MaxFileSizeBytes, c.MaxConcurrency, c.RetentionDays,
		nullableTime(c.PublishedAt), nullableTime(c.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return campaign.ErrCampaignNotFound
	}
	return nil
}

// FindBySlug retrieves a campaign by its tenant-unique slug.
func (s *campaignStore) FindBySlug(ctx context.Context, slug string) (*campaign.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "campaignStore.FindBySlug")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanCampaign(db.QueryRow(ctx, selectCampaign+` WHERE slug = $1`, slug))
}

// FindByID retrieves a campaign by id.
func (s *campaignStore) FindByID(ctx context.Context, id string) (*campaign.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "campaignStore.FindByID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanCampaign(db.QueryRow(ctx, selectCampaign+` WHERE id = $1`, id))
}

const selectCampaign = `
	SELECT id, slug, name, status, pipeline, checklist_template, allowed_mime_types,
	       max_file_size_bytes, max_concurrency, retention_days, published_at,
	       created_at, updated_at
	FROM campaigns`

func scanCampaign(row pgx.Row) (*campaign.Campaign, error) {
	var (
		c            campaign.Campaign
		status       string
		pipelineJSON []byte
		checklist    []byte
		mimeTypes    []byte
		publishedAt  pgtype.Timestamptz
		updatedAt    pgtype.Timestamptz
	)
	err := row.Scan(&c.ID, &c.Slug, &c.Name, &status, &pipelineJSON, &checklist, &mimeTypes,
		&c.MaxFileSizeBytes, &c.MaxConcurrency, &c.RetentionDays, &publishedAt,
		&c.CreatedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.ErrCampaignNotFound
		}
		return nil, err
	}

	c.Status = campaign.Status(status)
	c.Pipeline, err = pipeline.Parse(pipelineJSON)
	if err != nil {
		return nil, err
	}
	c.ChecklistTemplate, err = unmarshalMap(checklist)
	if err != nil {
		return nil, err
	}
	if len(mimeTypes) > 0 {
		if err := json.Unmarshal(mimeTypes, &c.AllowedMimeTypes); err != nil {
			return nil, err
		}
	}
	c.PublishedAt = timePtr(publishedAt)
	c.UpdatedAt = timePtr(updatedAt)
	return &c, nil
}
