// Package progress maintains the per-job progress row and mirrors every
// change onto the event stream.
package progress

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/application/event"
	"github.com/ahrav/docflow/internal/domain/job"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
)

// Tracker owns the job progress rows. All writes flow through it so the
// stored percentage and the published events never diverge.
type Tracker struct {
	repo job.ProgressRepository
	bus  event.Publisher

	logger *logger.Logger
	tracer trace.Tracer
}

// NewTracker creates a tracker over the tenant progress repository.
func NewTracker(repo job.ProgressRepository, bus event.Publisher, log *logger.Logger, tracer trace.Tracer) *Tracker {
	return &Tracker{
		repo:   repo,
		bus:    bus,
		logger: log.With("component", "progress_tracker"),
		tracer: tracer,
	}
}

// Begin creates the progress row for a new job.
func (t *Tracker) Begin(ctx context.Context, j *job.Job) (*job.Progress, error) {
	ctx, span := t.tracer.Start(ctx, "progress.Begin", trace.WithAttributes(
		attribute.String("job_id", j.ID),
		attribute.Int("total_stages", j.Pipeline.Len()),
	))
	defer span.End()

	p := job.NewProgress(j.ID, j.Pipeline.Len())
	if err := t.repo.Create(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error creating progress row")
		return nil, err
	}
	return p, nil
}

// StageDone records one completed stage and publishes job.progressed.
func (t *Tracker) StageDone(ctx context.Context, j *job.Job, stage string) error {
	ctx, span := t.tracer.Start(ctx, "progress.StageDone", trace.WithAttributes(
		attribute.String("job_id", j.ID),
		attribute.String("stage", stage),
	))
	defer span.End()

	p, err := t.Load(ctx, j)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error loading progress row")
		return err
	}

	p.StageDone(stage)
	if err := t.repo.Update(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error updating progress row")
		return err
	}

	t.publish(ctx, j, p, event.TypeJobProgressed)
	return nil
}

// Finish stamps the job's terminal status onto the progress row.
func (t *Tracker) Finish(ctx context.Context, j *job.Job) error {
	ctx, span := t.tracer.Start(ctx, "progress.Finish", trace.WithAttributes(
		attribute.String("job_id", j.ID),
		attribute.String("status", string(j.State)),
	))
	defer span.End()

	p, err := t.Load(ctx, j)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error loading progress row")
		return err
	}

	p.Finish(j.State)
	if err := t.repo.Update(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error updating progress row")
		return err
	}

	t.publish(ctx, j, p, event.TypeJobProgressed)
	return nil
}

// Load fetches the progress row, creating it when a pre-progress job from an
// older deploy shows up.
func (t *Tracker) Load(ctx context.Context, j *job.Job) (*job.Progress, error) {
	p, err := t.repo.FindByJobID(ctx, j.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, job.ErrProgressNotFound) {
		return nil, err
	}

	p = job.NewProgress(j.ID, j.Pipeline.Len())
	p.CompletedStages = j.CurrentProcessorIndex
	if err := t.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (t *Tracker) publish(ctx context.Context, j *job.Job, p *job.Progress, typ event.Type) {
	tenantID := ""
	if scope, err := tenantctx.FromContext(ctx); err == nil {
		tenantID = scope.TenantID
	}
	e := event.New(typ, tenantID)
	e.JobID = j.ID
	e.CampaignID = j.CampaignID
	e.DocumentID = j.DocumentID
	e.Payload = map[string]any{
		"total_stages":     p.TotalStages,
		"completed_stages": p.CompletedStages,
		"percentage":       p.Percentage,
		"current_stage":    p.CurrentStage,
		"status":           p.Status,
	}
	t.bus.Publish(e)
}
