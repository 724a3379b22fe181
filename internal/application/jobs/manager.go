// Package jobs owns job and document lifecycle: admission and ingest,
// pipeline job creation, and the terminal cascade when a workflow finishes.
package jobs

import (
	"context"
	"errors"
	"path"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/application/event"
	"github.com/ahrav/docflow/internal/application/progress"
	"github.com/ahrav/docflow/internal/domain/audit"
	"github.com/ahrav/docflow/internal/domain/campaign"
	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/fault"
	"github.com/ahrav/docflow/internal/domain/job"
	"github.com/ahrav/docflow/internal/domain/usage"
	wf "github.com/ahrav/docflow/internal/domain/workflow"
	"github.com/ahrav/docflow/internal/infra/objectstore"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
)

// defaultQueue is the queue jobs are assigned to unless the campaign routes
// them elsewhere.
const defaultQueue = "documents"

// PipelineEngine is the workflow surface the manager drives. Implemented by
// the workflow engine; the manager is attached back to it as the lifecycle.
type PipelineEngine interface {
	Launch(ctx context.Context, j *job.Job) (*wf.Workflow, error)
	Cancel(ctx context.Context, jobID string) error
}

// validate checks upload shape before any campaign rules apply.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Upload is one inbound document submission.
type Upload struct {
	Filename string  `validate:"required,max=255"`
	MimeType string  `validate:"required"`
	Data     []byte  `validate:"required"`
	UserID   *string `validate:"omitempty,max=64"`
}

// Manager coordinates documents, jobs, and their workflow. All methods
// require a bound tenant scope.
type Manager struct {
	campaigns campaign.Repository
	documents document.Repository
	jobs      job.Repository
	blobs     objectstore.Store
	tracker   *progress.Tracker
	usages    usage.Repository
	audits    audit.Repository
	bus       event.Publisher

	engine PipelineEngine

	logger *logger.Logger
	tracer trace.Tracer
}

// NewManager wires the job manager. The engine is attached afterward via
// SetEngine to break the construction cycle with the workflow engine.
func NewManager(
	campaigns campaign.Repository,
	documents document.Repository,
	jobRepo job.Repository,
	blobs objectstore.Store,
	tracker *progress.Tracker,
	usages usage.Repository,
	audits audit.Repository,
	bus event.Publisher,
	log *logger.Logger,
	tracer trace.Tracer,
) *Manager {
	return &Manager{
		campaigns: campaigns,
		documents: documents,
		jobs:      jobRepo,
		blobs:     blobs,
		tracker:   tracker,
		usages:    usages,
		audits:    audits,
		bus:       bus,
		logger:    log.With("component", "job_manager"),
		tracer:    tracer,
	}
}

// SetEngine attaches the workflow engine.
func (m *Manager) SetEngine(engine PipelineEngine) { m.engine = engine }

// Ingest admits an upload into a campaign, stores its bytes, creates the
// document and its pipeline job, and launches the workflow.
func (m *Manager) Ingest(ctx context.Context, campaignSlug string, up Upload) (*document.Document, *job.Job, error) {
	ctx, span := m.tracer.Start(ctx, "jobs.Ingest", trace.WithAttributes(
		attribute.String("campaign_slug", campaignSlug),
		attribute.String("filename", up.Filename),
		attribute.Int("size_bytes", len(up.Data)),
	))
	defer span.End()

	if err := validate.Struct(up); err != nil {
		span.SetStatus(codes.Error, "invalid upload")
		return nil, nil, fault.Input("invalid upload: %v", err)
	}

	c, err := m.campaigns.FindBySlug(ctx, campaignSlug)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error loading campaign")
		return nil, nil, err
	}
	if !c.IsActive() {
		span.SetStatus(codes.Error, "campaign inactive")
		return nil, nil, campaign.ErrCampaignInactive
	}
	if !c.AcceptsMime(up.MimeType) {
		return nil, nil, fault.Input("unsupported mime type %q for campaign %q", up.MimeType, campaignSlug)
	}
	if !c.AcceptsSize(int64(len(up.Data))) {
		return nil, nil, fault.Input("file exceeds campaign size limit of %d bytes", c.MaxFileSizeBytes)
	}

	storagePath := path.Join("documents", uuid.NewString()+path.Ext(up.Filename))
	if err := m.blobs.Put(ctx, storagePath, up.Data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error storing document bytes")
		return nil, nil, err
	}

	doc := document.New(c.ID, up.Filename, up.MimeType, storagePath, "default", up.Data)
	doc.UserID = up.UserID
	doc.AppendHistory("document.ingested", campaignSlug)
	if err := m.documents.Create(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error creating document")
		return nil, nil, err
	}

	if err := m.usages.Create(ctx, usage.NewEvent(c.ID, doc.ID, nil,
		usage.EventDocumentIngested, doc.SizeBytes, 0, map[string]any{"filename": doc.Filename})); err != nil {
		m.logger.Warn(ctx, "failed to record usage event", "error", err)
	}
	m.auditWrite(ctx, audit.TypeDocument, doc.ID, "document.created",
		map[string]any{"state": string(doc.State), "filename": doc.Filename})

	j, err := m.CreateJob(ctx, c, doc)
	if err != nil {
		return doc, nil, err
	}

	span.SetStatus(codes.Ok, "document ingested")
	return doc, j, nil
}

// CreateJob snapshots the campaign pipeline into a new job for the document
// and launches its workflow. A document admits at most one active job.
func (m *Manager) CreateJob(ctx context.Context, c *campaign.Campaign, doc *document.Document) (*job.Job, error) {
	ctx, span := m.tracer.Start(ctx, "jobs.CreateJob", trace.WithAttributes(
		attribute.String("document_id", doc.ID),
		attribute.String("campaign_id", c.ID),
	))
	defer span.End()

	if _, err := m.jobs.FindActiveByDocument(ctx, doc.ID); err == nil {
		span.SetStatus(codes.Error, "active job exists")
		return nil, job.ErrActiveJobExists
	} else if !errors.Is(err, job.ErrJobNotFound) {
		span.RecordError(err)
		return nil, err
	}

	j := job.New(c.ID, doc.ID, c.Pipeline, defaultQueue, 0)
	if err := m.jobs.Create(ctx, j); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error creating job")
		return nil, err
	}

	if err := doc.Enqueue(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := doc.StartProcessing(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := m.documents.Update(ctx, doc); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if _, err := m.tracker.Begin(ctx, j); err != nil {
		span.RecordError(err)
		return nil, err
	}

	m.publishJobEvent(ctx, j, event.TypeJobCreated, nil)
	m.auditWrite(ctx, audit.TypeJob, j.ID, "job.created",
		map[string]any{"pipeline_len": j.Pipeline.Len()})

	if _, err := m.engine.Launch(ctx, j); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error launching workflow")
		return nil, err
	}

	span.SetStatus(codes.Ok, "job created")
	return j, nil
}

// Cancel requests cancellation of a job by its public id.
func (m *Manager) Cancel(ctx context.Context, publicID string) error {
	j, err := m.jobs.FindByPublicID(ctx, publicID)
	if err != nil {
		return err
	}
	if j.IsTerminal() {
		return nil
	}
	return m.engine.Cancel(ctx, j.ID)
}

// GetJob retrieves a job by public id for API reads.
func (m *Manager) GetJob(ctx context.Context, publicID string) (*job.Job, error) {
	return m.jobs.FindByPublicID(ctx, publicID)
}

// GetProgress retrieves the progress row for a job's public id.
func (m *Manager) GetProgress(ctx context.Context, publicID string) (*job.Job, *job.Progress, error) {
	j, err := m.jobs.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, nil, err
	}
	p, err := m.progressFor(ctx, j)
	if err != nil {
		return nil, nil, err
	}
	return j, p, nil
}

// HandleCompleted is the workflow engine's completion callback: it cascades
// the terminal state onto the job and document and emits terminal events.
func (m *Manager) HandleCompleted(ctx context.Context, jobID string) error {
	ctx, span := m.tracer.Start(ctx, "jobs.HandleCompleted", trace.WithAttributes(
		attribute.String("job_id", jobID),
	))
	defer span.End()

	j, err := m.jobs.FindByID(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := j.Complete(); err != nil {
		span.RecordError(err)
		return err
	}
	if err := m.jobs.Update(ctx, j); err != nil {
		span.RecordError(err)
		return err
	}

	doc, err := m.completeDocument(ctx, j.DocumentID, (*document.Document).Complete, "document.completed")
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := m.tracker.Finish(ctx, j); err != nil {
		m.logger.Warn(ctx, "failed to finish progress", "job_id", j.ID, "error", err)
	}

	m.publishJobEvent(ctx, j, event.TypeJobCompleted, nil)
	m.publishDocumentEvent(ctx, j, doc, event.TypeDocumentProcessingCompleted)
	m.auditWrite(ctx, audit.TypeJob, j.ID, "job.completed", map[string]any{"state": string(j.State)})

	span.SetStatus(codes.Ok, "job completed")
	return nil
}

// HandleFailed is the workflow engine's failure callback. Retryable faults
// with remaining whole-job attempts relaunch the pipeline from step zero;
// completed execution records make the replay idempotent. Everything else is
// terminal.
func (m *Manager) HandleFailed(ctx context.Context, jobID string, cause *fault.Error) error {
	ctx, span := m.tracer.Start(ctx, "jobs.HandleFailed", trace.WithAttributes(
		attribute.String("job_id", jobID),
		attribute.String("fault_class", string(cause.Class)),
	))
	defer span.End()

	j, err := m.jobs.FindByID(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := j.Fail(cause.Error()); err != nil {
		span.RecordError(err)
		return err
	}
	if err := m.jobs.Update(ctx, j); err != nil {
		span.RecordError(err)
		return err
	}

	if cause.Retryable() && j.CanRetry() {
		span.AddEvent("retrying job")
		if err := j.Retry(); err != nil {
			span.RecordError(err)
			return err
		}
		if err := m.jobs.Update(ctx, j); err != nil {
			span.RecordError(err)
			return err
		}
		m.logger.Info(ctx, "relaunching failed job",
			"job_id", j.ID, "attempt", j.Attempts, "max_attempts", j.MaxAttempts)
		_, err := m.engine.Launch(ctx, j)
		return err
	}

	doc, err := m.completeDocument(ctx, j.DocumentID, (*document.Document).Fail, "document.failed")
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := m.tracker.Finish(ctx, j); err != nil {
		m.logger.Warn(ctx, "failed to finish progress", "job_id", j.ID, "error", err)
	}

	m.publishJobEvent(ctx, j, event.TypeJobFailed, map[string]any{
		"error": cause.Error(),
		"class": string(cause.Class),
	})
	m.publishDocumentEvent(ctx, j, doc, event.TypeDocumentProcessingFailed)
	m.auditWrite(ctx, audit.TypeJob, j.ID, "job.failed",
		map[string]any{"error": cause.Error(), "attempts": j.Attempts})

	span.SetStatus(codes.Error, "job failed terminally")
	return nil
}

// HandleCancelled is the workflow engine's cancellation callback.
func (m *Manager) HandleCancelled(ctx context.Context, jobID string) error {
	ctx, span := m.tracer.Start(ctx, "jobs.HandleCancelled", trace.WithAttributes(
		attribute.String("job_id", jobID),
	))
	defer span.End()

	j, err := m.jobs.FindByID(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := j.Cancel(); err != nil {
		span.RecordError(err)
		return err
	}
	if err := m.jobs.Update(ctx, j); err != nil {
		span.RecordError(err)
		return err
	}

	if _, err := m.completeDocument(ctx, j.DocumentID, (*document.Document).Cancel, "document.cancelled"); err != nil {
		span.RecordError(err)
		return err
	}

	if err := m.tracker.Finish(ctx, j); err != nil {
		m.logger.Warn(ctx, "failed to finish progress", "job_id", j.ID, "error", err)
	}

	m.publishJobEvent(ctx, j, event.TypeJobCancelled, nil)
	m.auditWrite(ctx, audit.TypeJob, j.ID, "job.cancelled", nil)
	return nil
}

func (m *Manager) completeDocument(ctx context.Context, documentID string, transition func(*document.Document) error, historyEvent string) (*document.Document, error) {
	doc, err := m.documents.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := transition(doc); err != nil {
		return nil, err
	}
	doc.AppendHistory(historyEvent, "")
	if err := m.documents.Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *Manager) progressFor(ctx context.Context, j *job.Job) (*job.Progress, error) {
	return m.tracker.Load(ctx, j)
}

func (m *Manager) publishJobEvent(ctx context.Context, j *job.Job, typ event.Type, payload map[string]any) {
	tenantID := ""
	if scope, err := tenantctx.FromContext(ctx); err == nil {
		tenantID = scope.TenantID
	}
	e := event.New(typ, tenantID)
	e.JobID = j.ID
	e.CampaignID = j.CampaignID
	e.DocumentID = j.DocumentID
	e.Payload = payload
	m.bus.Publish(e)
}

func (m *Manager) publishDocumentEvent(ctx context.Context, j *job.Job, doc *document.Document, typ event.Type) {
	tenantID := ""
	if scope, err := tenantctx.FromContext(ctx); err == nil {
		tenantID = scope.TenantID
	}
	e := event.New(typ, tenantID)
	e.JobID = j.ID
	e.CampaignID = j.CampaignID
	e.DocumentID = doc.ID
	e.Payload = map[string]any{
		"public_id": doc.PublicID,
		"state":     string(doc.State),
		"metadata":  doc.Metadata,
	}
	m.bus.Publish(e)
}

func (m *Manager) auditWrite(ctx context.Context, t audit.AuditableType, id, eventName string, newValues map[string]any) {
	if err := m.audits.Create(ctx, audit.NewEntry(t, id, eventName, nil, newValues)); err != nil {
		m.logger.Warn(ctx, "failed to record audit entry", "error", err)
	}
}
