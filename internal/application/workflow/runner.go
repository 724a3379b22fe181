package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/application/event"
	"github.com/ahrav/docflow/internal/application/registry"
	"github.com/ahrav/docflow/internal/domain/audit"
	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/execution"
	"github.com/ahrav/docflow/internal/domain/fault"
	"github.com/ahrav/docflow/internal/domain/job"
	"github.com/ahrav/docflow/internal/domain/pipeline"
	"github.com/ahrav/docflow/internal/domain/processor"
	"github.com/ahrav/docflow/internal/domain/usage"
	wf "github.com/ahrav/docflow/internal/domain/workflow"
	"github.com/ahrav/docflow/internal/infra/objectstore"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
	"github.com/ahrav/docflow/pkg/common/timeutil"
)

// CallbackRegistrar registers transaction-id mappings for steps that suspend
// awaiting an external callback. Implemented by the callback service against
// the central database.
type CallbackRegistrar interface {
	Register(ctx context.Context, transactionID, tenantID, documentID, executionID, workflowID string, metadata map[string]any) error
}

// RunnerMetrics records per-step observations.
type RunnerMetrics interface {
	ObserveStepDuration(category string, d time.Duration)
	IncStepRetry(category string)
	IncStepFailure(category string, class string)
}

// StepResult is the outcome the runner reports to the engine for one step.
type StepResult struct {
	ExecutionID string
	Output      map[string]any
	Skipped     bool
	// AwaitingCallback parks the workflow on TransactionID as its signal.
	AwaitingCallback bool
	TransactionID    string
}

// Runner executes a single pipeline step as an idempotent activity: one
// execution record per attempt chain, replay short-circuited by a prior
// completed record, retries applied per category policy without touching the
// job's attempt counter.
type Runner struct {
	documents  document.Repository
	executions execution.Repository
	catalog    processor.Repository
	registry   *registry.Registry
	vault      processor.CredentialResolver
	blobs      objectstore.Store
	callbacks  CallbackRegistrar
	usages     usage.Repository
	audits     audit.Repository
	bus        event.Publisher
	clock      timeutil.Provider
	metrics    RunnerMetrics

	logger *logger.Logger
	tracer trace.Tracer
}

// NewRunner wires the activity runner.
func NewRunner(
	documents document.Repository,
	executions execution.Repository,
	catalog processor.Repository,
	reg *registry.Registry,
	vault processor.CredentialResolver,
	blobs objectstore.Store,
	callbacks CallbackRegistrar,
	usages usage.Repository,
	audits audit.Repository,
	bus event.Publisher,
	metrics RunnerMetrics,
	log *logger.Logger,
	tracer trace.Tracer,
) *Runner {
	return &Runner{
		documents:  documents,
		executions: executions,
		catalog:    catalog,
		registry:   reg,
		vault:      vault,
		blobs:      blobs,
		callbacks:  callbacks,
		usages:     usages,
		audits:     audits,
		bus:        bus,
		clock:      timeutil.Default(),
		metrics:    metrics,
		logger:     log.With("component", "activity_runner"),
		tracer:     tracer,
	}
}

// WithClock overrides the time source, used by backoff tests.
func (r *Runner) WithClock(clock timeutil.Provider) *Runner {
	r.clock = clock
	return r
}

// Execute runs one pipeline step for the job. Steps with an empty slug are
// recorded as skipped. A previously completed record for the same (job, step)
// is returned verbatim without re-invoking the handler, which makes replay
// after a crash or a whole-job retry at-most-once per completed step.
func (r *Runner) Execute(ctx context.Context, j *job.Job, w *wf.Workflow, step pipeline.Step, stepIndex int) (*StepResult, error) {
	ctx, span := r.tracer.Start(ctx, "runner.Execute", trace.WithAttributes(
		attribute.String("job_id", j.ID),
		attribute.Int("step_index", stepIndex),
		attribute.String("processor_slug", step.Slug),
	))
	defer span.End()

	if step.Slug == "" {
		return r.recordSkipped(ctx, j, stepIndex)
	}

	if prior, err := r.executions.FindByJobAndStep(ctx, j.ID, stepIndex); err == nil {
		switch prior.State {
		case execution.StateCompleted:
			span.AddEvent("replayed completed execution")
			return &StepResult{ExecutionID: prior.ID, Output: prior.Output}, nil
		case execution.StateSkipped:
			return &StepResult{ExecutionID: prior.ID, Skipped: true}, nil
		}
	} else if !errors.Is(err, execution.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error checking prior execution")
		return nil, err
	}

	doc, err := r.documents.FindByID(ctx, j.DocumentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error loading document")
		return nil, err
	}

	entry, handler, err := r.resolve(ctx, step.Slug)
	if err != nil {
		return r.failBeforeStart(ctx, j, doc, step, stepIndex, entry, fault.Classify(err))
	}

	if err := r.checkDependencies(w, entry, handler, step.Slug); err != nil {
		return r.failBeforeStart(ctx, j, doc, step, stepIndex, entry, fault.Classify(err))
	}

	if !handler.CanProcess(doc) {
		fe := fault.Input("unsupported document %q (%s) for processor %q", doc.Filename, doc.MimeType, step.Slug)
		return r.failBeforeStart(ctx, j, doc, step, stepIndex, entry, fe)
	}

	var processorID *string
	if entry != nil {
		processorID = &entry.ID
	}
	rec := execution.New(j.ID, step.Slug, processorID, stepIndex, map[string]any{
		"document_id": doc.ID,
		"mime_type":   doc.MimeType,
		"size_bytes":  doc.SizeBytes,
	}, step.Config)
	if err := r.executions.Create(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error creating execution record")
		return nil, err
	}
	if err := rec.Start(); err != nil {
		return nil, err
	}
	if err := r.executions.Update(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error starting execution record")
		return nil, err
	}
	r.publishExecutionEvent(ctx, j, rec, event.TypeExecutionStarted, nil)

	call := &processor.CallContext{
		JobID:           j.ID,
		StepIndex:       stepIndex,
		CampaignID:      j.CampaignID,
		PreviousOutputs: w.PreviousOutputs,
		Credentials:     r.vault,
		Blobs:           r.blobs,
	}

	cat := r.category(step, entry)
	pol := PolicyFor(cat)
	started := r.clock.Now()
	res, fe := r.invokeWithRetry(ctx, handler, doc, step, call, pol, cat)
	if r.metrics != nil {
		r.metrics.ObserveStepDuration(cat, r.clock.Now().Sub(started))
	}
	if fe != nil {
		return nil, r.failExecution(ctx, j, doc, step, rec, fe)
	}

	if res.AwaitingCallback && res.TransactionID != "" {
		return r.suspendForCallback(ctx, j, w, doc, rec, res)
	}

	if err := r.validateOutput(handler, entry, res.Output); err != nil {
		return nil, r.failExecution(ctx, j, doc, step, rec, fault.Classify(err))
	}

	if err := r.storeArtifacts(ctx, rec, res.Artifacts); err != nil {
		return nil, r.failExecution(ctx, j, doc, step, rec, fault.Classify(err))
	}

	if err := r.completeExecution(ctx, j, doc, step, entry, rec, res); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error completing execution")
		return nil, err
	}

	span.SetStatus(codes.Ok, "step completed")
	return &StepResult{ExecutionID: rec.ID, Output: rec.Output}, nil
}

// CompleteAwaited finishes a suspended execution with the callback payload as
// its output. Returns the output the engine records for downstream steps.
func (r *Runner) CompleteAwaited(ctx context.Context, executionID string, payload map[string]any) (map[string]any, error) {
	ctx, span := r.tracer.Start(ctx, "runner.CompleteAwaited", trace.WithAttributes(
		attribute.String("execution_id", executionID),
	))
	defer span.End()

	rec, err := r.executions.FindByID(ctx, executionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error loading awaited execution")
		return nil, err
	}
	if rec.State == execution.StateCompleted {
		return rec.Output, nil
	}

	if err := rec.Complete(payload, rec.TokensUsed, rec.CostCredits); err != nil {
		return nil, err
	}
	if err := r.executions.Update(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error persisting awaited execution")
		return nil, err
	}
	return rec.Output, nil
}

// FailAwaited finishes a suspended execution as failed, used for declined or
// expired callbacks.
func (r *Runner) FailAwaited(ctx context.Context, executionID, reason string) error {
	rec, err := r.executions.FindByID(ctx, executionID)
	if err != nil {
		return err
	}
	if rec.State.IsTerminal() {
		return nil
	}
	if err := rec.Fail(reason); err != nil {
		return err
	}
	return r.executions.Update(ctx, rec)
}

// resolve loads the catalog entry and handler for a slug. Statically
// registered handlers work without a catalog row.
func (r *Runner) resolve(ctx context.Context, slug string) (*processor.Entry, processor.Handler, error) {
	entry, err := r.catalog.FindBySlug(ctx, slug)
	if err != nil {
		if !errors.Is(err, processor.ErrProcessorNotFound) {
			return nil, nil, err
		}
		entry = nil
	}

	var handler processor.Handler
	if entry != nil {
		if !entry.IsActive {
			return entry, nil, fault.Configuration("processor %q is inactive", slug)
		}
		handler, err = r.registry.GetForEntry(entry)
	} else {
		handler, err = r.registry.Get(ctx, slug)
	}
	if err != nil {
		return entry, nil, err
	}
	return entry, handler, nil
}

// checkDependencies verifies every declared dependency completed earlier in
// this workflow.
func (r *Runner) checkDependencies(w *wf.Workflow, entry *processor.Entry, handler processor.Handler, slug string) error {
	var deps []string
	if entry != nil {
		deps = append(deps, entry.DependencySlugs...)
	}
	if d, ok := handler.(processor.DependencyDeclarer); ok {
		deps = append(deps, d.DependencySlugs()...)
	}
	for _, dep := range deps {
		if _, done := w.PreviousOutputs[dep]; !done {
			return fault.DependencyNotSatisfied("missing dependency %q for processor %q", dep, slug)
		}
	}
	return nil
}

func (r *Runner) category(step pipeline.Step, entry *processor.Entry) string {
	if step.Category != "" {
		return step.Category
	}
	if entry != nil {
		return entry.Category
	}
	return ""
}

// invokeWithRetry calls the handler under the category policy. Only
// transient failures are retried; the backoff doubles per attempt.
func (r *Runner) invokeWithRetry(ctx context.Context, handler processor.Handler, doc *document.Document, step pipeline.Step, call *processor.CallContext, pol Policy, category string) (*processor.Result, *fault.Error) {
	var last *fault.Error
	for attempt := 1; attempt <= pol.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fault.Cancelled(err.Error())
		}

		attemptCtx, cancel := context.WithTimeout(ctx, pol.AttemptTimeout)
		res, err := handler.Process(attemptCtx, doc, step.Config, call)
		cancel()

		switch {
		case err != nil:
			last = fault.Classify(err)
		case res == nil:
			last = fault.Transient(nil, "processor %q returned no result", step.Slug)
		case !res.Success && !res.AwaitingCallback:
			last = fault.Classify(errors.New(res.Error))
		default:
			return res, nil
		}

		if !last.Retryable() || attempt == pol.MaxAttempts {
			return nil, last
		}
		if r.metrics != nil {
			r.metrics.IncStepRetry(category)
		}
		r.logger.Warn(ctx, "retrying processor step",
			"processor_slug", step.Slug, "attempt", attempt, "error", last.Error())
		r.clock.Sleep(pol.BackoffFor(attempt + 1))
	}
	return nil, last
}

// validateOutput enforces the output schema declared by the handler or, when
// absent, by the catalog entry.
func (r *Runner) validateOutput(handler processor.Handler, entry *processor.Entry, output map[string]any) error {
	var schemaBytes []byte
	if s, ok := handler.(processor.OutputSchemer); ok {
		schemaBytes = s.OutputSchema()
	}
	if len(schemaBytes) == 0 && entry != nil {
		schemaBytes = entry.OutputSchema
	}
	if len(schemaBytes) == 0 {
		return nil
	}

	schema, err := jsonschema.CompileString("output.json", string(schemaBytes))
	if err != nil {
		return fault.Configuration("invalid output schema: %v", err)
	}
	var doc any = map[string]any(output)
	if output == nil {
		doc = map[string]any{}
	}
	if err := schema.Validate(doc); err != nil {
		return fault.Configuration("output schema violation: %v", err)
	}
	return nil
}

// storeArtifacts writes processor artifacts under the execution's path.
func (r *Runner) storeArtifacts(ctx context.Context, rec *execution.Record, artifacts []processor.Artifact) error {
	for _, a := range artifacts {
		path := objectstore.ArtifactPath(rec.ID, a.Collection, a.Filename)
		if err := r.blobs.Put(ctx, path, a.Data); err != nil {
			return fmt.Errorf("storing artifact %s: %w", path, err)
		}
	}
	return nil
}

// suspendForCallback registers the transaction mapping and hands the suspend
// decision back to the engine. The execution record stays running until the
// callback's signal completes it.
func (r *Runner) suspendForCallback(ctx context.Context, j *job.Job, w *wf.Workflow, doc *document.Document, rec *execution.Record, res *processor.Result) (*StepResult, error) {
	scope, err := tenantctx.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.callbacks.Register(ctx, res.TransactionID, scope.TenantID, doc.ID, rec.ID, w.ID, res.Output); err != nil {
		return nil, r.failExecution(ctx, j, doc, pipeline.Step{Slug: rec.ProcessorSlug}, rec, fault.Classify(err))
	}

	r.logger.Info(ctx, "step awaiting callback",
		"job_id", j.ID, "processor_slug", rec.ProcessorSlug, "transaction_id", res.TransactionID)
	return &StepResult{
		ExecutionID:      rec.ID,
		AwaitingCallback: true,
		TransactionID:    res.TransactionID,
	}, nil
}

// completeExecution persists the successful result and its side effects:
// document metadata merge, usage event, audit entry, lifecycle event.
func (r *Runner) completeExecution(ctx context.Context, j *job.Job, doc *document.Document, step pipeline.Step, entry *processor.Entry, rec *execution.Record, res *processor.Result) error {
	if err := rec.Complete(res.Output, res.TokensUsed, res.CostCredits); err != nil {
		return err
	}
	if err := r.executions.Update(ctx, rec); err != nil {
		return err
	}

	r.mergeDocumentMetadata(doc, step.Slug, res.Output)
	doc.AppendHistory("processor.completed", step.Slug)
	if err := r.documents.Update(ctx, doc); err != nil {
		return err
	}

	if err := r.usages.Create(ctx, usage.NewEvent(j.CampaignID, doc.ID, &j.ID,
		usage.EventProcessorCompleted, res.TokensUsed, res.CostCredits,
		map[string]any{"processor_slug": step.Slug})); err != nil {
		r.logger.Warn(ctx, "failed to record usage event", "error", err)
	}
	if err := r.audits.Create(ctx, audit.NewEntry(audit.TypeExecution, rec.ID, "execution.completed",
		nil, map[string]any{"state": string(rec.State), "processor_slug": step.Slug})); err != nil {
		r.logger.Warn(ctx, "failed to record audit entry", "error", err)
	}

	r.publishExecutionEvent(ctx, j, rec, event.TypeExecutionCompleted, map[string]any{
		"duration_ms": rec.DurationMS,
		"tokens_used": rec.TokensUsed,
	})
	return nil
}

// mergeDocumentMetadata promotes well-known output keys onto the document and
// records the full output under outputs.<slug>.
func (r *Runner) mergeDocumentMetadata(doc *document.Document, slug string, output map[string]any) {
	merged := map[string]any{}
	if text, ok := output["text"]; ok {
		merged["extracted_text"] = text
	}
	if category, ok := output["category"]; ok {
		merged["category"] = category
	}
	if fields, ok := output["fields"]; ok {
		merged["extracted_fields"] = fields
	}

	outputs, _ := doc.Metadata["outputs"].(map[string]any)
	if outputs == nil {
		outputs = map[string]any{}
	}
	outputs[slug] = output
	merged["outputs"] = outputs

	doc.MergeMetadata(merged)
}

// recordSkipped persists a terminal skipped record for a step with no slug.
func (r *Runner) recordSkipped(ctx context.Context, j *job.Job, stepIndex int) (*StepResult, error) {
	if prior, err := r.executions.FindByJobAndStep(ctx, j.ID, stepIndex); err == nil {
		return &StepResult{ExecutionID: prior.ID, Skipped: true}, nil
	} else if !errors.Is(err, execution.ErrRecordNotFound) {
		return nil, err
	}

	rec := execution.NewSkipped(j.ID, stepIndex)
	if err := r.executions.Create(ctx, rec); err != nil {
		return nil, err
	}
	return &StepResult{ExecutionID: rec.ID, Skipped: true}, nil
}

// failBeforeStart records a failed execution for a step whose preconditions
// rejected it before any handler invocation.
func (r *Runner) failBeforeStart(ctx context.Context, j *job.Job, doc *document.Document, step pipeline.Step, stepIndex int, entry *processor.Entry, fe *fault.Error) (*StepResult, error) {
	var processorID *string
	if entry != nil {
		processorID = &entry.ID
	}
	rec := execution.New(j.ID, step.Slug, processorID, stepIndex, nil, step.Config)
	if err := r.executions.Create(ctx, rec); err != nil {
		return nil, err
	}
	return nil, r.failExecution(ctx, j, doc, step, rec, fe)
}

// failExecution persists the failed record, emits its events, and returns
// the classified fault for the engine's retry decision.
func (r *Runner) failExecution(ctx context.Context, j *job.Job, doc *document.Document, step pipeline.Step, rec *execution.Record, fe *fault.Error) error {
	if err := rec.Fail(fe.Error()); err != nil {
		r.logger.Error(ctx, "failed to mark execution failed", "execution_id", rec.ID, "error", err)
	}
	if err := r.executions.Update(ctx, rec); err != nil {
		r.logger.Error(ctx, "failed to persist failed execution", "execution_id", rec.ID, "error", err)
	}

	if doc != nil {
		doc.AppendHistory("processor.failed", fmt.Sprintf("%s: %s", step.Slug, fe.Message()))
		if err := r.documents.Update(ctx, doc); err != nil {
			r.logger.Warn(ctx, "failed to append document history", "error", err)
		}
	}
	if err := r.audits.Create(ctx, audit.NewEntry(audit.TypeExecution, rec.ID, "execution.failed",
		nil, map[string]any{"error": fe.Error(), "class": string(fe.Class)})); err != nil {
		r.logger.Warn(ctx, "failed to record audit entry", "error", err)
	}
	if r.metrics != nil {
		r.metrics.IncStepFailure(step.Category, string(fe.Class))
	}

	r.publishExecutionEvent(ctx, j, rec, event.TypeExecutionFailed, map[string]any{
		"error": fe.Error(),
		"class": string(fe.Class),
	})
	return fe
}

func (r *Runner) publishExecutionEvent(ctx context.Context, j *job.Job, rec *execution.Record, typ event.Type, payload map[string]any) {
	tenantID := ""
	if scope, err := tenantctx.FromContext(ctx); err == nil {
		tenantID = scope.TenantID
	}
	e := event.New(typ, tenantID)
	e.JobID = j.ID
	e.CampaignID = j.CampaignID
	e.DocumentID = j.DocumentID
	e.ExecutionID = rec.ID
	if payload == nil {
		payload = map[string]any{}
	}
	payload["processor_slug"] = rec.ProcessorSlug
	payload["step_index"] = rec.StepIndex
	e.Payload = payload
	r.bus.Publish(e)
}
