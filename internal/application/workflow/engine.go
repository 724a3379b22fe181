// Package workflow drives durable, resumable pipeline execution. The engine
// persists workflow state at every step boundary so a crashed worker resumes
// where it left off, suspends on callback-awaiting steps, and delegates
// terminal job handling to the job lifecycle.
package workflow

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/application/progress"
	"github.com/ahrav/docflow/internal/domain/execution"
	"github.com/ahrav/docflow/internal/domain/fault"
	"github.com/ahrav/docflow/internal/domain/job"
	wf "github.com/ahrav/docflow/internal/domain/workflow"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
)

// Common errors
var (
	// ErrNotWaiting is returned when a signal targets a workflow that is not
	// suspended on that signal and cannot buffer it.
	ErrNotWaiting = errors.New("workflow not waiting for signal")
)

// JobLifecycle receives terminal workflow outcomes. The job manager
// implements it, owning the job and document state cascade plus whole-job
// retry decisions.
type JobLifecycle interface {
	HandleCompleted(ctx context.Context, jobID string) error
	HandleFailed(ctx context.Context, jobID string, cause *fault.Error) error
	HandleCancelled(ctx context.Context, jobID string) error
}

// SignalLedger reports callback outcomes recorded while no engine goroutine
// was listening, so suspended workflows can self-deliver their signal on
// resume. Implemented by the callback service against the central mappings.
type SignalLedger interface {
	PendingSignal(ctx context.Context, signalName string) (map[string]any, bool, error)
}

// EngineMetrics records workflow-level observations.
type EngineMetrics interface {
	IncWorkflowStarted(tenant string)
	IncWorkflowFinished(tenant, state string)
	ObserveWorkflowDuration(tenant string, d time.Duration)
}

// Engine orchestrates pipeline workflows. One goroutine drives each running
// workflow; suspended workflows hold no goroutine and resume on signal
// delivery or process restart.
type Engine struct {
	workflows wf.Repository
	jobs      job.Repository
	runner    *Runner
	tracker   *progress.Tracker
	hub       *SignalHub
	metrics   EngineMetrics

	lifecycle JobLifecycle
	ledger    SignalLedger

	logger *logger.Logger
	tracer trace.Tracer
}

// NewEngine wires the workflow engine. The job lifecycle is attached
// afterward via SetLifecycle to break the construction cycle with the job
// manager.
func NewEngine(
	workflows wf.Repository,
	jobs job.Repository,
	runner *Runner,
	tracker *progress.Tracker,
	hub *SignalHub,
	metrics EngineMetrics,
	log *logger.Logger,
	tracer trace.Tracer,
) *Engine {
	return &Engine{
		workflows: workflows,
		jobs:      jobs,
		runner:    runner,
		tracker:   tracker,
		hub:       hub,
		metrics:   metrics,
		logger:    log.With("component", "workflow_engine"),
		tracer:    tracer,
	}
}

// SetLifecycle attaches the terminal-outcome receiver.
func (e *Engine) SetLifecycle(l JobLifecycle) { e.lifecycle = l }

// SetSignalLedger attaches the recorded-callback lookup used on resume.
func (e *Engine) SetSignalLedger(l SignalLedger) { e.ledger = l }

// Launch creates the durable workflow for a job and starts driving it on a
// detached goroutine bound to the caller's tenant scope.
func (e *Engine) Launch(ctx context.Context, j *job.Job) (*wf.Workflow, error) {
	scope, err := tenantctx.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "engine.Launch", trace.WithAttributes(
		attribute.String("job_id", j.ID),
		attribute.Int("pipeline_len", j.Pipeline.Len()),
	))
	defer span.End()

	w := wf.New(j.ID)
	w.CurrentStep = j.CurrentProcessorIndex
	if err := e.workflows.Create(ctx, w); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error creating workflow")
		return nil, err
	}

	if err := j.Start(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := e.jobs.Update(ctx, j); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error starting job")
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.IncWorkflowStarted(scope.Slug)
	}

	go e.driveDetached(scope, w.ID)
	return w, nil
}

// Signal delivers a named signal to a workflow. A workflow suspended on the
// signal resumes immediately; a still-running workflow (the suspension write
// may race the callback) buffers the signal for the engine to consume at the
// suspend boundary. The context must carry the workflow's tenant scope.
func (e *Engine) Signal(ctx context.Context, workflowID, signalName string, payload map[string]any) error {
	scope, err := tenantctx.FromContext(ctx)
	if err != nil {
		return err
	}

	ctx, span := e.tracer.Start(ctx, "engine.Signal", trace.WithAttributes(
		attribute.String("workflow_id", workflowID),
		attribute.String("signal", signalName),
	))
	defer span.End()

	w, err := e.workflows.FindByID(ctx, workflowID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error loading workflow")
		return err
	}

	switch {
	case w.State == wf.StateSuspended && w.WaitingSignal == signalName:
		span.AddEvent("resuming suspended workflow")
		go e.resumeDetached(scope, w.ID, Signal{Name: signalName, Payload: payload})
		return nil
	case w.State == wf.StateRunning:
		span.AddEvent("buffering early signal")
		e.hub.Buffer(w.ID, Signal{Name: signalName, Payload: payload})
		// The drive loop may have persisted the suspension and checked the
		// hub before the buffer write landed. Reload and reclaim the signal
		// if so; Take makes the handoff exactly-once.
		w, err = e.workflows.FindByID(ctx, workflowID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if w.State == wf.StateSuspended && w.WaitingSignal == signalName {
			if sig, ok := e.hub.Take(w.ID, signalName); ok {
				span.AddEvent("delivering reclaimed signal")
				go e.resumeDetached(scope, w.ID, sig)
			}
		}
		return nil
	case w.State.IsTerminal():
		// Late or duplicate delivery against a finished workflow.
		return nil
	default:
		return ErrNotWaiting
	}
}

// Cancel requests cooperative cancellation of a job's workflow. Running
// workflows observe the flag at the next step boundary; suspended workflows
// are cancelled immediately.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	ctx, span := e.tracer.Start(ctx, "engine.Cancel", trace.WithAttributes(
		attribute.String("job_id", jobID),
	))
	defer span.End()

	w, err := e.workflows.FindByJobID(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error loading workflow")
		return err
	}
	if w.State.IsTerminal() {
		return nil
	}

	w.RequestCancel()
	if w.State == wf.StateSuspended {
		e.hub.Drop(w.ID, w.WaitingSignal)
		// The awaited execution record must not outlive the workflow.
		if rec, err := e.runner.executions.FindByJobAndStep(ctx, w.JobID, w.CurrentStep); err == nil {
			if err := e.runner.FailAwaited(ctx, rec.ID, "cancelled while awaiting callback"); err != nil {
				span.RecordError(err)
				return err
			}
		} else if !errors.Is(err, execution.ErrRecordNotFound) {
			span.RecordError(err)
			return err
		}
		w.Cancel()
		if err := e.workflows.Update(ctx, w); err != nil {
			span.RecordError(err)
			return err
		}
		return e.finishCancelled(ctx, w)
	}
	return e.workflows.Update(ctx, w)
}

// Resume restarts drive loops for every non-terminal workflow in the bound
// tenant scope, called once per tenant at boot. Running workflows pick up at
// their persisted step; suspended workflows stay parked awaiting signals.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	scope, err := tenantctx.FromContext(ctx)
	if err != nil {
		return 0, err
	}

	ctx, span := e.tracer.Start(ctx, "engine.Resume", trace.WithAttributes(
		attribute.String("tenant_slug", scope.Slug),
	))
	defer span.End()

	ws, err := e.workflows.FindResumable(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error listing resumable workflows")
		return 0, err
	}

	resumed := 0
	redelivered := 0
	for _, w := range ws {
		if w.State == wf.StateRunning {
			go e.driveDetached(scope, w.ID)
			resumed++
			continue
		}
		if w.State != wf.StateSuspended || e.ledger == nil {
			continue
		}
		// The callback may have been recorded while no engine was listening;
		// the mapping is the durable copy of the lost signal.
		payload, ok, err := e.ledger.PendingSignal(ctx, w.WaitingSignal)
		if err != nil {
			e.logger.Warn(ctx, "failed to check recorded callback",
				"workflow_id", w.ID, "signal", w.WaitingSignal, "error", err)
			continue
		}
		if ok {
			go e.resumeDetached(scope, w.ID, Signal{Name: w.WaitingSignal, Payload: payload})
			redelivered++
		}
	}
	e.logger.Info(ctx, "resumed workflows after restart",
		"tenant_slug", scope.Slug, "running", resumed, "redelivered", redelivered,
		"suspended", len(ws)-resumed-redelivered)
	span.SetAttributes(attribute.Int("resumed", resumed))
	return resumed, nil
}

// driveDetached runs the drive loop on a fresh context carrying only the
// tenant scope, so HTTP request cancellation never kills an in-flight
// pipeline.
func (e *Engine) driveDetached(scope *tenantctx.Scope, workflowID string) {
	ctx := tenantctx.With(context.Background(), scope)
	if err := e.drive(ctx, workflowID); err != nil {
		e.logger.Error(ctx, "workflow drive loop failed",
			"workflow_id", workflowID, "error", err)
	}
}

func (e *Engine) resumeDetached(scope *tenantctx.Scope, workflowID string, sig Signal) {
	ctx := tenantctx.With(context.Background(), scope)
	if err := e.applySignal(ctx, workflowID, sig); err != nil {
		e.logger.Error(ctx, "workflow signal resume failed",
			"workflow_id", workflowID, "signal", sig.Name, "error", err)
		return
	}
	if err := e.drive(ctx, workflowID); err != nil {
		e.logger.Error(ctx, "workflow drive loop failed after resume",
			"workflow_id", workflowID, "error", err)
	}
}

// drive executes pipeline steps until the workflow completes, fails,
// suspends, or observes a cancel request. State is reloaded and persisted at
// every boundary; that is the durability contract.
func (e *Engine) drive(ctx context.Context, workflowID string) error {
	for {
		w, err := e.workflows.FindByID(ctx, workflowID)
		if err != nil {
			return err
		}
		if w.State.IsTerminal() || w.State == wf.StateSuspended {
			return nil
		}

		j, err := e.jobs.FindByID(ctx, w.JobID)
		if err != nil {
			return err
		}

		// Cancellation point: before each step.
		if w.CancelRequested {
			w.Cancel()
			if err := e.workflows.Update(ctx, w); err != nil {
				return err
			}
			return e.finishCancelled(ctx, w)
		}

		// Pipeline boundary: every step done, including the empty pipeline.
		if w.CurrentStep >= j.Pipeline.Len() {
			w.Complete()
			if err := e.workflows.Update(ctx, w); err != nil {
				return err
			}
			return e.finishCompleted(ctx, w)
		}

		step := j.Pipeline.Processors[w.CurrentStep]
		res, err := e.runner.Execute(ctx, j, w, step, w.CurrentStep)
		if err != nil {
			fe := fault.Classify(err)
			w.Fail(fe.Error())
			if uerr := e.workflows.Update(ctx, w); uerr != nil {
				return uerr
			}
			return e.finishFailed(ctx, w, fe)
		}

		if res.AwaitingCallback {
			w.Suspend(res.TransactionID)
			if err := e.workflows.Update(ctx, w); err != nil {
				return err
			}
			// The callback may have landed before the suspension persisted.
			if sig, ok := e.hub.Take(w.ID, res.TransactionID); ok {
				if err := e.applySignal(ctx, w.ID, sig); err != nil {
					return err
				}
				continue
			}
			e.logger.Info(ctx, "workflow suspended awaiting callback",
				"workflow_id", w.ID, "job_id", j.ID, "signal", res.TransactionID)
			return nil
		}

		if !res.Skipped {
			w.RecordOutput(step.Slug, res.Output)
		}
		w.AdvanceTo(w.CurrentStep + 1)
		if err := e.workflows.Update(ctx, w); err != nil {
			return err
		}

		if err := j.Advance(); err != nil {
			return err
		}
		if err := e.jobs.Update(ctx, j); err != nil {
			return err
		}
		if err := e.tracker.StageDone(ctx, j, step.Slug); err != nil {
			e.logger.Warn(ctx, "failed to update progress", "job_id", j.ID, "error", err)
		}
	}
}

// applySignal finishes the awaited execution with the callback payload and
// moves the workflow past the suspended step. Declined and expired outcomes
// fail the workflow with a non-retryable fault.
func (e *Engine) applySignal(ctx context.Context, workflowID string, sig Signal) error {
	w, err := e.workflows.FindByID(ctx, workflowID)
	if err != nil {
		return err
	}
	if w.State != wf.StateSuspended || w.WaitingSignal != sig.Name {
		return ErrNotWaiting
	}

	j, err := e.jobs.FindByID(ctx, w.JobID)
	if err != nil {
		return err
	}
	step := j.Pipeline.Processors[w.CurrentStep]

	rec, err := e.runner.executions.FindByJobAndStep(ctx, j.ID, w.CurrentStep)
	if err != nil {
		return err
	}

	if declined(sig.Payload) {
		reason := "callback declined for transaction " + sig.Name
		if err := e.runner.FailAwaited(ctx, rec.ID, reason); err != nil {
			return err
		}
		fe := fault.Input("%s", reason)
		w.ResumeFromSignal()
		w.Fail(fe.Error())
		if err := e.workflows.Update(ctx, w); err != nil {
			return err
		}
		return e.finishFailed(ctx, w, fe)
	}

	output, err := e.runner.CompleteAwaited(ctx, rec.ID, sig.Payload)
	if err != nil {
		return err
	}

	w.ResumeFromSignal()
	w.RecordOutput(step.Slug, output)
	w.AdvanceTo(w.CurrentStep + 1)
	if err := e.workflows.Update(ctx, w); err != nil {
		return err
	}

	if err := j.Advance(); err != nil {
		return err
	}
	if err := e.jobs.Update(ctx, j); err != nil {
		return err
	}
	if err := e.tracker.StageDone(ctx, j, step.Slug); err != nil {
		e.logger.Warn(ctx, "failed to update progress", "job_id", j.ID, "error", err)
	}
	return nil
}

// declined reports whether a callback payload carries a terminal-negative
// status.
func declined(payload map[string]any) bool {
	status, _ := payload["status"].(string)
	return status == "declined" || status == "expired"
}

func (e *Engine) finishCompleted(ctx context.Context, w *wf.Workflow) error {
	e.recordFinish(ctx, w)
	if e.lifecycle == nil {
		return nil
	}
	return e.lifecycle.HandleCompleted(ctx, w.JobID)
}

func (e *Engine) finishFailed(ctx context.Context, w *wf.Workflow, fe *fault.Error) error {
	e.recordFinish(ctx, w)
	if e.lifecycle == nil {
		return nil
	}
	return e.lifecycle.HandleFailed(ctx, w.JobID, fe)
}

func (e *Engine) finishCancelled(ctx context.Context, w *wf.Workflow) error {
	e.recordFinish(ctx, w)
	if e.lifecycle == nil {
		return nil
	}
	return e.lifecycle.HandleCancelled(ctx, w.JobID)
}

func (e *Engine) recordFinish(ctx context.Context, w *wf.Workflow) {
	if e.metrics == nil {
		return
	}
	scope, err := tenantctx.FromContext(ctx)
	if err != nil {
		return
	}
	e.metrics.IncWorkflowFinished(scope.Slug, string(w.State))
	if w.UpdatedAt != nil {
		e.metrics.ObserveWorkflowDuration(scope.Slug, w.UpdatedAt.Sub(w.CreatedAt))
	}
}
