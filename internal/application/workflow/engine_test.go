package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/docflow/internal/application/event"
	"github.com/ahrav/docflow/internal/application/progress"
	"github.com/ahrav/docflow/internal/application/registry"
	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/execution"
	"github.com/ahrav/docflow/internal/domain/fault"
	"github.com/ahrav/docflow/internal/domain/job"
	"github.com/ahrav/docflow/internal/domain/pipeline"
	"github.com/ahrav/docflow/internal/domain/processor"
	wf "github.com/ahrav/docflow/internal/domain/workflow"
	"github.com/ahrav/docflow/internal/infra/objectstore"
	"github.com/ahrav/docflow/internal/infra/storage/memory"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
	"github.com/ahrav/docflow/pkg/common/timeutil"
)

type stubHandler struct {
	mu     sync.Mutex
	calls  int
	reject bool
	deps   []string
	schema []byte
	fn     func(call *processor.CallContext) (*processor.Result, error)
}

func (h *stubHandler) CanProcess(*document.Document) bool { return !h.reject }

func (h *stubHandler) Process(_ context.Context, _ *document.Document, _ map[string]any, call *processor.CallContext) (*processor.Result, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return h.fn(call)
}

func (h *stubHandler) DependencySlugs() []string { return h.deps }
func (h *stubHandler) OutputSchema() []byte      { return h.schema }

func (h *stubHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func echoHandler(output map[string]any) *stubHandler {
	return &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		return &processor.Result{Success: true, Output: output}, nil
	}}
}

type stubRegistrar struct {
	mu           sync.Mutex
	transactions []string
}

func (s *stubRegistrar) Register(_ context.Context, transactionID, _, _, _, _ string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, transactionID)
	return nil
}

type failedOutcome struct {
	jobID string
	cause *fault.Error
}

type lifecycleRecorder struct {
	mu        sync.Mutex
	completed []string
	cancelled []string
	failed    []failedOutcome
}

func (l *lifecycleRecorder) HandleCompleted(_ context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, jobID)
	return nil
}

func (l *lifecycleRecorder) HandleFailed(_ context.Context, jobID string, cause *fault.Error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, failedOutcome{jobID: jobID, cause: cause})
	return nil
}

func (l *lifecycleRecorder) HandleCancelled(_ context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelled = append(l.cancelled, jobID)
	return nil
}

func (l *lifecycleRecorder) completedJobs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.completed...)
}

func (l *lifecycleRecorder) failedJobs() []failedOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]failedOutcome(nil), l.failed...)
}

type collectPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *collectPublisher) Publish(e *event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

type staticResolver struct{ values map[string]string }

func (r staticResolver) Resolve(_ context.Context, key string, _, _ *string) (string, error) {
	return r.values[key], nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveStepDuration(string, time.Duration)     {}
func (noopMetrics) IncStepRetry(string)                           {}
func (noopMetrics) IncStepFailure(string, string)                 {}
func (noopMetrics) IncWorkflowStarted(string)                     {}
func (noopMetrics) IncWorkflowFinished(string, string)            {}
func (noopMetrics) ObserveWorkflowDuration(string, time.Duration) {}

type testEnv struct {
	ctx context.Context

	jobs       *memory.JobStore
	workflows  *memory.WorkflowStore
	executions *memory.ExecutionStore
	documents  *memory.DocumentStore
	processors *memory.ProcessorStore

	reg       *registry.Registry
	runner    *Runner
	engine    *Engine
	registrar *stubRegistrar
	lifecycle *lifecycleRecorder
	tracker   *progress.Tracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.Noop()
	tracer := noop.NewTracerProvider().Tracer("test")
	scope := &tenantctx.Scope{TenantID: "11111111-1111-1111-1111-111111111111", Slug: "acme"}
	ctx := tenantctx.With(context.Background(), scope)

	jobs := memory.NewJobStore()
	workflows := memory.NewWorkflowStore()
	executions := memory.NewExecutionStore()
	documents := memory.NewDocumentStore()
	processors := memory.NewProcessorStore()
	progressStore := memory.NewProgressStore()

	bus := &collectPublisher{}
	reg := registry.New(processors, tracer)
	registrar := &stubRegistrar{}
	tracker := progress.NewTracker(progressStore, bus, log, tracer)

	runner := NewRunner(
		documents, executions, processors, reg,
		staticResolver{values: map[string]string{}},
		objectstore.NewMemory(), registrar,
		memory.NewUsageStore(), memory.NewAuditStore(), bus,
		noopMetrics{}, log, tracer,
	).WithClock(timeutil.NewMock(time.Now()))

	lifecycle := &lifecycleRecorder{}
	engine := NewEngine(workflows, jobs, runner, tracker, NewSignalHub(), noopMetrics{}, log, tracer)
	engine.SetLifecycle(lifecycle)

	return &testEnv{
		ctx:        ctx,
		jobs:       jobs,
		workflows:  workflows,
		executions: executions,
		documents:  documents,
		processors: processors,
		reg:        reg,
		runner:     runner,
		engine:     engine,
		registrar:  registrar,
		lifecycle:  lifecycle,
		tracker:    tracker,
	}
}

func (e *testEnv) seedJob(t *testing.T, steps ...pipeline.Step) (*job.Job, *wf.Workflow) {
	t.Helper()

	doc := document.New("22222222-2222-2222-2222-222222222222", "file.pdf",
		"application/pdf", "documents/file.pdf", "default", []byte("%PDF-1.4 test"))
	require.NoError(t, e.documents.Create(e.ctx, doc))

	j := job.New(doc.CampaignID, doc.ID, pipeline.Pipeline{Processors: steps}, "documents", 3)
	require.NoError(t, e.jobs.Create(e.ctx, j))
	require.NoError(t, j.Start())
	require.NoError(t, e.jobs.Update(e.ctx, j))

	_, err := e.tracker.Begin(e.ctx, j)
	require.NoError(t, err)

	w := wf.New(j.ID)
	require.NoError(t, e.workflows.Create(e.ctx, w))
	return j, w
}

func TestDriveCompletesPipeline(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ocr", echoHandler(map[string]any{"text": "hello"}))
	env.reg.Register("classify", echoHandler(map[string]any{"category": "invoice"}))

	j, w := env.seedJob(t,
		pipeline.Step{Slug: "ocr", Category: "ocr"},
		pipeline.Step{Slug: "classify", Category: "classification"},
	)

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateCompleted, got.State)
	assert.Equal(t, 2, got.CurrentStep)
	assert.Equal(t, "hello", got.PreviousOutputs["ocr"]["text"])

	j2, err := env.jobs.FindByID(env.ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, j2.CurrentProcessorIndex)

	assert.Equal(t, []string{j.ID}, env.lifecycle.completedJobs())

	rec, err := env.executions.FindByJobAndStep(env.ctx, j.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, execution.StateCompleted, rec.State)
}

func TestDriveEmptyPipelineCompletesImmediately(t *testing.T) {
	env := newTestEnv(t)
	j, w := env.seedJob(t)

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateCompleted, got.State)
	assert.Equal(t, []string{j.ID}, env.lifecycle.completedJobs())
}

func TestDriveSkipsEmptySlugStep(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ocr", echoHandler(map[string]any{"text": "x"}))

	j, w := env.seedJob(t,
		pipeline.Step{Slug: ""},
		pipeline.Step{Slug: "ocr", Category: "ocr"},
	)

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateCompleted, got.State)

	rec, err := env.executions.FindByJobAndStep(env.ctx, j.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, execution.StateSkipped, rec.State)
	// Skipped steps leave no output behind.
	_, ok := got.PreviousOutputs[""]
	assert.False(t, ok)
}

func TestDriveFailsNonRetryable(t *testing.T) {
	env := newTestEnv(t)
	h := &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		return &processor.Result{Success: false, Error: "invalid file: corrupt header"}, nil
	}}
	env.reg.Register("ocr", h)

	j, w := env.seedJob(t, pipeline.Step{Slug: "ocr", Category: "ocr"})

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateFailed, got.State)

	// Non-retryable failures invoke the handler exactly once.
	assert.Equal(t, 1, h.callCount())

	failed := env.lifecycle.failedJobs()
	require.Len(t, failed, 1)
	assert.Equal(t, j.ID, failed[0].jobID)
	assert.False(t, failed[0].cause.Retryable())
}

func TestDriveRetriesTransientThenSucceeds(t *testing.T) {
	env := newTestEnv(t)
	var mu sync.Mutex
	attempts := 0
	h := &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return &processor.Result{Success: true, Output: map[string]any{"text": "recovered"}}, nil
	}}
	env.reg.Register("ocr", h)

	j, w := env.seedJob(t, pipeline.Step{Slug: "ocr", Category: "ocr"})

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateCompleted, got.State)
	assert.Equal(t, 3, h.callCount())

	// Step retries never consume whole-job attempts.
	j2, err := env.jobs.FindByID(env.ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, j2.Attempts)
}

func TestDriveSuspendsAndResumesOnCallback(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ekyc", &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		return &processor.Result{
			AwaitingCallback: true,
			TransactionID:    "txn_test_1",
			Output:           map[string]any{"transaction_id": "txn_test_1"},
		}, nil
	}})
	env.reg.Register("sign", echoHandler(map[string]any{"envelope": "sealed"}))

	j, w := env.seedJob(t,
		pipeline.Step{Slug: "ekyc", Category: "ekyc"},
		pipeline.Step{Slug: "sign", Category: "signing"},
	)

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateSuspended, got.State)
	assert.Equal(t, "txn_test_1", got.WaitingSignal)
	assert.Equal(t, []string{"txn_test_1"}, env.registrar.transactions)

	// The awaited execution record stays running until the callback lands.
	rec, err := env.executions.FindByJobAndStep(env.ctx, j.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, execution.StateRunning, rec.State)

	err = env.engine.Signal(env.ctx, w.ID, "txn_test_1", map[string]any{"status": "auto_approved"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := env.workflows.FindByID(env.ctx, w.ID)
		return err == nil && got.State == wf.StateCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err = env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "auto_approved", got.PreviousOutputs["ekyc"]["status"])
	assert.Equal(t, "sealed", got.PreviousOutputs["sign"]["envelope"])
	assert.Equal(t, []string{j.ID}, env.lifecycle.completedJobs())
}

func TestApplySignalDeclinedFailsWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ekyc", &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		return &processor.Result{AwaitingCallback: true, TransactionID: "txn_declined"}, nil
	}})

	j, w := env.seedJob(t, pipeline.Step{Slug: "ekyc", Category: "ekyc"})
	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	err := env.engine.applySignal(env.ctx, w.ID, Signal{
		Name:    "txn_declined",
		Payload: map[string]any{"status": "declined"},
	})
	require.NoError(t, err)

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateFailed, got.State)

	rec, err := env.executions.FindByJobAndStep(env.ctx, j.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, execution.StateFailed, rec.State)

	failed := env.lifecycle.failedJobs()
	require.Len(t, failed, 1)
	assert.Equal(t, fault.ClassInput, failed[0].cause.Class)
}

func TestEarlySignalBuffersUntilSuspension(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ekyc", &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		return &processor.Result{AwaitingCallback: true, TransactionID: "txn_early"}, nil
	}})

	_, w := env.seedJob(t, pipeline.Step{Slug: "ekyc", Category: "ekyc"})

	// The callback lands while the workflow is still marked running; the
	// engine buffers it and consumes it at the suspend boundary.
	err := env.engine.Signal(env.ctx, w.ID, "txn_early", map[string]any{"status": "approved"})
	require.NoError(t, err)

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateCompleted, got.State)
	assert.Equal(t, "approved", got.PreviousOutputs["ekyc"]["status"])
}

func TestDriveMissingDependencyFails(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("sign", &stubHandler{
		deps: []string{"ekyc"},
		fn: func(*processor.CallContext) (*processor.Result, error) {
			return &processor.Result{Success: true}, nil
		},
	})

	_, w := env.seedJob(t, pipeline.Step{Slug: "sign", Category: "signing"})

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateFailed, got.State)

	failed := env.lifecycle.failedJobs()
	require.Len(t, failed, 1)
	assert.Equal(t, fault.ClassDependency, failed[0].cause.Class)
	assert.Contains(t, failed[0].cause.Message(), `"ekyc"`)
}

func TestDriveOutputSchemaViolation(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ocr", &stubHandler{
		schema: []byte(`{"type":"object","required":["text"]}`),
		fn: func(*processor.CallContext) (*processor.Result, error) {
			return &processor.Result{Success: true, Output: map[string]any{}}, nil
		},
	})

	_, w := env.seedJob(t, pipeline.Step{Slug: "ocr", Category: "ocr"})

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	failed := env.lifecycle.failedJobs()
	require.Len(t, failed, 1)
	assert.Equal(t, fault.ClassConfiguration, failed[0].cause.Class)
	assert.Contains(t, failed[0].cause.Message(), "schema")
}

func TestDriveUnsupportedMimeType(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ocr", &stubHandler{
		reject: true,
		fn: func(*processor.CallContext) (*processor.Result, error) {
			return &processor.Result{Success: true}, nil
		},
	})

	_, w := env.seedJob(t, pipeline.Step{Slug: "ocr", Category: "ocr"})

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	failed := env.lifecycle.failedJobs()
	require.Len(t, failed, 1)
	assert.Equal(t, fault.ClassInput, failed[0].cause.Class)
	assert.Contains(t, failed[0].cause.Message(), "unsupported")
}

func TestCancelSuspendedWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ekyc", &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		return &processor.Result{AwaitingCallback: true, TransactionID: "txn_cancel"}, nil
	}})

	j, w := env.seedJob(t, pipeline.Step{Slug: "ekyc", Category: "ekyc"})
	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	require.NoError(t, env.engine.Cancel(env.ctx, j.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateCancelled, got.State)
	assert.Equal(t, []string{j.ID}, env.lifecycle.cancelled)

	// The awaited execution record reaches a terminal state with the
	// workflow instead of staying running forever.
	rec, err := env.executions.FindByJobAndStep(env.ctx, j.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, execution.StateFailed, rec.State)
}

func TestCancelRequestObservedAtStepBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ocr", echoHandler(map[string]any{"text": "x"}))

	j, w := env.seedJob(t, pipeline.Step{Slug: "ocr", Category: "ocr"})

	w.RequestCancel()
	require.NoError(t, env.workflows.Update(env.ctx, w))

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateCancelled, got.State)
	assert.Equal(t, []string{j.ID}, env.lifecycle.cancelled)
}

func TestReplayCompletedStepSkipsHandler(t *testing.T) {
	env := newTestEnv(t)
	h := echoHandler(map[string]any{"text": "fresh"})
	env.reg.Register("ocr", h)

	j, w := env.seedJob(t, pipeline.Step{Slug: "ocr", Category: "ocr"})

	// A completed record from a previous attempt short-circuits re-execution.
	rec := execution.New(j.ID, "ocr", nil, 0, nil, nil)
	require.NoError(t, rec.Start())
	require.NoError(t, rec.Complete(map[string]any{"text": "replayed"}, 0, 0))
	require.NoError(t, env.executions.Create(env.ctx, rec))

	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateCompleted, got.State)
	assert.Equal(t, "replayed", got.PreviousOutputs["ocr"]["text"])
	assert.Equal(t, 0, h.callCount())
}

// staleWorkflows serves one stale snapshot for the first FindByID, then
// falls through to the real store.
type staleWorkflows struct {
	wf.Repository
	mu    sync.Mutex
	stale *wf.Workflow
}

func (s *staleWorkflows) FindByID(ctx context.Context, id string) (*wf.Workflow, error) {
	s.mu.Lock()
	w := s.stale
	s.stale = nil
	s.mu.Unlock()
	if w != nil && w.ID == id {
		return w, nil
	}
	return s.Repository.FindByID(ctx, id)
}

func TestSignalReclaimsBufferAfterSuspensionRace(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ekyc", &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		return &processor.Result{AwaitingCallback: true, TransactionID: "txn_race"}, nil
	}})

	j, w := env.seedJob(t, pipeline.Step{Slug: "ekyc", Category: "ekyc"})
	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	suspended, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, wf.StateSuspended, suspended.State)

	// The signal reads the workflow as still running while the drive loop
	// has already persisted the suspension and drained the hub. Without the
	// post-buffer recheck the signal would sit in the hub forever.
	stale := *suspended
	stale.State = wf.StateRunning
	stale.WaitingSignal = ""
	repo := &staleWorkflows{Repository: env.workflows, stale: &stale}

	racer := NewEngine(repo, env.jobs, env.runner, env.tracker, env.engine.hub,
		noopMetrics{}, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	racer.SetLifecycle(env.lifecycle)

	err = racer.Signal(env.ctx, w.ID, "txn_race", map[string]any{"status": "auto_approved"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := env.workflows.FindByID(env.ctx, w.ID)
		return err == nil && got.State == wf.StateCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{j.ID}, env.lifecycle.completedJobs())
}

type stubLedger struct{ payloads map[string]map[string]any }

func (s stubLedger) PendingSignal(_ context.Context, name string) (map[string]any, bool, error) {
	p, ok := s.payloads[name]
	return p, ok, nil
}

func TestResumeRedeliversRecordedCallback(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ekyc", &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		return &processor.Result{AwaitingCallback: true, TransactionID: "txn_boot"}, nil
	}})

	j, w := env.seedJob(t, pipeline.Step{Slug: "ekyc", Category: "ekyc"})
	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	// The callback landed while the previous process was down; the mapping
	// holds its outcome and the hub holds nothing.
	env.engine.SetSignalLedger(stubLedger{payloads: map[string]map[string]any{
		"txn_boot": {"status": "auto_approved", "transaction_id": "txn_boot"},
	}})

	_, err := env.engine.Resume(env.ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := env.workflows.FindByID(env.ctx, w.ID)
		return err == nil && got.State == wf.StateCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{j.ID}, env.lifecycle.completedJobs())
}

func TestResumeParksSuspendedWithoutRecordedCallback(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register("ekyc", &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		return &processor.Result{AwaitingCallback: true, TransactionID: "txn_parked"}, nil
	}})

	_, w := env.seedJob(t, pipeline.Step{Slug: "ekyc", Category: "ekyc"})
	require.NoError(t, env.engine.drive(env.ctx, w.ID))
	env.engine.SetSignalLedger(stubLedger{})

	resumed, err := env.engine.Resume(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, resumed)

	got, err := env.workflows.FindByID(env.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.StateSuspended, got.State)
}

type retryCountingMetrics struct {
	noopMetrics
	mu      sync.Mutex
	retries []string
}

func (m *retryCountingMetrics) IncStepRetry(category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries = append(m.retries, category)
}

func TestRetryMetricsUseCatalogCategory(t *testing.T) {
	env := newTestEnv(t)
	metrics := &retryCountingMetrics{}
	env.runner.metrics = metrics

	var mu sync.Mutex
	attempts := 0
	env.reg.Register("custom-ocr", &stubHandler{fn: func(*processor.CallContext) (*processor.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 2 {
			return nil, errors.New("connection reset by peer")
		}
		return &processor.Result{Success: true, Output: map[string]any{"text": "ok"}}, nil
	}})

	entry := processor.NewEntry("custom-ocr", "Custom OCR", "ocr", "handlers.ocr")
	require.NoError(t, env.processors.Create(env.ctx, entry))

	// The step carries no category of its own; the catalog entry's must
	// flow into the retry counter.
	_, w := env.seedJob(t, pipeline.Step{Slug: "custom-ocr"})
	require.NoError(t, env.engine.drive(env.ctx, w.ID))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []string{"ocr"}, metrics.retries)
}

func TestSignalTerminalWorkflowIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	_, w := env.seedJob(t)

	require.NoError(t, env.engine.drive(env.ctx, w.ID))
	require.NoError(t, env.engine.Signal(env.ctx, w.ID, "txn_late", map[string]any{"status": "approved"}))
}
