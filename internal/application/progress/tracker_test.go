package progress

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/docflow/internal/application/event"
	"github.com/ahrav/docflow/internal/domain/job"
	"github.com/ahrav/docflow/internal/domain/pipeline"
	"github.com/ahrav/docflow/internal/infra/storage/memory"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *capturePublisher) Publish(e *event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *capturePublisher) all() []*event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*event.Event(nil), p.events...)
}

func newTestTracker(t *testing.T) (*Tracker, *memory.ProgressStore, *capturePublisher, context.Context) {
	t.Helper()

	store := memory.NewProgressStore()
	bus := &capturePublisher{}
	tracker := NewTracker(store, bus, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	ctx := tenantctx.With(context.Background(),
		&tenantctx.Scope{TenantID: "11111111-1111-1111-1111-111111111111", Slug: "acme"})
	return tracker, store, bus, ctx
}

func twoStepJob() *job.Job {
	return job.New("camp-1", "doc-1", pipeline.Pipeline{Processors: []pipeline.Step{
		{Slug: "ocr"},
		{Slug: "classify"},
	}}, "documents", 3)
}

func TestBeginCreatesProgressRow(t *testing.T) {
	tracker, store, _, ctx := newTestTracker(t)
	j := twoStepJob()

	p, err := tracker.Begin(ctx, j)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalStages)
	assert.Zero(t, p.CompletedStages)

	got, err := store.FindByJobID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestStageDoneUpdatesRowAndPublishes(t *testing.T) {
	tracker, store, bus, ctx := newTestTracker(t)
	j := twoStepJob()
	_, err := tracker.Begin(ctx, j)
	require.NoError(t, err)

	require.NoError(t, tracker.StageDone(ctx, j, "ocr"))

	got, err := store.FindByJobID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CompletedStages)
	assert.Equal(t, 50.0, got.Percentage)
	assert.Equal(t, "ocr", got.CurrentStage)

	events := bus.all()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeJobProgressed, events[0].Type)
	assert.Equal(t, j.ID, events[0].JobID)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", events[0].TenantID)
	assert.Equal(t, 1, events[0].Payload["completed_stages"])
}

func TestFinishReportsFullCompletion(t *testing.T) {
	tracker, store, _, ctx := newTestTracker(t)
	j := twoStepJob()
	_, err := tracker.Begin(ctx, j)
	require.NoError(t, err)

	require.NoError(t, j.Start())
	require.NoError(t, j.Complete())
	require.NoError(t, tracker.Finish(ctx, j))

	got, err := store.FindByJobID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, string(job.StateCompleted), got.Status)
	assert.Equal(t, 2, got.CompletedStages)
	assert.Equal(t, 100.0, got.Percentage)
}

func TestLoadBackfillsMissingRow(t *testing.T) {
	tracker, store, _, ctx := newTestTracker(t)
	j := twoStepJob()
	j.CurrentProcessorIndex = 1

	p, err := tracker.Load(ctx, j)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CompletedStages)

	got, err := store.FindByJobID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}
