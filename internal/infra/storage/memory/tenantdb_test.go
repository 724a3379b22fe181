package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/job"
	"github.com/ahrav/docflow/internal/domain/pipeline"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
)

func scopeCtx(tenantID string) context.Context {
	return tenantctx.With(context.Background(), &tenantctx.Scope{TenantID: tenantID, Slug: tenantID})
}

func TestScopedStoreIsolatesTenants(t *testing.T) {
	store := NewDocumentStore()
	acme := scopeCtx("tenant-acme")
	globex := scopeCtx("tenant-globex")

	doc := document.New("camp-1", "f.pdf", "application/pdf", "p", "default", []byte("x"))
	require.NoError(t, store.Create(acme, doc))

	got, err := store.FindByID(acme, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	// The same id does not resolve under another tenant's scope.
	_, err = store.FindByID(globex, doc.ID)
	assert.ErrorIs(t, err, document.ErrDocumentNotFound)
}

func TestScopedStoreRequiresTenantContext(t *testing.T) {
	store := NewDocumentStore()
	doc := document.New("camp-1", "f.pdf", "application/pdf", "p", "default", []byte("x"))

	err := store.Create(context.Background(), doc)
	assert.ErrorIs(t, err, tenantctx.ErrNoTenantContext)

	_, err = store.FindByID(context.Background(), doc.ID)
	assert.ErrorIs(t, err, tenantctx.ErrNoTenantContext)
}

func TestJobStoreFindActiveByDocument(t *testing.T) {
	store := NewJobStore()
	ctx := scopeCtx("tenant-acme")

	j := job.New("camp-1", "doc-1", pipeline.Pipeline{}, "documents", 3)
	require.NoError(t, store.Create(ctx, j))

	active, err := store.FindActiveByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, j.ID, active.ID)

	// Terminal jobs no longer count as active.
	require.NoError(t, j.Start())
	require.NoError(t, j.Complete())
	require.NoError(t, store.Update(ctx, j))

	_, err = store.FindActiveByDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestJobStoreFindByPublicID(t *testing.T) {
	store := NewJobStore()
	ctx := scopeCtx("tenant-acme")

	j := job.New("camp-1", "doc-1", pipeline.Pipeline{}, "documents", 3)
	require.NoError(t, store.Create(ctx, j))

	got, err := store.FindByPublicID(ctx, j.PublicID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)

	_, err = store.FindByPublicID(ctx, "missing")
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestScopedStoreReturnsCopies(t *testing.T) {
	store := NewJobStore()
	ctx := scopeCtx("tenant-acme")

	j := job.New("camp-1", "doc-1", pipeline.Pipeline{}, "documents", 3)
	require.NoError(t, store.Create(ctx, j))

	got, err := store.FindByID(ctx, j.ID)
	require.NoError(t, err)
	got.State = job.StateFailed

	again, err := store.FindByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatePending, again.State)
}
