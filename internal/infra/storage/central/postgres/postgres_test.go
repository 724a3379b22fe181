package postgres_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/docflow/internal/domain/callback"
	"github.com/ahrav/docflow/internal/domain/tenant"
	"github.com/ahrav/docflow/internal/infra/storage/central/postgres"
	"github.com/ahrav/docflow/internal/infra/storage/testutil"
)

func TestCentralStoresRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := testutil.SetupCentralDB(t)
	defer cleanup()

	ctx := context.Background()
	tracer := testutil.NoOpTracer()
	tenants := postgres.NewTenantStore(pool, tracer)
	callbacks := postgres.NewCallbackStore(pool, tracer)

	tn, err := tenant.New("acme", "Acme Corp")
	require.NoError(t, err)
	require.NoError(t, tenants.Create(ctx, tn))
	assert.ErrorIs(t, tenants.Create(ctx, tn), tenant.ErrTenantAlreadyExists)

	got, err := tenants.FindBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, tn.ID, got.ID)
	assert.True(t, got.IsActive())

	active, err := tenants.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	got.Suspend()
	require.NoError(t, tenants.Update(ctx, got))

	active, err = tenants.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	docID, execID, wfID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	m := callback.New("txn_1", tn.ID, docID, execID, wfID, map[string]any{"provider": "demo-kyc"})
	require.NoError(t, callbacks.Upsert(ctx, m))

	// A replayed registration leaves the original row untouched.
	dup := callback.New("txn_1", tn.ID, uuid.NewString(), uuid.NewString(), uuid.NewString(), nil)
	require.NoError(t, callbacks.Upsert(ctx, dup))

	gotMapping, err := callbacks.FindByTransactionID(ctx, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, wfID, gotMapping.WorkflowID)
	assert.Equal(t, callback.StatusPending, gotMapping.Status)

	gotMapping.RecordCallback(callback.StatusApproved)
	require.NoError(t, callbacks.Update(ctx, gotMapping))

	again, err := callbacks.FindByTransactionID(ctx, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, callback.StatusApproved, again.Status)
	require.NotNil(t, again.CallbackReceivedAt)

	_, err = callbacks.FindByTransactionID(ctx, "txn_missing")
	assert.ErrorIs(t, err, callback.ErrMappingNotFound)
}
