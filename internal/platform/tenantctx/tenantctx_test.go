package tenantctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/docflow/internal/domain/tenant"
)

func TestFromContextRequiresBinding(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoTenantContext)
}

func TestWithAndFromContext(t *testing.T) {
	scope := &Scope{TenantID: "t-1", Slug: "acme"}
	ctx := With(context.Background(), scope)

	got, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Same(t, scope, got)
}

func TestRunBindsOnlyInsideFn(t *testing.T) {
	ctx := context.Background()
	scope := &Scope{TenantID: "t-1", Slug: "acme"}

	err := Run(ctx, scope, func(inner context.Context) error {
		got, err := FromContext(inner)
		require.NoError(t, err)
		assert.Equal(t, "t-1", got.TenantID)
		return nil
	})
	require.NoError(t, err)

	_, err = FromContext(ctx)
	assert.ErrorIs(t, err, ErrNoTenantContext)
}

func TestDatabaseName(t *testing.T) {
	assert.Equal(t, "docflow_tenant_acme", DatabaseName("acme"))
	assert.Equal(t, "docflow_tenant_acme_corp_eu", DatabaseName("acme-corp-eu"))
}

func TestAcquireRejectsSuspendedTenant(t *testing.T) {
	m := NewManager("postgres://localhost:5432/%s?sslmode=disable")
	tn, err := tenant.New("acme", "Acme Corp")
	require.NoError(t, err)
	tn.Suspend()

	_, err = m.Acquire(context.Background(), tn)
	assert.ErrorIs(t, err, tenant.ErrTenantSuspended)
}

func TestAcquireCachesPoolPerSlug(t *testing.T) {
	m := NewManager("postgres://localhost:5432/%s?sslmode=disable")
	defer m.Close()

	tn, err := tenant.New("acme", "Acme Corp")
	require.NoError(t, err)

	s1, err := m.Acquire(context.Background(), tn)
	require.NoError(t, err)
	s2, err := m.Acquire(context.Background(), tn)
	require.NoError(t, err)
	assert.Same(t, s1.DB, s2.DB)

	other, err := tenant.New("globex", "Globex")
	require.NoError(t, err)
	s3, err := m.Acquire(context.Background(), other)
	require.NoError(t, err)
	assert.NotSame(t, s1.DB, s3.DB)
}

func TestBindCarriesScope(t *testing.T) {
	m := NewManager("postgres://localhost:5432/%s?sslmode=disable")
	defer m.Close()

	tn, err := tenant.New("acme", "Acme Corp")
	require.NoError(t, err)

	ctx, err := m.Bind(context.Background(), tn)
	require.NoError(t, err)

	scope, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, tn.ID, scope.TenantID)
	assert.Equal(t, "acme", scope.Slug)
	assert.NotNil(t, scope.DB)
}
