// Package memory provides in-memory repository implementations for tests and
// single-node development. Tenant-scoped repositories namespace every row by
// the tenant bound to the context, mirroring the database-per-tenant
// isolation of the Postgres implementations: an unbound context fails, and
// one tenant's rows are unreachable from another's scope.
package memory

import (
	"context"
	"sync"

	"github.com/ahrav/docflow/internal/platform/tenantctx"
)

// scoped is the namespaced map shared by tenant-scoped repositories.
type scoped[T any] struct {
	mu   sync.RWMutex
	rows map[string]map[string]T
}

func newScoped[T any]() *scoped[T] {
	return &scoped[T]{rows: make(map[string]map[string]T)}
}

// bucket returns the tenant's row map, creating it on first use. The caller
// must hold the lock.
func (s *scoped[T]) bucket(tenantID string) map[string]T {
	b, ok := s.rows[tenantID]
	if !ok {
		b = make(map[string]T)
		s.rows[tenantID] = b
	}
	return b
}

// tenantID resolves the bound tenant or fails with ErrNoTenantContext.
func tenantID(ctx context.Context) (string, error) {
	scope, err := tenantctx.FromContext(ctx)
	if err != nil {
		return "", err
	}
	return scope.TenantID, nil
}
