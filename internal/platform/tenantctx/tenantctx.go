// Package tenantctx scopes every data operation to exactly one tenant. The
// scope value carried in the context is the only way to obtain a tenant
// database handle, which makes cross-tenant access impossible by
// construction.
package tenantctx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoTenantContext is returned when a data access is attempted without a
// bound tenant. Callers must fail fast and loudly, never fall through to a
// shared handle.
var ErrNoTenantContext = errors.New("no tenant context bound")

// Scope is the ambient tenant identity for one execution path. Binding is
// per goroutine via context, never global; parallel workers each carry their
// own binding.
type Scope struct {
	TenantID string
	Slug     string
	DB       *pgxpool.Pool
}

type ctxKey struct{}

// With binds the scope to the returned context.
func With(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the bound tenant scope or ErrNoTenantContext.
func FromContext(ctx context.Context) (*Scope, error) {
	s, ok := ctx.Value(ctxKey{}).(*Scope)
	if !ok || s == nil {
		return nil, ErrNoTenantContext
	}
	return s, nil
}

// Run executes fn with the scope bound. The prior binding is untouched on
// every exit path, including panics, because context values are immutable
// and the derived context never escapes fn.
func Run(ctx context.Context, s *Scope, fn func(ctx context.Context) error) error {
	return fn(With(ctx, s))
}
