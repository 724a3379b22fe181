// Package postgres provides PostgreSQL implementations of the tenant-scoped
// repositories. Every operation resolves its database handle from the tenant
// scope bound to the context at call time; an unbound context fails with
// tenantctx.ErrNoTenantContext before any query runs.
package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahrav/docflow/internal/platform/tenantctx"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// pool resolves the bound tenant's database handle.
func pool(ctx context.Context) (*pgxpool.Pool, error) {
	scope, err := tenantctx.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scope.DB, nil
}

func nullableTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	val := t.Time
	return &val
}

func nullableText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	val := t.String
	return &val
}

// marshalJSON encodes a value for a jsonb column, mapping nil to SQL NULL.
func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// unmarshalMap decodes a jsonb column into a map, tolerating NULL.
func unmarshalMap(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
