// Package postgres provides PostgreSQL implementations of the central
// database repositories: the tenant registry and the callback mappings.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/tenant"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

var _ tenant.Repository = (*tenantStore)(nil)

type tenantStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewTenantStore creates a tenant.Repository backed by the central database.
func NewTenantStore(pool *pgxpool.Pool, tracer trace.Tracer) tenant.Repository {
	return &tenantStore{pool: pool, tracer: tracer}
}

// Create persists a new tenant. A duplicate slug is reported as
// ErrTenantAlreadyExists.
func (s *tenantStore) Create(ctx context.Context, t *tenant.Tenant) error {
	ctx, span := s.tracer.Start(ctx, "tenantStore.Create")
	defer span.End()

	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tenants (id, slug, name, status, encrypted_credentials, settings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Slug, t.Name, string(t.Status), t.EncryptedCredentials, settings, t.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return tenant.ErrTenantAlreadyExists
		}
		return err
	}
	return nil
}

// Update modifies an existing tenant.
func (s *tenantStore) Update(ctx context.Context, t *tenant.Tenant) error {
	ctx, span := s.tracer.Start(ctx, "tenantStore.Update")
	defer span.End()

	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants
		SET name = $2, status = $3, encrypted_credentials = $4, settings = $5,
		    updated_at = $6, deleted_at = $7
		WHERE id = $1`,
		t.ID, t.Name, string(t.Status), t.EncryptedCredentials, settings,
		nullableTime(t.UpdatedAt), nullableTime(t.DeletedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// FindBySlug retrieves a tenant by its unique slug.
func (s *tenantStore) FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenantStore.FindBySlug")
	defer span.End()

	row := s.pool.QueryRow(ctx, selectTenant+` WHERE slug = $1`, slug)
	return scanTenant(row)
}

// FindByID retrieves a tenant by id.
func (s *tenantStore) FindByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenantStore.FindByID")
	defer span.End()

	row := s.pool.QueryRow(ctx, selectTenant+` WHERE id = $1`, id)
	return scanTenant(row)
}

// ListActive retrieves all active, non-deleted tenants.
func (s *tenantStore) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenantStore.ListActive")
	defer span.End()

	rows, err := s.pool.Query(ctx, selectTenant+` WHERE status = 'active' AND deleted_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const selectTenant = `
	SELECT id, slug, name, status, encrypted_credentials, settings,
	       created_at, updated_at, deleted_at
	FROM tenants`

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var (
		t         tenant.Tenant
		status    string
		settings  []byte
		updatedAt pgtype.Timestamptz
		deletedAt pgtype.Timestamptz
	)
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &status, &t.EncryptedCredentials, &settings,
		&t.CreatedAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, err
	}

	t.Status = tenant.Status(status)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, err
		}
	}
	t.UpdatedAt = timePtr(updatedAt)
	t.DeletedAt = timePtr(deletedAt)
	return &t, nil
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
