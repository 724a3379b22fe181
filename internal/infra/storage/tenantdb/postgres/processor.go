package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/processor"
)

var _ processor.Repository = (*processorStore)(nil)

type processorStore struct {
	tracer trace.Tracer
}

// NewProcessorStore creates a processor.Repository backed by the tenant
// database.
func NewProcessorStore(tracer trace.Tracer) processor.Repository {
	return &processorStore{tracer: tracer}
}

// Create persists a new catalog entry.
func (s *processorStore) Create(ctx context.Context, e *processor.Entry) error {
	ctx, span := s.tracer.Start(ctx, "processorStore.Create")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	deps, err := marshalJSON(e.DependencySlugs)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO processors
			(id, slug, name, category, handler_key, config_schema, output_schema,
			 dependency_slugs, is_active, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Slug, e.Name, e.Category, e.HandlerKey, e.ConfigSchema, e.OutputSchema,
		deps, e.IsActive, e.Version, e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return processor.ErrProcessorNotFound
		}
		return err
	}
	return nil
}

// Update modifies an existing entry.
func (s *processorStore) Update(ctx context.Context, e *processor.Entry) error {
	ctx, span := s.tracer.Start(ctx, "processorStore.Update")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	deps, err := marshalJSON(e.DependencySlugs)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
		UPDATE processors
		SET name = $2, category = $3, handler_key = $4, config_schema = $5, output_schema = $6,
		    dependency_slugs = $7, is_active = $8, version = $9, updated_at = $10
		WHERE id = $1`,
		e.ID, e.Name, e.Category, e.HandlerKey, e.ConfigSchema, e.OutputSchema,
		deps, e.IsActive, e.Version, nullableTime(e.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return processor.ErrProcessorNotFound
	}
	return nil
}

// FindBySlug retrieves an entry by slug.
func (s *processorStore) FindBySlug(ctx context.Context, slug string) (*processor.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "processorStore.FindBySlug")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanProcessor(db.QueryRow(ctx, selectProcessor+` WHERE slug = $1`, slug))
}

// FindByID retrieves an entry by id.
func (s *processorStore) FindByID(ctx context.Context, id string) (*processor.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "processorStore.FindByID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanProcessor(db.QueryRow(ctx, selectProcessor+` WHERE id = $1`, id))
}

// ListActive retrieves all active catalog entries.
func (s *processorStore) ListActive(ctx context.Context) ([]*processor.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "processorStore.ListActive")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, selectProcessor+` WHERE is_active ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*processor.Entry
	for rows.Next() {
		e, err := scanProcessor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const selectProcessor = `
	SELECT id, slug, name, category, handler_key, config_schema, output_schema,
	       dependency_slugs, is_active, version, created_at, updated_at
	FROM processors`

func scanProcessor(row pgx.Row) (*processor.Entry, error) {
	var (
		e         processor.Entry
		deps      []byte
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&e.ID, &e.Slug, &e.Name, &e.Category, &e.HandlerKey, &e.ConfigSchema, &e.OutputSchema,
		&deps, &e.IsActive, &e.Version, &e.CreatedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, processor.ErrProcessorNotFound
		}
		return nil, err
	}

	if len(deps) > 0 {
		if err := json.Unmarshal(deps, &e.DependencySlugs); err != nil {
			return nil, err
		}
	}
	e.UpdatedAt = timePtr(updatedAt)
	return &e, nil
}
