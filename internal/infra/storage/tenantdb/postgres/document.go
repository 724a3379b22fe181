package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/document"
)

var _ document.Repository = (*documentStore)(nil)

type documentStore struct {
	tracer trace.Tracer
}

// NewDocumentStore creates a document.Repository backed by the tenant
// database.
func NewDocumentStore(tracer trace.Tracer) document.Repository {
	return &documentStore{tracer: tracer}
}

// Create persists a new document.
func (s *documentStore) Create(ctx context.Context, d *document.Document) error {
	ctx, span := s.tracer.Start(ctx, "documentStore.Create")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	metadata, err := marshalJSON(d.Metadata)
	if err != nil {
		return err
	}
	history, err := marshalJSON(d.History)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO documents
			(id, public_id, campaign_id, user_id, filename, mime_type, size_bytes,
			 storage_path, disk, content_hash, state, metadata, history, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.PublicID, d.CampaignID, nullableText(d.UserID), d.Filename, d.MimeType, d.SizeBytes,
		d.StoragePath, d.Disk, d.ContentHash, string(d.State), metadata, history, d.RetryCount, d.CreatedAt,
	)
	return err
}

// Update modifies an existing document.
func (s *documentStore) Update(ctx context.Context, d *document.Document) error {
	ctx, span := s.tracer.Start(ctx, "documentStore.Update")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	metadata, err := marshalJSON(d.Metadata)
	if err != nil {
		return err
	}
	history, err := marshalJSON(d.History)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
		UPDATE documents
		SET state = $2, metadata = $3, history = $4, retry_count = $5,
		    updated_at = $6, processed_at = $7, failed_at = $8, deleted_at = $9
		WHERE id = $1`,
		d.ID, string(d.State), metadata, history, d.RetryCount,
		nullableTime(d.UpdatedAt), nullableTime(d.ProcessedAt),
		nullableTime(d.FailedAt), nullableTime(d.DeletedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return document.ErrDocumentNotFound
	}
	return nil
}

// FindByID retrieves a document by id.
func (s *documentStore) FindByID(ctx context.Context, id string) (*document.Document, error) {
	ctx, span := s.tracer.Start(ctx, "documentStore.FindByID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanDocument(db.QueryRow(ctx, selectDocument+` WHERE id = $1`, id))
}

// FindByPublicID retrieves a document by its public uuid.
func (s *documentStore) FindByPublicID(ctx context.Context, publicID string) (*document.Document, error) {
	ctx, span := s.tracer.Start(ctx, "documentStore.FindByPublicID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanDocument(db.QueryRow(ctx, selectDocument+` WHERE public_id = $1`, publicID))
}

// FindExpired retrieves non-deleted documents created before the cutoff.
func (s *documentStore) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]*document.Document, error) {
	ctx, span := s.tracer.Start(ctx, "documentStore.FindExpired")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, selectDocument+`
		WHERE deleted_at IS NULL AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*document.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const selectDocument = `
	SELECT id, public_id, campaign_id, user_id, filename, mime_type, size_bytes,
	       storage_path, disk, content_hash, state, metadata, history, retry_count,
	       created_at, updated_at, processed_at, failed_at, deleted_at
	FROM documents`

func scanDocument(row pgx.Row) (*document.Document, error) {
	var (
		d           document.Document
		userID      pgtype.Text
		state       string
		metadata    []byte
		history     []byte
		updatedAt   pgtype.Timestamptz
		processedAt pgtype.Timestamptz
		failedAt    pgtype.Timestamptz
		deletedAt   pgtype.Timestamptz
	)
	err := row.Scan(&d.ID, &d.PublicID, &d.CampaignID, &userID, &d.Filename, &d.MimeType, &d.SizeBytes,
		&d.StoragePath, &d.Disk, &d.ContentHash, &state, &metadata, &history, &d.RetryCount,
		&d.CreatedAt, &updatedAt, &processedAt, &failedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrDocumentNotFound
		}
		return nil, err
	}

	d.UserID = textPtr(userID)
	d.State = document.State(state)
	d.Metadata, err = unmarshalMap(metadata)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &d.History); err != nil {
			return nil, err
		}
	}
	d.UpdatedAt = timePtr(updatedAt)
	d.ProcessedAt = timePtr(processedAt)
	d.FailedAt = timePtr(failedAt)
	d.DeletedAt = timePtr(deletedAt)
	return &d, nil
}
