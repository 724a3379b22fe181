package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/callback"
)

var _ callback.Repository = (*callbackStore)(nil)

type callbackStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewCallbackStore creates a callback.Repository backed by the central
// database.
func NewCallbackStore(pool *pgxpool.Pool, tracer trace.Tracer) callback.Repository {
	return &callbackStore{pool: pool, tracer: tracer}
}

// Upsert persists the mapping, idempotent on transaction id. A conflicting
// registration leaves the existing row untouched.
func (s *callbackStore) Upsert(ctx context.Context, m *callback.Mapping) error {
	ctx, span := s.tracer.Start(ctx, "callbackStore.Upsert")
	defer span.End()

	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO callback_mappings
			(transaction_id, tenant_id, document_id, execution_id, workflow_id, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id) DO NOTHING`,
		m.TransactionID, m.TenantID, m.DocumentID, m.ExecutionID, m.WorkflowID,
		string(m.Status), metadata, m.CreatedAt,
	)
	return err
}

// FindByTransactionID retrieves a mapping.
func (s *callbackStore) FindByTransactionID(ctx context.Context, transactionID string) (*callback.Mapping, error) {
	ctx, span := s.tracer.Start(ctx, "callbackStore.FindByTransactionID")
	defer span.End()

	row := s.pool.QueryRow(ctx, `
		SELECT transaction_id, tenant_id, document_id, execution_id, workflow_id,
		       status, metadata, created_at, updated_at, callback_received_at, fetch_completed_at
		FROM callback_mappings
		WHERE transaction_id = $1`, transactionID)

	var (
		m          callback.Mapping
		status     string
		metadata   []byte
		updatedAt  pgtype.Timestamptz
		receivedAt pgtype.Timestamptz
		fetchedAt  pgtype.Timestamptz
	)
	err := row.Scan(&m.TransactionID, &m.TenantID, &m.DocumentID, &m.ExecutionID, &m.WorkflowID,
		&status, &metadata, &m.CreatedAt, &updatedAt, &receivedAt, &fetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, callback.ErrMappingNotFound
		}
		return nil, err
	}

	m.Status = callback.Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, err
		}
	}
	m.UpdatedAt = timePtr(updatedAt)
	m.CallbackReceivedAt = timePtr(receivedAt)
	m.FetchCompletedAt = timePtr(fetchedAt)
	return &m, nil
}

// Update modifies an existing mapping's status and timestamps.
func (s *callbackStore) Update(ctx context.Context, m *callback.Mapping) error {
	ctx, span := s.tracer.Start(ctx, "callbackStore.Update")
	defer span.End()

	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE callback_mappings
		SET status = $2, metadata = $3, updated_at = $4,
		    callback_received_at = $5, fetch_completed_at = $6
		WHERE transaction_id = $1`,
		m.TransactionID, string(m.Status), metadata, nullableTime(m.UpdatedAt),
		nullableTime(m.CallbackReceivedAt), nullableTime(m.FetchCompletedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return callback.ErrMappingNotFound
	}
	return nil
}
