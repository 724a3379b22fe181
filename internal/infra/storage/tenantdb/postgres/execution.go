package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/execution"
)

var _ execution.Repository = (*executionStore)(nil)

type executionStore struct {
	tracer trace.Tracer
}

// NewExecutionStore creates an execution.Repository backed by the tenant
// database.
func NewExecutionStore(tracer trace.Tracer) execution.Repository {
	return &executionStore{tracer: tracer}
}

// Create persists a new execution record.
func (s *executionStore) Create(ctx context.Context, r *execution.Record) error {
	ctx, span := s.tracer.Start(ctx, "executionStore.Create")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	input, err := marshalJSON(r.Input)
	if err != nil {
		return err
	}
	config, err := marshalJSON(r.Config)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO processor_executions
			(id, job_id, processor_id, processor_slug, step_index, input, config,
			 duration_ms, tokens_used, cost_credits, state, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.JobID, nullableText(r.ProcessorID), r.ProcessorSlug, r.StepIndex, input, config,
		r.DurationMS, r.TokensUsed, r.CostCredits, string(r.State), r.CreatedAt, nullableTime(r.CompletedAt),
	)
	return err
}

// Update modifies an existing execution record.
func (s *executionStore) Update(ctx context.Context, r *execution.Record) error {
	ctx, span := s.tracer.Start(ctx, "executionStore.Update")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	output, err := marshalJSON(r.Output)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
		UPDATE processor_executions
		SET output = $2, duration_ms = $3, error_message = $4, tokens_used = $5,
		    cost_credits = $6, state = $7, started_at = $8, completed_at = $9
		WHERE id = $1`,
		r.ID, output, r.DurationMS, nullableText(r.ErrorMessage), r.TokensUsed,
		r.CostCredits, string(r.State), nullableTime(r.StartedAt), nullableTime(r.CompletedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return execution.ErrRecordNotFound
	}
	return nil
}

// FindByID retrieves a record by id.
func (s *executionStore) FindByID(ctx context.Context, id string) (*execution.Record, error) {
	ctx, span := s.tracer.Start(ctx, "executionStore.FindByID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanExecution(db.QueryRow(ctx, selectExecution+` WHERE id = $1`, id))
}

// FindByJobID retrieves all records for a job ordered by step index.
func (s *executionStore) FindByJobID(ctx context.Context, jobID string) ([]*execution.Record, error) {
	ctx, span := s.tracer.Start(ctx, "executionStore.FindByJobID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, selectExecution+`
		WHERE job_id = $1
		ORDER BY step_index, created_at`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*execution.Record
	for rows.Next() {
		r, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindByJobAndStep retrieves the latest record for a specific step of a job.
func (s *executionStore) FindByJobAndStep(ctx context.Context, jobID string, stepIndex int) (*execution.Record, error) {
	ctx, span := s.tracer.Start(ctx, "executionStore.FindByJobAndStep")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanExecution(db.QueryRow(ctx, selectExecution+`
		WHERE job_id = $1 AND step_index = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, jobID, stepIndex))
}

// FindLatestByDocumentAndCategory finds the most recent record of the given
// processor category across the document's jobs.
func (s *executionStore) FindLatestByDocumentAndCategory(ctx context.Context, documentID, category string) (*execution.Record, error) {
	ctx, span := s.tracer.Start(ctx, "executionStore.FindLatestByDocumentAndCategory")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanExecution(db.QueryRow(ctx, `
		SELECT e.id, e.job_id, e.processor_id, e.processor_slug, e.step_index, e.input, e.output,
		       e.config, e.duration_ms, e.error_message, e.tokens_used, e.cost_credits, e.state,
		       e.created_at, e.started_at, e.completed_at
		FROM processor_executions e
		JOIN jobs j ON j.id = e.job_id
		JOIN processors p ON p.id = e.processor_id
		WHERE j.document_id = $1 AND p.category = $2 AND e.state = 'completed'
		ORDER BY e.created_at DESC
		LIMIT 1`, documentID, category))
}

const selectExecution = `
	SELECT id, job_id, processor_id, processor_slug, step_index, input, output, config,
	       duration_ms, error_message, tokens_used, cost_credits, state,
	       created_at, started_at, completed_at
	FROM processor_executions`

func scanExecution(row pgx.Row) (*execution.Record, error) {
	var (
		r            execution.Record
		processorID  pgtype.Text
		input        []byte
		output       []byte
		config       []byte
		errorMessage pgtype.Text
		state        string
		startedAt    pgtype.Timestamptz
		completedAt  pgtype.Timestamptz
	)
	err := row.Scan(&r.ID, &r.JobID, &processorID, &r.ProcessorSlug, &r.StepIndex, &input, &output, &config,
		&r.DurationMS, &errorMessage, &r.TokensUsed, &r.CostCredits, &state,
		&r.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, execution.ErrRecordNotFound
		}
		return nil, err
	}

	r.ProcessorID = textPtr(processorID)
	r.Input, err = unmarshalMap(input)
	if err != nil {
		return nil, err
	}
	r.Output, err = unmarshalMap(output)
	if err != nil {
		return nil, err
	}
	r.Config, err = unmarshalMap(config)
	if err != nil {
		return nil, err
	}
	r.ErrorMessage = textPtr(errorMessage)
	r.State = execution.State(state)
	r.StartedAt = timePtr(startedAt)
	r.CompletedAt = timePtr(completedAt)
	return &r, nil
}
