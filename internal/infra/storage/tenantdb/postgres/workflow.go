package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/workflow"
)

var _ workflow.Repository = (*workflowStore)(nil)

type workflowStore struct {
	tracer trace.Tracer
}

// NewWorkflowStore creates a workflow.Repository backed by the tenant
// database.
func NewWorkflowStore(tracer trace.Tracer) workflow.Repository {
	return &workflowStore{tracer: tracer}
}

// Create persists a new workflow.
func (s *workflowStore) Create(ctx context.Context, w *workflow.Workflow) error {
	ctx, span := s.tracer.Start(ctx, "workflowStore.Create")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	outputs, err := marshalJSON(w.PreviousOutputs)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO workflows
			(id, job_id, state, current_step, previous_outputs, waiting_signal,
			 cancel_requested, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.JobID, string(w.State), w.CurrentStep, outputs, w.WaitingSignal,
		w.CancelRequested, nullableText(w.ErrorMessage), w.CreatedAt,
	)
	return err
}

// Update persists the workflow's current cursor, outputs, and state.
func (s *workflowStore) Update(ctx context.Context, w *workflow.Workflow) error {
	ctx, span := s.tracer.Start(ctx, "workflowStore.Update")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	outputs, err := marshalJSON(w.PreviousOutputs)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
		UPDATE workflows
		SET state = $2, current_step = $3, previous_outputs = $4, waiting_signal = $5,
		    cancel_requested = $6, error_message = $7, updated_at = $8
		WHERE id = $1`,
		w.ID, string(w.State), w.CurrentStep, outputs, w.WaitingSignal,
		w.CancelRequested, nullableText(w.ErrorMessage), nullableTime(w.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrWorkflowNotFound
	}
	return nil
}

// FindByID retrieves a workflow by id.
func (s *workflowStore) FindByID(ctx context.Context, id string) (*workflow.Workflow, error) {
	ctx, span := s.tracer.Start(ctx, "workflowStore.FindByID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanWorkflow(db.QueryRow(ctx, selectWorkflow+` WHERE id = $1`, id))
}

// FindByJobID retrieves the latest workflow driving a job.
func (s *workflowStore) FindByJobID(ctx context.Context, jobID string) (*workflow.Workflow, error) {
	ctx, span := s.tracer.Start(ctx, "workflowStore.FindByJobID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanWorkflow(db.QueryRow(ctx, selectWorkflow+`
		WHERE job_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, jobID))
}

// FindResumable retrieves all non-terminal workflows.
func (s *workflowStore) FindResumable(ctx context.Context) ([]*workflow.Workflow, error) {
	ctx, span := s.tracer.Start(ctx, "workflowStore.FindResumable")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, selectWorkflow+`
		WHERE state IN ('running', 'suspended')
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*workflow.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

const selectWorkflow = `
	SELECT id, job_id, state, current_step, previous_outputs, waiting_signal,
	       cancel_requested, error_message, created_at, updated_at
	FROM workflows`

func scanWorkflow(row pgx.Row) (*workflow.Workflow, error) {
	var (
		w            workflow.Workflow
		state        string
		outputs      []byte
		errorMessage pgtype.Text
		updatedAt    pgtype.Timestamptz
	)
	err := row.Scan(&w.ID, &w.JobID, &state, &w.CurrentStep, &outputs, &w.WaitingSignal,
		&w.CancelRequested, &errorMessage, &w.CreatedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrWorkflowNotFound
		}
		return nil, err
	}

	w.State = workflow.State(state)
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &w.PreviousOutputs); err != nil {
			return nil, err
		}
	}
	w.ErrorMessage = textPtr(errorMessage)
	w.UpdatedAt = timePtr(updatedAt)
	return &w, nil
}
