package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/job"
	"github.com/ahrav/docflow/internal/domain/pipeline"
)

var _ job.Repository = (*jobStore)(nil)

type jobStore struct {
	tracer trace.Tracer
}

// NewJobStore creates a job.Repository backed by the tenant database.
func NewJobStore(tracer trace.Tracer) job.Repository {
	return &jobStore{tracer: tracer}
}

// Create persists a new job including its pipeline snapshot.
func (s *jobStore) Create(ctx context.Context, j *job.Job) error {
	ctx, span := s.tracer.Start(ctx, "jobStore.Create")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	pipelineJSON, err := json.Marshal(j.Pipeline)
	if err != nil {
		return err
	}
	errorLog, err := marshalJSON(j.ErrorLog)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO jobs
			(id, public_id, campaign_id, document_id, pipeline, current_processor_index,
			 queue_name, attempts, max_attempts, error_message, error_log, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		j.ID, j.PublicID, j.CampaignID, j.DocumentID, pipelineJSON, j.CurrentProcessorIndex,
		j.QueueName, j.Attempts, j.MaxAttempts, nullableText(j.ErrorMessage), errorLog,
		string(j.State), j.CreatedAt,
	)
	return err
}

// Update modifies an existing job.
func (s *jobStore) Update(ctx context.Context, j *job.Job) error {
	ctx, span := s.tracer.Start(ctx, "jobStore.Update")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	errorLog, err := marshalJSON(j.ErrorLog)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
		UPDATE jobs
		SET current_processor_index = $2, attempts = $3, error_message = $4, error_log = $5,
		    state = $6, started_at = $7, completed_at = $8, updated_at = $9
		WHERE id = $1`,
		j.ID, j.CurrentProcessorIndex, j.Attempts, nullableText(j.ErrorMessage), errorLog,
		string(j.State), nullableTime(j.StartedAt), nullableTime(j.CompletedAt), nullableTime(j.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// FindByID retrieves a job by id.
func (s *jobStore) FindByID(ctx context.Context, id string) (*job.Job, error) {
	ctx, span := s.tracer.Start(ctx, "jobStore.FindByID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanJob(db.QueryRow(ctx, selectJob+` WHERE id = $1`, id))
}

// FindByPublicID retrieves a job by its public uuid.
func (s *jobStore) FindByPublicID(ctx context.Context, publicID string) (*job.Job, error) {
	ctx, span := s.tracer.Start(ctx, "jobStore.FindByPublicID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanJob(db.QueryRow(ctx, selectJob+` WHERE public_id = $1`, publicID))
}

// FindActiveByDocument retrieves the single non-terminal job for a document.
func (s *jobStore) FindActiveByDocument(ctx context.Context, documentID string) (*job.Job, error) {
	ctx, span := s.tracer.Start(ctx, "jobStore.FindActiveByDocument")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}
	return scanJob(db.QueryRow(ctx, selectJob+`
		WHERE document_id = $1 AND state NOT IN ('completed', 'failed', 'cancelled')
		ORDER BY created_at DESC
		LIMIT 1`, documentID))
}

const selectJob = `
	SELECT id, public_id, campaign_id, document_id, pipeline, current_processor_index,
	       queue_name, attempts, max_attempts, error_message, error_log, state,
	       created_at, started_at, completed_at, updated_at
	FROM jobs`

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j            job.Job
		pipelineJSON []byte
		errorMessage pgtype.Text
		errorLog     []byte
		state        string
		startedAt    pgtype.Timestamptz
		completedAt  pgtype.Timestamptz
		updatedAt    pgtype.Timestamptz
	)
	err := row.Scan(&j.ID, &j.PublicID, &j.CampaignID, &j.DocumentID, &pipelineJSON, &j.CurrentProcessorIndex,
		&j.QueueName, &j.Attempts, &j.MaxAttempts, &errorMessage, &errorLog, &state,
		&j.CreatedAt, &startedAt, &completedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, err
	}

	j.Pipeline, err = pipeline.Parse(pipelineJSON)
	if err != nil {
		return nil, err
	}
	j.ErrorMessage = textPtr(errorMessage)
	if len(errorLog) > 0 {
		if err := json.Unmarshal(errorLog, &j.ErrorLog); err != nil {
			return nil, err
		}
	}
	j.State = job.State(state)
	j.StartedAt = timePtr(startedAt)
	j.CompletedAt = timePtr(completedAt)
	j.UpdatedAt = timePtr(updatedAt)
	return &j, nil
}

var _ job.ProgressRepository = (*progressStore)(nil)

type progressStore struct {
	tracer trace.Tracer
}

// NewProgressStore creates a job.ProgressRepository backed by the tenant
// database.
func NewProgressStore(tracer trace.Tracer) job.ProgressRepository {
	return &progressStore{tracer: tracer}
}

// Create persists the progress row for a new job.
func (s *progressStore) Create(ctx context.Context, p *job.Progress) error {
	ctx, span := s.tracer.Start(ctx, "progressStore.Create")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO pipeline_progress
			(id, job_id, total_stages, completed_stages, percentage, current_stage, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE
		SET total_stages = EXCLUDED.total_stages,
		    completed_stages = EXCLUDED.completed_stages,
		    percentage = EXCLUDED.percentage,
		    current_stage = EXCLUDED.current_stage,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at`,
		p.ID, p.JobID, p.TotalStages, p.CompletedStages, p.Percentage, p.CurrentStage, p.Status, p.UpdatedAt,
	)
	return err
}

// Update modifies the progress row.
func (s *progressStore) Update(ctx context.Context, p *job.Progress) error {
	ctx, span := s.tracer.Start(ctx, "progressStore.Update")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
		UPDATE pipeline_progress
		SET completed_stages = $2, percentage = $3, current_stage = $4, status = $5, updated_at = $6
		WHERE job_id = $1`,
		p.JobID, p.CompletedStages, p.Percentage, p.CurrentStage, p.Status, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrProgressNotFound
	}
	return nil
}

// FindByJobID retrieves the progress row for a job.
func (s *progressStore) FindByJobID(ctx context.Context, jobID string) (*job.Progress, error) {
	ctx, span := s.tracer.Start(ctx, "progressStore.FindByJobID")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}

	var p job.Progress
	err = db.QueryRow(ctx, `
		SELECT id, job_id, total_stages, completed_stages, percentage, current_stage, status, updated_at
		FROM pipeline_progress
		WHERE job_id = $1`, jobID,
	).Scan(&p.ID, &p.JobID, &p.TotalStages, &p.CompletedStages, &p.Percentage, &p.CurrentStage, &p.Status, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrProgressNotFound
		}
		return nil, err
	}
	return &p, nil
}
