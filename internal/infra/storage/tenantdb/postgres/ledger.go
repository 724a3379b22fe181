package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/audit"
	"github.com/ahrav/docflow/internal/domain/usage"
)

var _ audit.Repository = (*auditStore)(nil)

// auditStore is the append-only audit log. No update or delete statements
// exist in this file by construction.
type auditStore struct {
	tracer trace.Tracer
}

// NewAuditStore creates an audit.Repository backed by the tenant database.
func NewAuditStore(tracer trace.Tracer) audit.Repository {
	return &auditStore{tracer: tracer}
}

// Create appends an entry.
func (s *auditStore) Create(ctx context.Context, e *audit.Entry) error {
	ctx, span := s.tracer.Start(ctx, "auditStore.Create")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	oldValues, err := marshalJSON(e.OldValues)
	if err != nil {
		return err
	}
	newValues, err := marshalJSON(e.NewValues)
	if err != nil {
		return err
	}
	tags, err := marshalJSON(e.Tags)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO audit_log
			(id, user_id, auditable_type, auditable_id, event, old_values, new_values,
			 ip_address, user_agent, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, nullableText(e.UserID), string(e.AuditableType), e.AuditableID, e.Event,
		oldValues, newValues, nullableText(e.IPAddress), nullableText(e.UserAgent), tags, e.CreatedAt,
	)
	return err
}

// FindByAuditable lists entries for one entity, newest first.
func (s *auditStore) FindByAuditable(ctx context.Context, t audit.AuditableType, id string) ([]*audit.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "auditStore.FindByAuditable")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, `
		SELECT id, user_id, auditable_type, auditable_id, event, old_values, new_values,
		       ip_address, user_agent, tags, created_at
		FROM audit_log
		WHERE auditable_type = $1 AND auditable_id = $2
		ORDER BY created_at DESC`, string(t), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanAuditEntry(row pgx.Row) (*audit.Entry, error) {
	var (
		e             audit.Entry
		userID        pgtype.Text
		auditableType string
		oldValues     []byte
		newValues     []byte
		ipAddress     pgtype.Text
		userAgent     pgtype.Text
		tags          []byte
	)
	err := row.Scan(&e.ID, &userID, &auditableType, &e.AuditableID, &e.Event, &oldValues, &newValues,
		&ipAddress, &userAgent, &tags, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, err
	}

	e.UserID = textPtr(userID)
	e.AuditableType = audit.AuditableType(auditableType)
	e.OldValues, err = unmarshalMap(oldValues)
	if err != nil {
		return nil, err
	}
	e.NewValues, err = unmarshalMap(newValues)
	if err != nil {
		return nil, err
	}
	e.IPAddress = textPtr(ipAddress)
	e.UserAgent = textPtr(userAgent)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &e.Tags); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

var _ usage.Repository = (*usageStore)(nil)

// usageStore is the append-only usage ledger.
type usageStore struct {
	tracer trace.Tracer
}

// NewUsageStore creates a usage.Repository backed by the tenant database.
func NewUsageStore(tracer trace.Tracer) usage.Repository {
	return &usageStore{tracer: tracer}
}

// Create appends an event.
func (s *usageStore) Create(ctx context.Context, e *usage.Event) error {
	ctx, span := s.tracer.Start(ctx, "usageStore.Create")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO usage_events
			(id, campaign_id, document_id, job_id, event_type, units, cost_credits, metadata, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.CampaignID, e.DocumentID, nullableText(e.JobID), e.EventType,
		e.Units, e.CostCredits, metadata, e.RecordedAt,
	)
	return err
}

// FindByCampaign lists events for a campaign within a time range.
func (s *usageStore) FindByCampaign(ctx context.Context, campaignID string, from, to time.Time) ([]*usage.Event, error) {
	ctx, span := s.tracer.Start(ctx, "usageStore.FindByCampaign")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, `
		SELECT id, campaign_id, document_id, job_id, event_type, units, cost_credits, metadata, recorded_at
		FROM usage_events
		WHERE campaign_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at`, campaignID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*usage.Event
	for rows.Next() {
		var (
			e        usage.Event
			jobID    pgtype.Text
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.DocumentID, &jobID, &e.EventType,
			&e.Units, &e.CostCredits, &metadata, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.JobID = textPtr(jobID)
		e.Metadata, err = unmarshalMap(metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
