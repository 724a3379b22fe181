// Package retention soft-deletes documents past their campaign retention
// window and removes their stored bytes.
package retention

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/audit"
	"github.com/ahrav/docflow/internal/domain/campaign"
	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/tenant"
	"github.com/ahrav/docflow/internal/infra/objectstore"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
	"github.com/ahrav/docflow/pkg/common/timeutil"
)

// maxRetentionDays caps the sweep window for campaigns with no explicit
// retention setting.
const maxRetentionDays = 365

// sweepBatchSize bounds how many documents one sweep pass touches per
// tenant.
const sweepBatchSize = 200

// Sweeper walks every active tenant on an interval and retires expired
// documents.
type Sweeper struct {
	tenants   tenant.Repository
	manager   *tenantctx.Manager
	campaigns campaign.Repository
	documents document.Repository
	blobs     objectstore.Store
	audits    audit.Repository
	clock     timeutil.Provider
	interval  time.Duration

	logger *logger.Logger
	tracer trace.Tracer
}

// NewSweeper wires the retention sweeper.
func NewSweeper(
	tenants tenant.Repository,
	manager *tenantctx.Manager,
	campaigns campaign.Repository,
	documents document.Repository,
	blobs objectstore.Store,
	audits audit.Repository,
	interval time.Duration,
	log *logger.Logger,
	tracer trace.Tracer,
) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		tenants:   tenants,
		manager:   manager,
		campaigns: campaigns,
		documents: documents,
		blobs:     blobs,
		audits:    audits,
		clock:     timeutil.Default(),
		interval:  interval,
		logger:    log.With("component", "retention_sweeper"),
		tracer:    tracer,
	}
}

// WithClock overrides the time source, used by tests.
func (s *Sweeper) WithClock(clock timeutil.Provider) *Sweeper {
	s.clock = clock
	return s
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepAll(ctx); err != nil {
				s.logger.Error(ctx, "retention sweep failed", "error", err)
			}
		}
	}
}

// SweepAll sweeps every active tenant once.
func (s *Sweeper) SweepAll(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "retention.SweepAll")
	defer span.End()

	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error listing tenants")
		return err
	}

	for _, t := range tenants {
		tctx, err := s.manager.Bind(ctx, t)
		if err != nil {
			s.logger.Warn(ctx, "skipping tenant in retention sweep",
				"tenant_slug", t.Slug, "error", err)
			continue
		}
		swept, err := s.SweepTenant(tctx)
		if err != nil {
			s.logger.Warn(tctx, "tenant retention sweep failed",
				"tenant_slug", t.Slug, "error", err)
			continue
		}
		if swept > 0 {
			s.logger.Info(tctx, "retention sweep retired documents",
				"tenant_slug", t.Slug, "count", swept)
		}
	}
	return nil
}

// SweepTenant retires expired documents for the tenant bound to the context.
// A document expires when its age exceeds its campaign's retention window.
func (s *Sweeper) SweepTenant(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "retention.SweepTenant")
	defer span.End()

	now := s.clock.Now()
	cutoff := now.AddDate(0, 0, -1)
	candidates, err := s.documents.FindExpired(ctx, cutoff, sweepBatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error listing expired documents")
		return 0, err
	}

	retention := map[string]int{}
	swept := 0
	for _, doc := range candidates {
		days, ok := retention[doc.CampaignID]
		if !ok {
			c, err := s.campaigns.FindByID(ctx, doc.CampaignID)
			if err != nil {
				s.logger.Warn(ctx, "skipping document with unknown campaign",
					"document_id", doc.ID, "error", err)
				continue
			}
			days = c.RetentionDays
			if days <= 0 {
				days = maxRetentionDays
			}
			retention[doc.CampaignID] = days
		}

		if doc.CreatedAt.After(now.AddDate(0, 0, -days)) {
			continue
		}

		if err := s.blobs.Delete(ctx, doc.StoragePath); err != nil {
			s.logger.Warn(ctx, "failed to delete document bytes",
				"document_id", doc.ID, "error", err)
			continue
		}
		doc.SoftDelete()
		doc.AppendHistory("document.retention_expired", "")
		if err := s.documents.Update(ctx, doc); err != nil {
			span.RecordError(err)
			return swept, err
		}
		if err := s.audits.Create(ctx, audit.NewEntry(audit.TypeDocument, doc.ID,
			"document.retention_expired", nil, map[string]any{"retention_days": days})); err != nil {
			s.logger.Warn(ctx, "failed to record audit entry", "error", err)
		}
		swept++
	}

	span.SetAttributes(attribute.Int("swept", swept))
	return swept, nil
}
