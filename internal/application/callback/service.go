// Package callback routes unauthenticated external callbacks to the tenant
// workflow awaiting them. The transaction-id mapping lives in the central
// database because the inbound request carries no tenant identity.
package callback

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/application/event"
	"github.com/ahrav/docflow/internal/domain/callback"
	"github.com/ahrav/docflow/internal/domain/fault"
	"github.com/ahrav/docflow/internal/domain/tenant"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
)

// Signaler delivers callback signals to workflows. Implemented by the
// workflow engine.
type Signaler interface {
	Signal(ctx context.Context, workflowID, signalName string, payload map[string]any) error
}

// Service owns transaction-id mappings: registration when a step suspends,
// lookup and signal delivery when the external callback arrives.
type Service struct {
	mappings callback.Repository
	tenants  tenant.Repository
	manager  *tenantctx.Manager
	signaler Signaler
	bus      event.Publisher

	logger *logger.Logger
	tracer trace.Tracer
}

// NewService wires the callback service against the central database.
func NewService(
	mappings callback.Repository,
	tenants tenant.Repository,
	manager *tenantctx.Manager,
	signaler Signaler,
	bus event.Publisher,
	log *logger.Logger,
	tracer trace.Tracer,
) *Service {
	return &Service{
		mappings: mappings,
		tenants:  tenants,
		manager:  manager,
		signaler: signaler,
		bus:      bus,
		logger:   log.With("component", "callback_service"),
		tracer:   tracer,
	}
}

// SetSignaler attaches the workflow engine. The engine is constructed after
// this service because the activity runner registers callbacks through it.
func (s *Service) SetSignaler(sig Signaler) { s.signaler = sig }

// Register stores the mapping for a freshly issued transaction id,
// idempotent on the id. Called by the activity runner when a step suspends.
func (s *Service) Register(ctx context.Context, transactionID, tenantID, documentID, executionID, workflowID string, metadata map[string]any) error {
	ctx, span := s.tracer.Start(ctx, "callback.Register", trace.WithAttributes(
		attribute.String("transaction_id", transactionID),
		attribute.String("workflow_id", workflowID),
	))
	defer span.End()

	m := callback.New(transactionID, tenantID, documentID, executionID, workflowID, metadata)
	if err := s.mappings.Upsert(ctx, m); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error upserting callback mapping")
		return err
	}
	return nil
}

// Lookup retrieves the mapping for a transaction id.
func (s *Service) Lookup(ctx context.Context, transactionID string) (*callback.Mapping, error) {
	return s.mappings.FindByTransactionID(ctx, transactionID)
}

// HandleCallback processes an inbound external callback: it records the
// terminal status on the mapping, binds the owning tenant's scope, and
// signals the suspended workflow. Duplicate deliveries keep the first
// recorded status and redeliver its signal best-effort.
func (s *Service) HandleCallback(ctx context.Context, transactionID, status string) (*callback.Mapping, error) {
	ctx, span := s.tracer.Start(ctx, "callback.HandleCallback", trace.WithAttributes(
		attribute.String("transaction_id", transactionID),
		attribute.String("status", status),
	))
	defer span.End()

	st, err := parseStatus(status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown callback status")
		return nil, err
	}

	m, err := s.mappings.FindByTransactionID(ctx, transactionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "callback mapping not found")
		return nil, err
	}
	if m.CallbackReceivedAt != nil {
		span.AddEvent("duplicate callback")
		// The first delivery's signal may have raced the suspension write or
		// died with the process. Redeliver so a still-suspended workflow is
		// never stranded; terminal workflows ignore the extra signal.
		if err := s.signalWorkflow(ctx, m); err != nil {
			s.logger.Warn(ctx, "duplicate callback redelivery failed",
				"transaction_id", transactionID, "error", err)
		}
		return m, nil
	}

	m.RecordCallback(st)
	if err := s.mappings.Update(ctx, m); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error updating callback mapping")
		return nil, err
	}

	// The mapping now holds the outcome durably; signal failures must not
	// fail the callback, a suspended workflow picks the signal up from the
	// mapping on resume.
	if err := s.signalWorkflow(ctx, m); err != nil {
		span.AddEvent("signal deferred to resume")
		s.logger.Warn(ctx, "callback recorded but signal not delivered",
			"transaction_id", transactionID, "workflow_id", m.WorkflowID, "error", err)
	} else {
		s.logger.Info(ctx, "callback delivered",
			"transaction_id", transactionID, "status", string(st), "workflow_id", m.WorkflowID)
	}

	e := event.New(event.TypeCallbackReceived, m.TenantID)
	e.DocumentID = m.DocumentID
	e.ExecutionID = m.ExecutionID
	e.Payload = signalPayload(m)
	s.bus.Publish(e)

	span.SetStatus(codes.Ok, "callback recorded")
	return m, nil
}

// PendingSignal reports the terminal callback recorded for a transaction id,
// if any. The workflow engine consults it for workflows found suspended at
// boot, whose in-memory signal was lost with the previous process.
func (s *Service) PendingSignal(ctx context.Context, transactionID string) (map[string]any, bool, error) {
	m, err := s.mappings.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, callback.ErrMappingNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if m.CallbackReceivedAt == nil {
		return nil, false, nil
	}
	return signalPayload(m), true, nil
}

// signalWorkflow binds the mapping's tenant and delivers its signal.
func (s *Service) signalWorkflow(ctx context.Context, m *callback.Mapping) error {
	t, err := s.tenants.FindByID(ctx, m.TenantID)
	if err != nil {
		return err
	}
	tctx, err := s.manager.Bind(ctx, t)
	if err != nil {
		return err
	}
	return s.signaler.Signal(tctx, m.WorkflowID, m.TransactionID, signalPayload(m))
}

// signalPayload builds the payload a workflow receives for a recorded
// callback.
func signalPayload(m *callback.Mapping) map[string]any {
	return map[string]any{
		"status":         string(m.Status),
		"transaction_id": m.TransactionID,
	}
}

// MarkFetchCompleted records the outcome of the downstream result fetch that
// follows an approved callback.
func (s *Service) MarkFetchCompleted(ctx context.Context, transactionID string, ok bool) error {
	m, err := s.mappings.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return err
	}
	st := callback.StatusFetchDone
	if !ok {
		st = callback.StatusFetchFailed
	}
	m.RecordFetchCompleted(st)
	return s.mappings.Update(ctx, m)
}

// parseStatus maps the provider's status query parameter onto the mapping
// status taxonomy.
func parseStatus(status string) (callback.Status, error) {
	switch status {
	case "auto_approved", "approved", "success":
		return callback.StatusApproved, nil
	case "declined", "rejected":
		return callback.StatusDeclined, nil
	case "expired", "timeout":
		return callback.StatusExpired, nil
	default:
		return "", fault.Input("unknown callback status %q", status)
	}
}
