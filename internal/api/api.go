// Package api exposes the HTTP surface: tenant-scoped document ingestion and
// job queries under /v1, and the public provider callback under /kyc.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/application/callback"
	"github.com/ahrav/docflow/internal/application/jobs"
	"github.com/ahrav/docflow/internal/domain/tenant"
	"github.com/ahrav/docflow/internal/platform/tenantctx"
	"github.com/ahrav/docflow/pkg/common/logger"
)

// tenantHeader carries the tenant slug on every /v1 request.
const tenantHeader = "X-Tenant"

// maxUploadBytes caps multipart uploads before campaign limits are applied.
const maxUploadBytes = 64 << 20

// Server holds the handler dependencies for the HTTP API.
type Server struct {
	tenants   tenant.Repository
	manager   *tenantctx.Manager
	jobs      *jobs.Manager
	callbacks *callback.Service

	logger *logger.Logger
	tracer trace.Tracer
}

// NewServer creates the HTTP API server.
func NewServer(
	tenants tenant.Repository,
	manager *tenantctx.Manager,
	jobManager *jobs.Manager,
	callbacks *callback.Service,
	log *logger.Logger,
	tracer trace.Tracer,
) *Server {
	return &Server{
		tenants:   tenants,
		manager:   manager,
		jobs:      jobManager,
		callbacks: callbacks,
		logger:    log,
		tracer:    tracer,
	}
}

// Router builds the route tree with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// The provider redirects end users here; no tenant header is present.
	// Tenant resolution happens through the transaction mapping instead.
	r.Get("/kyc/callback/{transactionID}", s.handleKYCCallback)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.withTenant)
		r.Post("/campaigns/{slug}/documents", s.handleUpload)
		r.Get("/jobs/{publicID}", s.handleGetJob)
		r.Get("/jobs/{publicID}/progress", s.handleGetProgress)
		r.Post("/jobs/{publicID}/cancel", s.handleCancelJob)
	})

	return otelhttp.NewHandler(r, "docflow.api")
}
