package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ahrav/docflow/internal/domain/callback"
	"github.com/ahrav/docflow/internal/domain/campaign"
	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/fault"
	"github.com/ahrav/docflow/internal/domain/job"
	"github.com/ahrav/docflow/internal/domain/tenant"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondError maps domain errors onto HTTP status codes. Unrecognized errors
// become opaque 500s so internals never leak to callers.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, campaign.ErrCampaignNotFound),
		errors.Is(err, document.ErrDocumentNotFound),
		errors.Is(err, job.ErrJobNotFound),
		errors.Is(err, callback.ErrMappingNotFound):
		s.respond(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, tenant.ErrTenantSuspended):
		s.respond(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, job.ErrActiveJobExists):
		s.respond(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, campaign.ErrCampaignInactive):
		s.respond(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		var fe *fault.Error
		if errors.As(err, &fe) && !fe.Retryable() {
			s.respond(w, http.StatusBadRequest, errorResponse{Error: fe.Message()})
			return
		}
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		s.respond(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
