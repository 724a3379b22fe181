package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type jobResponse struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	CurrentStep int        `json:"current_step"`
	TotalSteps  int        `json:"total_steps"`
	Attempts    int        `json:"attempts"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type progressResponse struct {
	JobID           string    `json:"job_id"`
	State           string    `json:"state"`
	TotalStages     int       `json:"total_stages"`
	CompletedStages int       `json:"completed_stages"`
	Percentage      float64   `json:"percentage"`
	CurrentStage    string    `json:"current_stage"`
	Status          string    `json:"status"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "api.handleGetJob")
	defer span.End()

	j, err := s.jobs.GetJob(ctx, chi.URLParam(r, "publicID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respond(w, http.StatusOK, jobResponse{
		ID:          j.PublicID,
		State:       string(j.State),
		CurrentStep: j.CurrentProcessorIndex,
		TotalSteps:  j.Pipeline.Len(),
		Attempts:    j.Attempts,
		Error:       j.ErrorMessage,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "api.handleGetProgress")
	defer span.End()

	j, p, err := s.jobs.GetProgress(ctx, chi.URLParam(r, "publicID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respond(w, http.StatusOK, progressResponse{
		JobID:           j.PublicID,
		State:           string(j.State),
		TotalStages:     p.TotalStages,
		CompletedStages: p.CompletedStages,
		Percentage:      p.Percentage,
		CurrentStage:    p.CurrentStage,
		Status:          p.Status,
		UpdatedAt:       p.UpdatedAt,
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "api.handleCancelJob")
	defer span.End()

	if err := s.jobs.Cancel(ctx, chi.URLParam(r, "publicID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
