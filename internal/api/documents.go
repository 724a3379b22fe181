package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ahrav/docflow/internal/application/jobs"
)

type uploadResponse struct {
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
	State      string `json:"state"`
}

// handleUpload accepts a multipart upload and enqueues it for processing
// through the campaign pipeline.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "api.handleUpload")
	defer span.End()

	campaignSlug := chi.URLParam(r, "slug")

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart body"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "missing file field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(data) > maxUploadBytes {
		s.respond(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "file exceeds upload limit"})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	up := jobs.Upload{
		Filename: header.Filename,
		MimeType: mimeType,
		Data:     data,
	}
	if userID := r.FormValue("user_id"); userID != "" {
		up.UserID = &userID
	}

	doc, j, err := s.jobs.Ingest(ctx, campaignSlug, up)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respond(w, http.StatusAccepted, uploadResponse{
		DocumentID: doc.PublicID,
		JobID:      j.PublicID,
		State:      string(j.State),
	})
}
