package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hszk-dev/hlspublish/internal/domain/model"
	"github.com/hszk-dev/hlspublish/internal/domain/repository"
	"github.com/hszk-dev/hlspublish/internal/usecase"
)

type JobResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	State     string `json:"state"`
	Src       string `json:"src,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// JobHandler exposes the state of upload jobs.
type JobHandler struct {
	svc usecase.JobService
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(svc usecase.JobService) *JobHandler {
	return &JobHandler{svc: svc}
}

// Get handles GET /v1/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_job_id", "Job ID must be a valid UUID")
		return
	}

	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			Error(w, http.StatusNotFound, "job_not_found", "Job not found")
		default:
			Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		}
		return
	}

	JSON(w, http.StatusOK, toJobResponse(job))
}

func toJobResponse(j *model.Job) JobResponse {
	return JobResponse{
		ID:        j.ID.String(),
		Title:     j.Title,
		State:     j.State.String(),
		Src:       j.PlaybackURL,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}
