package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// jobService defines the minimal interface needed by JobHandler.
type jobService interface {
	StartRefresh(ctx context.Context, n, batchSize int, ranksURL string) (*domain.FetchJob, error)
	StartTopN(ctx context.Context, n, batchSize int, ranksURL string) (*domain.FetchJob, error)
	StartCollection(ctx context.Context, usernames []string, batchSize int) (*domain.FetchJob, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.FetchJob, error)
	List(ctx context.Context, limit int) ([]domain.FetchJob, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Clear(ctx context.Context) (int, error)
}

// JobHandler serves fetch job REST endpoints.
type JobHandler struct {
	svc jobService
	log *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(logger *slog.Logger, svc jobService) *JobHandler {
	return &JobHandler{svc: svc, log: logger.With("handler", "jobs")}
}

// Register mounts the job endpoints on mux.
func (h *JobHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/jobs/refresh", h.StartRefresh)
	mux.HandleFunc("POST /api/jobs/top", h.StartTopN)
	mux.HandleFunc("POST /api/jobs/collection", h.StartCollection)
	mux.HandleFunc("GET /api/jobs", h.List)
	mux.HandleFunc("GET /api/jobs/{id}", h.Get)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.Cancel)
	mux.HandleFunc("DELETE /api/jobs", h.Clear)
}

type startJobRequest struct {
	N         int      `json:"n"`
	BatchSize int      `json:"batch_size"`
	RanksURL  string   `json:"ranks_url"`
	Usernames []string `json:"usernames"`
}

type jobResponse struct {
	ID         string           `json:"id"`
	Kind       string           `json:"kind"`
	Status     string           `json:"status"`
	Progress   int              `json:"progress"`
	Total      int              `json:"total"`
	Error      *string          `json:"error,omitempty"`
	Params     domain.JobParams `json:"params"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// StartRefresh handles POST /api/jobs/refresh. The body is optional; absent
// fields fall back to configured defaults.
func (h *JobHandler) StartRefresh(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStartRequest(w, r)
	if !ok {
		return
	}

	job, err := h.svc.StartRefresh(r.Context(), req.N, req.BatchSize, req.RanksURL)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// StartTopN handles POST /api/jobs/top.
func (h *JobHandler) StartTopN(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStartRequest(w, r)
	if !ok {
		return
	}

	job, err := h.svc.StartTopN(r.Context(), req.N, req.BatchSize, req.RanksURL)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// StartCollection handles POST /api/jobs/collection.
func (h *JobHandler) StartCollection(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStartRequest(w, r)
	if !ok {
		return
	}

	job, err := h.svc.StartCollection(r.Context(), req.Usernames, req.BatchSize)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// Get handles GET /api/jobs/{id}. The response carries per-phase progress
// for UI polling.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// List handles GET /api/jobs?limit=50, newest first.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	jobs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

// Cancel handles POST /api/jobs/{id}/cancel. The runner honors the request
// at the next phase boundary.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	if err := h.svc.Cancel(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// Clear handles DELETE /api/jobs: the explicit bulk clear of job history.
func (h *JobHandler) Clear(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.Clear(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *JobHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConfiguration):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.ErrorContext(r.Context(), "internal error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeStartRequest reads an optional JSON body. An empty body means
// "use defaults".
func decodeStartRequest(w http.ResponseWriter, r *http.Request) (startJobRequest, bool) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func toJobResponse(job *domain.FetchJob) jobResponse {
	return jobResponse{
		ID:         job.ID.String(),
		Kind:       job.Kind.String(),
		Status:     job.Status.String(),
		Progress:   job.Progress,
		Total:      job.Total,
		Error:      job.Error,
		Params:     job.Params,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
}
