package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// trackedUserService defines the minimal interface needed by
// TrackedUserHandler. The repository satisfies it directly.
type trackedUserService interface {
	Add(ctx context.Context, username string) (*domain.TrackedUser, error)
	Remove(ctx context.Context, username string) error
	List(ctx context.Context) ([]domain.TrackedUser, error)
}

// TrackedUserHandler serves tracked user REST endpoints.
type TrackedUserHandler struct {
	svc trackedUserService
	log *slog.Logger
}

// NewTrackedUserHandler creates a TrackedUserHandler.
func NewTrackedUserHandler(logger *slog.Logger, svc trackedUserService) *TrackedUserHandler {
	return &TrackedUserHandler{svc: svc, log: logger.With("handler", "trackedusers")}
}

// Register mounts the tracked user endpoints on mux.
func (h *TrackedUserHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users", h.List)
	mux.HandleFunc("POST /api/users", h.Add)
	mux.HandleFunc("DELETE /api/users/{username}", h.Remove)
}

type trackedUserResponse struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// List handles GET /api/users.
func (h *TrackedUserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "list tracked users", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]trackedUserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, trackedUserResponse{Username: u.Username, CreatedAt: u.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

// Add handles POST /api/users. Adding an already tracked username is a
// no-op that returns the existing record.
func (h *TrackedUserHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	user, err := h.svc.Add(r.Context(), req.Username)
	if err != nil {
		h.log.ErrorContext(r.Context(), "add tracked user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, trackedUserResponse{Username: user.Username, CreatedAt: user.CreatedAt})
}

// Remove handles DELETE /api/users/{username}.
func (h *TrackedUserHandler) Remove(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	if err := h.svc.Remove(r.Context(), username); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not tracked")
			return
		}
		h.log.ErrorContext(r.Context(), "remove tracked user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
