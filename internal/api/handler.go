// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apperrors "git-analytics-service/internal/errors"
	"git-analytics-service/internal/model"
	"git-analytics-service/internal/store"
	"git-analytics-service/internal/worker"
)

// StatusReporter exposes the polling worker's observable state.
type StatusReporter interface {
	Status() worker.Status
}

// Discoverer refreshes a project's repository list from the source system.
type Discoverer interface {
	Refresh(ctx context.Context, projectName string) ([]model.Repository, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	db     store.Store
	worker StatusReporter
	disc   Discoverer
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
// metricsHandler may be nil to disable the /metrics endpoint.
func NewRouter(db store.Store, w StatusReporter, disc Discoverer, logger *slog.Logger, metricsHandler http.Handler) http.Handler {
	h := &Handler{
		db:     db,
		worker: w,
		disc:   disc,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/requests", h.createRequest)
		r.Get("/requests", h.listRequests)
		r.Get("/requests/{id}", h.getRequest)

		r.Get("/repositories", h.listRepositories)
		r.Get("/repositories/{id}/commits", h.getCommits)
		r.Get("/repositories/{id}/analytics", h.getLatestAnalytics)

		r.Post("/projects/{name}/discover", h.discoverProject)

		r.Get("/worker/status", h.workerStatus)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRequestBody struct {
	ProjectName   string   `json:"project_name"`
	RepositoryIDs []string `json:"repository_ids"`
}

// createRequest enqueues a new analytics request.
// POST /v1/requests
func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if body.ProjectName == "" {
		respondWithError(w, http.StatusBadRequest, "project_name is required")
		return
	}
	if len(body.RepositoryIDs) == 0 {
		respondWithError(w, http.StatusBadRequest, "repository_ids must contain at least one repository")
		return
	}

	req, err := h.db.CreateRequest(r.Context(), body.ProjectName, body.RepositoryIDs)
	if err != nil {
		h.logger.Error("Failed to create analytics request", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusCreated, toRequestResponse(req))
}

// getRequest returns one analytics request.
// GET /v1/requests/{id}
func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request id")
		return
	}

	req, err := h.db.GetRequest(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Request not found")
			return
		}
		h.logger.Error("Failed to get analytics request", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, toRequestResponse(req))
}

// listRequests returns analytics requests, optionally filtered by status.
// GET /v1/requests?status=Requested
func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	status := model.RequestStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondWithError(w, http.StatusBadRequest, "Invalid 'status' parameter")
		return
	}

	requests, err := h.db.ListRequests(r.Context(), status)
	if err != nil {
		h.logger.Error("Failed to list analytics requests", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out := make([]requestResponse, 0, len(requests))
	for i := range requests {
		out = append(out, toRequestResponse(&requests[i]))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// listRepositories returns stored repositories, optionally scoped to one
// project.
// GET /v1/repositories?project_id=
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	var repos []model.Repository
	var err error
	if projectID := r.URL.Query().Get("project_id"); projectID != "" {
		repos, err = h.db.ListRepositoriesByProject(r.Context(), projectID)
	} else {
		repos, err = h.db.ListRepositories(r.Context())
	}
	if err != nil {
		h.logger.Error("Failed to list repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// getCommits returns stored commits for a repository.
// GET /v1/repositories/{id}/commits?limit=N
func (h *Handler) getCommits(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "id")

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > 1000 {
			respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 1000.")
			return
		}
		limit = parsed
	}

	if _, err := h.db.GetRepository(r.Context(), repoID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return
		}
		h.logger.Error("Failed to get repository", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	commits, err := h.db.ListCommits(r.Context(), repoID, limit)
	if err != nil {
		h.logger.Error("Failed to get commits", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, commits)
}

// getLatestAnalytics returns the newest analytics snapshot for a repository.
// GET /v1/repositories/{id}/analytics
func (h *Handler) getLatestAnalytics(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "id")

	result, err := h.db.LatestAnalyticsResult(r.Context(), repoID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "No analytics result for repository")
			return
		}
		h.logger.Error("Failed to get analytics result", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, toResultResponse(result))
}

// discoverProject refreshes the stored repository list of a project from the
// source system and returns the discovered repositories.
// POST /v1/projects/{name}/discover
func (h *Handler) discoverProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	repos, err := h.disc.Refresh(r.Context(), name)
	if err != nil {
		var httpErr *apperrors.ErrHTTPStatus
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			respondWithError(w, http.StatusNotFound, "Project not found")
			return
		}
		h.logger.Error("Failed to discover repositories", "project", name, "error", err)
		respondWithError(w, http.StatusBadGateway, "Failed to discover repositories")
		return
	}

	respondWithJSON(w, http.StatusOK, repos)
}

// workerStatus exposes the polling worker state.
// GET /v1/worker/status
func (h *Handler) workerStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.worker.Status())
}
