package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/notionvault/internal/application"
	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

const maxBodyBytes = 1 << 20

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	provider  *application.ServiceProvider
	store     driven.CredentialStore
	sanitizer *bluemonday.Policy
	metrics   http.Handler
	logger    *slog.Logger
}

// NewHandler creates a Handler. metrics may be nil, in which case /metrics
// is not registered.
func NewHandler(provider *application.ServiceProvider, metrics http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		provider:  provider,
		store:     provider.Store(),
		sanitizer: bluemonday.StrictPolicy(),
		metrics:   metrics,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. observer may be nil.
func NewServeMux(h *Handler, observer RequestObserver, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	const ws = "/api/v1/apps/{app}/workspaces/{workspace}"

	// Credentials.
	mux.HandleFunc("POST /api/v1/apps/{app}/workspaces", h.StoreCredentials)
	mux.HandleFunc("GET /api/v1/apps/{app}/workspaces", h.ListWorkspaces)
	mux.HandleFunc("GET "+ws, h.GetWorkspace)
	mux.HandleFunc("DELETE "+ws, h.DeleteWorkspace)
	mux.HandleFunc("POST "+ws+"/disable", h.DisableWorkspace)
	mux.HandleFunc("POST "+ws+"/test", h.TestWorkspace)
	mux.HandleFunc("GET "+ws+"/config", h.GetConfiguration)
	mux.HandleFunc("PUT "+ws+"/config", h.UpdateConfiguration)
	mux.HandleFunc("DELETE "+ws+"/cache", h.ClearCache)

	// Notion API.
	mux.HandleFunc("POST "+ws+"/search", h.Search)
	mux.HandleFunc("POST "+ws+"/databases/{database}/query", h.QueryDatabase)
	mux.HandleFunc("POST "+ws+"/pages", h.CreatePage)
	mux.HandleFunc("GET "+ws+"/pages/{page}", h.GetPage)
	mux.HandleFunc("PATCH "+ws+"/pages/{page}", h.UpdatePage)
	mux.HandleFunc("GET "+ws+"/pages/{page}/properties/{property}", h.GetPageProperty)
	mux.HandleFunc("GET "+ws+"/blocks/{block}/children", h.GetBlockChildren)
	mux.HandleFunc("PATCH "+ws+"/blocks/{block}/children", h.AppendBlockChildren)

	// Operations.
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, limitBody(mux))
	wrapped = loggingMiddleware(logger, observer, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats returns cache and rate limiter statistics.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.Stats())
}

// service resolves the NotionService named by the request path. It writes
// the error response itself and returns nil on failure.
func (h *Handler) service(w http.ResponseWriter, r *http.Request) *application.NotionService {
	svc, err := h.provider.Get(r.Context(), r.PathValue("app"), r.PathValue("workspace"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil
	}
	return svc
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &model.ValidationError{Reason: "invalid request body"}
	}
	return nil
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		apiErr *model.RemoteAPIError
		netErr *model.NetworkError
	)
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr):
		status := apiErr.StatusCode
		switch status {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
			http.StatusNotFound, http.StatusConflict, http.StatusTooManyRequests:
		default:
			status = http.StatusInternalServerError
		}
		h.logger.Warn("notion api rejected request",
			"path", r.URL.Path,
			"status", apiErr.StatusCode,
			"code", apiErr.Code,
		)
		writeJSON(w, status, errorResponse{Error: apiErr.UserMessage(), Code: apiErr.Code})
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, application.UserMessage(err))
	case errors.As(err, &netErr):
		h.logger.Warn("notion api unreachable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, application.UserMessage(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("request abandoned", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "request cancelled")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, application.UserMessage(err))
	}
}
