package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StoreCredentialsRequest is the JSON body for the store credentials endpoint.
// Validate defaults to true.
type StoreCredentialsRequest struct {
	WorkspaceID   string `json:"workspace_id"`
	APIKey        string `json:"api_key"`
	WorkspaceName string `json:"workspace_name"`
	Validate      *bool  `json:"validate,omitempty"`
}

// StoreCredentialsResponse is returned after credentials are stored.
type StoreCredentialsResponse struct {
	Success      bool   `json:"success"`
	CredentialID int64  `json:"credential_id"`
	Message      string `json:"message"`
}

// MessageResponse is a generic success body.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WorkspaceResponse is the JSON representation of a stored workspace
// connection. Tokens are never serialized.
type WorkspaceResponse struct {
	ID            int64   `json:"id"`
	WorkspaceID   string  `json:"workspace_id"`
	WorkspaceName string  `json:"workspace_name"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     string  `json:"created_at"`
	LastUsedAt    *string `json:"last_used_at"`
}

// WorkspaceInfoResponse is the detailed view of one active workspace.
type WorkspaceInfoResponse struct {
	WorkspaceResponse
	AppName    string          `json:"app_name"`
	DatabaseID string          `json:"notion_database_id"`
	PageID     string          `json:"notion_page_id"`
	Config     json.RawMessage `json:"config"`
	UpdatedAt  string          `json:"updated_at"`
}

// ConfigurationBody is both the request and response body of the
// configuration endpoints.
type ConfigurationBody struct {
	DatabaseID string          `json:"notion_database_id"`
	PageID     string          `json:"notion_page_id"`
	Config     json.RawMessage `json:"config"`
}

// CacheClearResponse reports how many cache entries were dropped.
type CacheClearResponse struct {
	Removed int `json:"removed"`
}

// SearchRequest is the JSON body for the search endpoint.
type SearchRequest struct {
	Query string `json:"query"`
	Sort  string `json:"sort"`
}

// QueryDatabaseRequest is the JSON body for the database query endpoint.
type QueryDatabaseRequest struct {
	Filter      map[string]any   `json:"filter"`
	Sorts       []map[string]any `json:"sorts"`
	PageSize    int              `json:"page_size"`
	StartCursor string           `json:"start_cursor"`
}

// AllResultsResponse carries every result of a fully paginated query.
type AllResultsResponse struct {
	Object  string `json:"object"`
	Results []any  `json:"results"`
	Count   int    `json:"count"`
}

// UpdatePageRequest is the JSON body for the page update endpoint.
type UpdatePageRequest struct {
	Properties map[string]any `json:"properties"`
}

// CreatePageRequest is the JSON body for the page create endpoint.
type CreatePageRequest struct {
	ParentDatabaseID string         `json:"parent_database_id"`
	Properties       map[string]any `json:"properties"`
	Children         []any          `json:"children,omitempty"`
}

// AppendChildrenRequest is the JSON body for the append block children endpoint.
type AppendChildrenRequest struct {
	Children []any `json:"children"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toWorkspaceResponse converts a domain WorkspaceSummary to its JSON representation.
func toWorkspaceResponse(s model.WorkspaceSummary) WorkspaceResponse {
	return WorkspaceResponse{
		ID:            s.ID,
		WorkspaceID:   s.WorkspaceID,
		WorkspaceName: s.WorkspaceName,
		IsActive:      s.IsActive,
		CreatedAt:     s.CreatedAt.UTC().Format(time.RFC3339),
		LastUsedAt:    formatOptionalTime(s.LastUsedAt),
	}
}

// toWorkspaceInfoResponse converts a domain WorkspaceInfo to its JSON representation.
func toWorkspaceInfoResponse(info model.WorkspaceInfo) WorkspaceInfoResponse {
	return WorkspaceInfoResponse{
		WorkspaceResponse: WorkspaceResponse{
			ID:            info.ID,
			WorkspaceID:   info.WorkspaceID,
			WorkspaceName: info.WorkspaceName,
			IsActive:      info.IsActive,
			CreatedAt:     info.CreatedAt.UTC().Format(time.RFC3339),
			LastUsedAt:    formatOptionalTime(info.LastUsedAt),
		},
		AppName:    info.AppName,
		DatabaseID: info.DatabaseID,
		PageID:     info.PageID,
		Config:     rawOrNull(info.Config),
		UpdatedAt:  info.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// toConfigurationBody converts a domain WorkspaceConfig to its JSON representation.
func toConfigurationBody(cfg model.WorkspaceConfig) ConfigurationBody {
	return ConfigurationBody{
		DatabaseID: cfg.DatabaseID,
		PageID:     cfg.PageID,
		Config:     rawOrNull(cfg.Config),
	}
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
