package httphandler

import (
	"net/http"
	"strings"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

// StoreCredentials validates and stores a workspace token for the app.
func (h *Handler) StoreCredentials(w http.ResponseWriter, r *http.Request) {
	var req StoreCredentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	app := r.PathValue("app")
	workspaceID := strings.TrimSpace(req.WorkspaceID)
	if workspaceID == "" || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "workspace_id and api_key are required")
		return
	}

	name := strings.TrimSpace(h.sanitizer.Sanitize(req.WorkspaceName))
	validate := req.Validate == nil || *req.Validate

	id, err := h.provider.StoreAndConnect(r.Context(), app, workspaceID, req.APIKey, name, validate)
	if err != nil {
		if model.IsAuthError(err) {
			writeError(w, http.StatusUnauthorized, "Invalid Notion API key. Please verify your credentials.")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, StoreCredentialsResponse{
		Success:      true,
		CredentialID: id,
		Message:      "Notion credentials stored successfully",
	})
}

// ListWorkspaces returns every stored workspace of the app, active or not.
func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	app := r.PathValue("app")

	summaries, err := h.store.List(r.Context(), app)
	if err != nil {
		h.logger.Error("failed to list workspaces", "app", app, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]WorkspaceResponse, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, toWorkspaceResponse(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetWorkspace returns the detailed view of one active workspace.
func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.GetWorkspaceInfo(r.Context(), r.PathValue("app"), r.PathValue("workspace"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toWorkspaceInfoResponse(*info))
}

// DisableWorkspace soft-deletes a workspace credential.
func (h *Handler) DisableWorkspace(w http.ResponseWriter, r *http.Request) {
	ok, err := h.provider.Disable(r.Context(), r.PathValue("app"), r.PathValue("workspace"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Notion credentials disabled"})
}

// DeleteWorkspace removes a workspace credential permanently.
func (h *Handler) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	ok, err := h.provider.Delete(r.Context(), r.PathValue("app"), r.PathValue("workspace"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TestWorkspace probes the stored credential against the Notion API.
func (h *Handler) TestWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.TestConnection(r.Context(), r.PathValue("app"), r.PathValue("workspace")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Notion API credentials are valid"})
}

// GetConfiguration returns the default database, page and config blob.
func (h *Handler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.GetConfiguration(r.Context(), r.PathValue("app"), r.PathValue("workspace"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toConfigurationBody(*cfg))
}

// UpdateConfiguration replaces the default database, page and config blob.
func (h *Handler) UpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	var req ConfigurationBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := model.WorkspaceConfig{
		DatabaseID: strings.TrimSpace(req.DatabaseID),
		PageID:     strings.TrimSpace(req.PageID),
		Config:     req.Config,
	}

	ok, err := h.store.UpdateConfiguration(r.Context(), r.PathValue("app"), r.PathValue("workspace"), cfg)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}

	writeJSON(w, http.StatusOK, toConfigurationBody(cfg))
}

// ClearCache drops every cached Notion response of the workspace.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	removed := h.provider.ClearCache(r.PathValue("app"), r.PathValue("workspace"))
	writeJSON(w, http.StatusOK, CacheClearResponse{Removed: removed})
}
