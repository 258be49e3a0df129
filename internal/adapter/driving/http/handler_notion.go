package httphandler

import (
	"net/http"
	"strconv"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

// Search searches pages and databases shared with the workspace integration.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc := h.service(w, r)
	if svc == nil {
		return
	}

	resp, err := svc.Search(r.Context(), req.Query, req.Sort)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// QueryDatabase runs a database query. With ?all=true every page is fetched
// and the results are returned in one list.
func (h *Handler) QueryDatabase(w http.ResponseWriter, r *http.Request) {
	var req QueryDatabaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc := h.service(w, r)
	if svc == nil {
		return
	}
	databaseID := r.PathValue("database")

	if r.URL.Query().Get("all") == "true" {
		results := []any{}
		for item, err := range svc.QueryDatabasePages(r.Context(), databaseID, req.Filter, req.Sorts) {
			if err != nil {
				h.writeServiceError(w, r, err)
				return
			}
			results = append(results, item)
		}
		writeJSON(w, http.StatusOK, AllResultsResponse{Object: "list", Results: results, Count: len(results)})
		return
	}

	resp, err := svc.QueryDatabase(r.Context(), databaseID, model.DatabaseQuery{
		Filter:      req.Filter,
		Sorts:       req.Sorts,
		PageSize:    req.PageSize,
		StartCursor: req.StartCursor,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetPage returns a page object.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	svc := h.service(w, r)
	if svc == nil {
		return
	}

	resp, err := svc.GetPage(r.Context(), r.PathValue("page"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdatePage patches page properties.
func (h *Handler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	var req UpdatePageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Properties) == 0 {
		writeError(w, http.StatusBadRequest, "properties are required")
		return
	}

	svc := h.service(w, r)
	if svc == nil {
		return
	}

	resp, err := svc.UpdatePage(r.Context(), r.PathValue("page"), req.Properties)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreatePage creates a page in a database.
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req CreatePageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc := h.service(w, r)
	if svc == nil {
		return
	}

	resp, err := svc.CreatePage(r.Context(), req.ParentDatabaseID, req.Properties, req.Children)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GetPageProperty returns one property item of a page.
func (h *Handler) GetPageProperty(w http.ResponseWriter, r *http.Request) {
	svc := h.service(w, r)
	if svc == nil {
		return
	}

	resp, err := svc.GetPageProperty(r.Context(), r.PathValue("page"), r.PathValue("property"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetBlockChildren returns one page of a block's children. Accepts
// page_size and start_cursor query parameters.
func (h *Handler) GetBlockChildren(w http.ResponseWriter, r *http.Request) {
	pageSize := 0
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid page_size")
			return
		}
		pageSize = n
	}

	svc := h.service(w, r)
	if svc == nil {
		return
	}

	resp, err := svc.GetBlockChildren(r.Context(), r.PathValue("block"), pageSize, r.URL.Query().Get("start_cursor"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// AppendBlockChildren appends blocks to a block or page.
func (h *Handler) AppendBlockChildren(w http.ResponseWriter, r *http.Request) {
	var req AppendChildrenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Children) == 0 {
		writeError(w, http.StatusBadRequest, "children are required")
		return
	}

	svc := h.service(w, r)
	if svc == nil {
		return
	}

	resp, err := svc.AppendBlockChildren(r.Context(), r.PathValue("block"), req.Children)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
