// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

const maxPageSize = 100

// NotionDeps holds the collaborators a NotionService needs. Cache, Limiter
// and Flight are shared by every service of the process so that limits and
// cached entries are per (app, workspace), not per service instance.
type NotionDeps struct {
	Store    driven.CredentialStore
	API      driven.NotionAPI
	Cache    driven.ResponseCache
	Limiter  driven.RateLimiter
	Observer driven.CallObserver // optional
	Logger   *slog.Logger        // optional
	Flight   *singleflight.Group // optional
}

// NotionService is a Notion API client bound to one (app, workspace)
// credential. Reads go through the response cache; every remote call is
// admitted by the rate limiter first.
type NotionService struct {
	store    driven.CredentialStore
	api      driven.NotionAPI
	cache    driven.ResponseCache
	limiter  driven.RateLimiter
	observer driven.CallObserver
	logger   *slog.Logger
	flight   *singleflight.Group

	appName       string
	workspaceID   string
	workspaceName string
	token         string
	scope         string
}

// NewNotionService resolves and decrypts the credential for (appName,
// workspaceID) once. It fails with the store's error, typically wrapping
// model.ErrNotFound or a *model.DecryptionFailureError, if none is usable.
func NewNotionService(ctx context.Context, deps NotionDeps, appName, workspaceID string) (*NotionService, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	cred, err := deps.Store.Get(ctx, appName, workspaceID)
	if err != nil {
		return nil, err
	}

	return newNotionService(deps, appName, workspaceID, *cred), nil
}

// NewNotionServiceWithCredentials builds a service around a token that has
// not been stored, so it can be probed before it is persisted.
func NewNotionServiceWithCredentials(deps NotionDeps, appName, workspaceID string, cred model.Credential) (*NotionService, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cred.Token == "" {
		return nil, &model.ValidationError{Field: "api_key", Reason: "required"}
	}
	return newNotionService(deps, appName, workspaceID, cred), nil
}

func (d NotionDeps) validate() error {
	if d.Store == nil || d.API == nil || d.Cache == nil || d.Limiter == nil {
		return fmt.Errorf("notion service: store, api, cache and limiter are required: %w", model.ErrConfiguration)
	}
	return nil
}

func newNotionService(deps NotionDeps, appName, workspaceID string, cred model.Credential) *NotionService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	flight := deps.Flight
	if flight == nil {
		flight = &singleflight.Group{}
	}

	return &NotionService{
		store:         deps.Store,
		api:           deps.API,
		cache:         deps.Cache,
		limiter:       deps.Limiter,
		observer:      observer,
		logger:        logger.With("app", appName, "workspace", workspaceID),
		flight:        flight,
		appName:       appName,
		workspaceID:   workspaceID,
		workspaceName: cred.WorkspaceName,
		token:         cred.Token,
		scope:         scopePrefix(appName, workspaceID),
	}
}

// AppName returns the application the service is bound to.
func (s *NotionService) AppName() string { return s.appName }

// WorkspaceID returns the workspace the service is bound to.
func (s *NotionService) WorkspaceID() string { return s.workspaceID }

// WorkspaceName returns the display name stored with the credential.
func (s *NotionService) WorkspaceName() string { return s.workspaceName }

// QueryDatabase runs one page of a database query. Results are cached for
// model.QueryCacheTTL under a hash of every query parameter.
func (s *NotionService) QueryDatabase(ctx context.Context, databaseID string, q model.DatabaseQuery) (model.Response, error) {
	if databaseID == "" {
		return nil, &model.ValidationError{Field: "database_id", Reason: "required"}
	}

	body := map[string]any{"page_size": clampPageSize(q.PageSize)}
	if len(q.Filter) > 0 {
		body["filter"] = q.Filter
	}
	if len(q.Sorts) > 0 {
		body["sorts"] = q.Sorts
	}
	if q.StartCursor != "" {
		body["start_cursor"] = q.StartCursor
	}

	hash, err := paramsHash(body)
	if err != nil {
		return nil, err
	}

	return s.cachedRead(ctx, opDatabaseQuery, cacheKey(s.scope, opDatabaseQuery, databaseID, hash), model.QueryCacheTTL, driven.NotionRequest{
		Method: http.MethodPost,
		Path:   "/databases/" + url.PathEscape(databaseID) + "/query",
		Body:   body,
	})
}

// QueryDatabasePages iterates every result of a database query, following
// next_cursor until the server reports no more pages. Each range starts again
// from the first page. Iteration stops after yielding the first error.
func (s *NotionService) QueryDatabasePages(ctx context.Context, databaseID string, filter map[string]any, sorts []map[string]any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		q := model.DatabaseQuery{Filter: filter, Sorts: sorts, PageSize: maxPageSize}
		for {
			resp, err := s.QueryDatabase(ctx, databaseID, q)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, item := range resp.Results() {
				if !yield(item, nil) {
					return
				}
			}

			next := resp.NextCursor()
			if next == "" || next == q.StartCursor {
				return
			}
			q.StartCursor = next
		}
	}
}

// GetPage returns a page object, cached for model.ReadCacheTTL.
func (s *NotionService) GetPage(ctx context.Context, pageID string) (model.Response, error) {
	if pageID == "" {
		return nil, &model.ValidationError{Field: "page_id", Reason: "required"}
	}

	return s.cachedRead(ctx, opPage, cacheKey(s.scope, opPage, pageID), model.ReadCacheTTL, driven.NotionRequest{
		Method: http.MethodGet,
		Path:   "/pages/" + url.PathEscape(pageID),
	})
}

// UpdatePage patches page properties and drops the cached page and its
// cached property reads.
func (s *NotionService) UpdatePage(ctx context.Context, pageID string, properties map[string]any) (model.Response, error) {
	if pageID == "" {
		return nil, &model.ValidationError{Field: "page_id", Reason: "required"}
	}

	resp, err := s.call(ctx, "update_page", driven.NotionRequest{
		Method: http.MethodPatch,
		Path:   "/pages/" + url.PathEscape(pageID),
		Body:   map[string]any{"properties": properties},
	})
	if err != nil {
		return nil, err
	}

	s.cache.Delete(cacheKey(s.scope, opPage, pageID))
	s.cache.DeletePrefix(cacheKey(s.scope, opPageProperty, pageID) + ":")
	return resp, nil
}

// CreatePage creates a page in a database, optionally with child blocks, and
// drops cached queries of that database.
func (s *NotionService) CreatePage(ctx context.Context, parentDatabaseID string, properties map[string]any, children []any) (model.Response, error) {
	if parentDatabaseID == "" {
		return nil, &model.ValidationError{Field: "parent_database_id", Reason: "required"}
	}

	body := map[string]any{
		"parent":     map[string]any{"database_id": parentDatabaseID},
		"properties": properties,
	}
	if children != nil {
		body["children"] = children
	}

	resp, err := s.call(ctx, "create_page", driven.NotionRequest{
		Method: http.MethodPost,
		Path:   "/pages",
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	s.cache.DeletePrefix(cacheKey(s.scope, opDatabaseQuery, parentDatabaseID) + ":")
	return resp, nil
}

// GetPageProperty returns one property item of a page, cached for
// model.ReadCacheTTL.
func (s *NotionService) GetPageProperty(ctx context.Context, pageID, propertyID string) (model.Response, error) {
	switch {
	case pageID == "":
		return nil, &model.ValidationError{Field: "page_id", Reason: "required"}
	case propertyID == "":
		return nil, &model.ValidationError{Field: "property_id", Reason: "required"}
	}

	return s.cachedRead(ctx, opPageProperty, cacheKey(s.scope, opPageProperty, pageID, propertyID), model.ReadCacheTTL, driven.NotionRequest{
		Method: http.MethodGet,
		Path:   "/pages/" + url.PathEscape(pageID) + "/properties/" + url.PathEscape(propertyID),
	})
}

// GetBlockChildren returns one page of a block's children, cached for
// model.ReadCacheTTL per (page size, cursor).
func (s *NotionService) GetBlockChildren(ctx context.Context, blockID string, pageSize int, startCursor string) (model.Response, error) {
	if blockID == "" {
		return nil, &model.ValidationError{Field: "block_id", Reason: "required"}
	}

	size := clampPageSize(pageSize)
	query := url.Values{"page_size": {strconv.Itoa(size)}}
	if startCursor != "" {
		query.Set("start_cursor", startCursor)
	}

	hash, err := paramsHash(map[string]any{"page_size": size, "start_cursor": startCursor})
	if err != nil {
		return nil, err
	}

	return s.cachedRead(ctx, opBlocks, cacheKey(s.scope, opBlocks, blockID, hash), model.ReadCacheTTL, driven.NotionRequest{
		Method: http.MethodGet,
		Path:   "/blocks/" + url.PathEscape(blockID) + "/children",
		Query:  query,
	})
}

// AppendBlockChildren appends blocks and drops every cached children page of
// the block.
func (s *NotionService) AppendBlockChildren(ctx context.Context, blockID string, children []any) (model.Response, error) {
	if blockID == "" {
		return nil, &model.ValidationError{Field: "block_id", Reason: "required"}
	}
	if children == nil {
		children = []any{}
	}

	resp, err := s.call(ctx, "append_block_children", driven.NotionRequest{
		Method: http.MethodPatch,
		Path:   "/blocks/" + url.PathEscape(blockID) + "/children",
		Body:   map[string]any{"children": children},
	})
	if err != nil {
		return nil, err
	}

	s.cache.DeletePrefix(cacheKey(s.scope, opBlocks, blockID) + ":")
	return resp, nil
}

// Search searches pages and databases shared with the integration. sort is
// "" or model.SearchSortRelevance for relevance order, or
// model.SearchSortLastEditedTime for newest first.
func (s *NotionService) Search(ctx context.Context, query, sort string) (model.Response, error) {
	body := map[string]any{"query": query}
	switch sort {
	case "", model.SearchSortRelevance:
	case model.SearchSortLastEditedTime:
		body["sort"] = map[string]any{"direction": "descending", "timestamp": sort}
	default:
		return nil, &model.ValidationError{Field: "sort", Reason: fmt.Sprintf("unsupported value %q", sort)}
	}

	hash, err := paramsHash(body)
	if err != nil {
		return nil, err
	}

	return s.cachedRead(ctx, opSearch, cacheKey(s.scope, opSearch, hash), model.QueryCacheTTL, driven.NotionRequest{
		Method: http.MethodPost,
		Path:   "/search",
		Body:   body,
	})
}

// Probe runs an uncached minimal search to check that the token is accepted.
func (s *NotionService) Probe(ctx context.Context) error {
	_, err := s.call(ctx, "probe", driven.NotionRequest{
		Method: http.MethodPost,
		Path:   "/search",
		Body:   map[string]any{"query": "test", "page_size": 1},
	})
	return err
}

// ClearCache drops every cached response of this (app, workspace) pair and
// returns how many entries were removed.
func (s *NotionService) ClearCache() int {
	return s.cache.DeletePrefix(s.scope)
}

// cachedRead returns the cached response for key or fetches it once,
// coalescing concurrent misses on the same key.
//
// The same response value is stored in the cache and handed to every
// singleflight caller, so each caller gets its own shallow copy. Nested
// objects and arrays stay shared and must be treated as read-only.
func (s *NotionService) cachedRead(ctx context.Context, op, key string, ttl time.Duration, req driven.NotionRequest) (model.Response, error) {
	if v, ok := s.cache.Get(key); ok {
		if resp, ok := v.(model.Response); ok {
			s.observer.ObserveCacheLookup(op, true)
			s.logger.Debug("notion cache hit", "op", op)
			return maps.Clone(resp), nil
		}
	}
	s.observer.ObserveCacheLookup(op, false)
	s.logger.Debug("notion cache miss", "op", op)

	v, err, _ := s.flight.Do(key, func() (any, error) {
		resp, err := s.call(ctx, op, req)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, resp, ttl)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(v.(model.Response)), nil
}

// call performs one rate-limited remote request. Quota is consumed only when
// the request succeeds. A Retry-After on a remote error holds the whole
// (app, workspace) key in the limiter, not just this caller.
func (s *NotionService) call(ctx context.Context, op string, req driven.NotionRequest) (model.Response, error) {
	reservation, err := s.limiter.Reserve(ctx, s.appName, s.workspaceID)
	if err != nil {
		return nil, fmt.Errorf("wait for rate limit on %s/%s: %w", s.appName, s.workspaceID, err)
	}

	start := time.Now()
	resp, err := s.api.Do(ctx, s.token, req)
	s.observer.ObserveCall(op, err, time.Since(start))
	if err != nil {
		reservation.Cancel()
		var apiErr *model.RemoteAPIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			s.limiter.Defer(s.appName, s.workspaceID, apiErr.RetryAfter)
		}
		return nil, err
	}
	reservation.Commit()

	s.recordUsage(ctx)
	return resp, nil
}

// recordUsage is telemetry; a failure is logged and never returned.
func (s *NotionService) recordUsage(ctx context.Context) {
	if err := s.store.RecordUsage(context.WithoutCancel(ctx), s.appName, s.workspaceID); err != nil {
		s.logger.Warn("failed to record credential usage", "error", err)
	}
}

func clampPageSize(n int) int {
	if n <= 0 || n > maxPageSize {
		return maxPageSize
	}
	return n
}

// UserMessage returns an end-user message for err. Remote API errors get a
// per-status message; everything else a generic one.
func UserMessage(err error) string {
	var apiErr *model.RemoteAPIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.UserMessage()
	case errors.Is(err, model.ErrNotFound):
		return "No active Notion credentials for this workspace."
	case errors.Is(err, model.ErrDecryption):
		return "Stored Notion credentials could not be read. Please store them again."
	case errors.Is(err, model.ErrValidation):
		return err.Error()
	case model.IsRetryable(err):
		return "Could not reach Notion API. Please try again later."
	default:
		return "An error occurred while communicating with Notion API."
	}
}

type noopObserver struct{}

func (noopObserver) ObserveCall(string, error, time.Duration) {}
func (noopObserver) ObserveCacheLookup(string, bool)         {}
