package notion_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notionvault/internal/adapter/driven/notion"
	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *notion.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := notion.NewClientWithHTTPClient(server.Client(), server.URL+"/v1/", "", nil)
	require.NoError(t, err)
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestNewClientWithHTTPClient_NilClient(t *testing.T) {
	_, err := notion.NewClientWithHTTPClient(nil, "", "", nil)
	assert.Error(t, err)
}

// newCachingClient creates a Client through NewClient, the production
// transport stack, pointed at handler.
func newCachingClient(t *testing.T, handler http.Handler) *notion.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return notion.NewClient(server.URL+"/v1", "", time.Second, nil)
}

func TestNewClient_CacheIsScopedPerCredential(t *testing.T) {
	var hits atomic.Int32
	client := newCachingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "private, max-age=60")
		writeJSON(t, w, http.StatusOK, map[string]any{"object": "page", "owner": r.Header.Get("Authorization")})
	}))
	ctx := context.Background()
	get := driven.NotionRequest{Method: http.MethodGet, Path: "/pages/p1"}

	first, err := client.Do(ctx, "secret_A", get)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret_A", first["owner"])

	again, err := client.Do(ctx, "secret_A", get)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret_A", again["owner"])
	assert.Equal(t, int32(1), hits.Load(), "same token is served from its cache")

	other, err := client.Do(ctx, "secret_B", get)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret_B", other["owner"], "cached response must not cross credentials")
	assert.Equal(t, int32(2), hits.Load())
}

func TestNewClient_WritesBypassCache(t *testing.T) {
	var hits atomic.Int32
	client := newCachingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "private, max-age=60")
		writeJSON(t, w, http.StatusOK, map[string]any{"object": "list", "results": []any{}})
	}))
	query := driven.NotionRequest{Method: http.MethodPost, Path: "/databases/db1/query", Body: map[string]any{}}

	for range 2 {
		_, err := client.Do(context.Background(), "secret_A", query)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), hits.Load())
}

func TestNewClient_RateLimitReportsRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header func() string
		min    time.Duration
		max    time.Duration
	}{
		{name: "delay seconds", header: func() string { return "2" }, min: 2 * time.Second, max: 2 * time.Second},
		{name: "http date", header: func() string {
			return time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
		}, min: 25 * time.Second, max: 31 * time.Second},
		{name: "absent", header: func() string { return "" }},
		{name: "malformed", header: func() string { return "soon" }},
		{name: "negative", header: func() string { return "-5" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			client := newCachingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				if v := tt.header(); v != "" {
					w.Header().Set("Retry-After", v)
				}
				writeJSON(t, w, http.StatusTooManyRequests, map[string]any{
					"object": "error", "status": 429, "code": "rate_limited", "message": "Rate limited",
				})
			}))

			_, err := client.Do(context.Background(), "secret_A", driven.NotionRequest{Method: http.MethodGet, Path: "/pages/p1"})

			var apiErr *model.RemoteAPIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
			assert.True(t, apiErr.Retryable())
			assert.GreaterOrEqual(t, apiErr.RetryAfter, tt.min)
			assert.LessOrEqual(t, apiErr.RetryAfter, tt.max)
			assert.Equal(t, int32(1), hits.Load(), "429 is reported, not retried")
		})
	}
}

func TestDo_SendsHeadersAndBody(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotQuery  url.Values
		gotHeader http.Header
		gotBody   map[string]any
	)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotHeader = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		writeJSON(t, w, http.StatusOK, map[string]any{"object": "list", "results": []any{}})
	}))

	resp, err := client.Do(context.Background(), "secret_abc", driven.NotionRequest{
		Method: http.MethodPost,
		Path:   "/databases/db1/query",
		Query:  url.Values{"filter_properties": {"title"}},
		Body:   map[string]any{"page_size": 10},
	})
	require.NoError(t, err)

	assert.Equal(t, "list", resp["object"])
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/databases/db1/query", gotPath)
	assert.Equal(t, "title", gotQuery.Get("filter_properties"))
	assert.Equal(t, "Bearer secret_abc", gotHeader.Get("Authorization"))
	assert.Equal(t, notion.DefaultVersion, gotHeader.Get("Notion-Version"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "notionvault/1.0", gotHeader.Get("User-Agent"))
	assert.EqualValues(t, 10, gotBody["page_size"])
}

func TestDo_GetHasNoBody(t *testing.T) {
	var contentLength int64 = -2

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentLength = r.ContentLength
		writeJSON(t, w, http.StatusOK, map[string]any{"object": "page", "id": "p1"})
	}))

	resp, err := client.Do(context.Background(), "ntn_abc", driven.NotionRequest{Method: http.MethodGet, Path: "/pages/p1"})
	require.NoError(t, err)
	assert.Equal(t, "p1", resp["id"])
	assert.Zero(t, contentLength)
}

func TestDo_RemoteErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        any
		wantCode    string
		wantMessage string
		wantKind    model.RemoteErrorKind
		retryable   bool
		auth        bool
	}{
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			body:        map[string]any{"object": "error", "code": "unauthorized", "message": "API token is invalid."},
			wantCode:    "unauthorized",
			wantMessage: "API token is invalid.",
			wantKind:    model.RemoteUnauthorized,
			auth:        true,
		},
		{
			name:        "not found with nested message",
			status:      http.StatusNotFound,
			body:        map[string]any{"error": map[string]any{"message": "Could not find page."}},
			wantMessage: "Could not find page.",
			wantKind:    model.RemoteNotFound,
		},
		{
			name:        "rate limited without message",
			status:      http.StatusTooManyRequests,
			body:        map[string]any{"code": "rate_limited"},
			wantCode:    "rate_limited",
			wantMessage: "Unknown Notion API error",
			wantKind:    model.RemoteRateLimited,
			retryable:   true,
		},
		{
			name:        "server error",
			status:      http.StatusBadGateway,
			body:        map[string]any{"message": "upstream"},
			wantMessage: "upstream",
			wantKind:    model.RemoteServerError,
			retryable:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(t, w, tt.status, tt.body)
			}))

			_, err := client.Do(context.Background(), "secret_abc", driven.NotionRequest{Method: http.MethodGet, Path: "/pages/p1"})

			var apiErr *model.RemoteAPIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantKind, apiErr.Kind())
			assert.Equal(t, tt.retryable, model.IsRetryable(err))
			assert.Equal(t, tt.auth, model.IsAuthError(err))
		})
	}
}

func TestDo_InvalidJSON(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "html on success", status: http.StatusOK, body: "<html>oops</html>"},
		{name: "html on error status", status: http.StatusInternalServerError, body: "<html>bad gateway</html>"},
		{name: "json null", status: http.StatusOK, body: "null"},
		{name: "json array", status: http.StatusOK, body: "[1,2,3]"},
		{name: "empty", status: http.StatusOK, body: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))

			_, err := client.Do(context.Background(), "secret_abc", driven.NotionRequest{Method: http.MethodGet, Path: "/users/me"})

			var invalid *model.InvalidResponseError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.status, invalid.StatusCode)
			assert.True(t, model.IsRetryable(err))

			var apiErr *model.RemoteAPIError
			assert.False(t, errors.As(err, &apiErr))
		})
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := notion.NewClientWithHTTPClient(&http.Client{}, baseURL, "", nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), "secret_abc", driven.NotionRequest{Method: http.MethodGet, Path: "/users/me"})

	var netErr *model.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "/users/me", netErr.Path)
	assert.True(t, model.IsRetryable(err))
}

func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client, err := notion.NewClientWithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}, server.URL, "", nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), "secret_abc", driven.NotionRequest{Method: http.MethodGet, Path: "/users/me"})

	var netErr *model.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestDo_DoesNotFollowRedirects(t *testing.T) {
	followed := false
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/pages/p1", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/v1/elsewhere", http.StatusFound)
	})
	mux.HandleFunc("/v1/elsewhere", func(w http.ResponseWriter, _ *http.Request) {
		followed = true
		writeJSON(t, w, http.StatusOK, map[string]any{"object": "page"})
	})

	client := newTestClient(t, mux)

	_, err := client.Do(context.Background(), "secret_abc", driven.NotionRequest{Method: http.MethodGet, Path: "/pages/p1"})

	assert.False(t, followed)
	var invalid *model.InvalidResponseError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, http.StatusFound, invalid.StatusCode)
}

func TestDo_CustomVersion(t *testing.T) {
	var version string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version = r.Header.Get("Notion-Version")
		writeJSON(t, w, http.StatusOK, map[string]any{"object": "user"})
	}))
	t.Cleanup(server.Close)

	client, err := notion.NewClientWithHTTPClient(server.Client(), server.URL, "2025-09-03", nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), "secret_abc", driven.NotionRequest{Method: http.MethodGet, Path: "/users/me"})
	require.NoError(t, err)
	assert.Equal(t, "2025-09-03", version)
}
