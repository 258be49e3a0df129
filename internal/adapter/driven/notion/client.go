// Package notion implements the NotionAPI port over HTTPS.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.NotionAPI = (*Client)(nil)

const (
	// DefaultBaseURL is the Notion REST API root.
	DefaultBaseURL = "https://api.notion.com/v1"

	// DefaultVersion is the pinned Notion-Version header value.
	DefaultVersion = "2022-06-28"

	// DefaultTimeout bounds every request end to end.
	DefaultTimeout = 30 * time.Second

	userAgent       = "notionvault/1.0"
	maxResponseBody = 16 << 20
)

// Client sends authenticated JSON requests to the Notion API. The token is
// passed per call so one Client serves every (app, workspace) pair.
type Client struct {
	http    *http.Client
	baseURL string
	version string
	logger  *slog.Logger
}

// NewClient creates a Client whose GET responses go through an httpcache
// store scoped to the calling token, so Cache-Control and ETag revalidation
// never cross credentials. Upstream 429s are not retried here; Do reports
// their Retry-After on the returned *model.RemoteAPIError.
//
// Redirects are never followed and every request is bounded by timeout.
func NewClient(baseURL, version string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{
		Transport: newCredentialCache(http.DefaultTransport),
		Timeout:   timeout,
	}

	c, _ := newClient(httpClient, baseURL, version, logger)
	return c
}

// NewClientWithHTTPClient creates a Client around a caller-supplied
// http.Client. It is intended for tests against an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, version string, logger *slog.Logger) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("http client is required")
	}
	return newClient(httpClient, baseURL, version, logger)
}

func newClient(httpClient *http.Client, baseURL, version string, logger *slog.Logger) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultVersion
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		logger:  logger,
	}, nil
}

// Do sends req with the bearer token and decodes the JSON object response.
// Any body that is not a JSON object is an *model.InvalidResponseError, even
// on error statuses; statuses >= 400 become *model.RemoteAPIError.
func (c *Client) Do(ctx context.Context, token string, req driven.NotionRequest) (model.Response, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Notion-Version", c.version)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &model.NetworkError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &model.NetworkError{Method: req.Method, Path: req.Path, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("notion api call",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"from_cache", resp.Header.Get(httpcache.XFromCache) == "1",
		"duration", time.Since(start).Round(time.Millisecond),
	)

	var data model.Response
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &model.InvalidResponseError{StatusCode: resp.StatusCode, Err: err}
	}
	if data == nil {
		return nil, &model.InvalidResponseError{StatusCode: resp.StatusCode, Err: errors.New("response is not a JSON object")}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &model.RemoteAPIError{
			StatusCode: resp.StatusCode,
			Code:       stringField(data, "code"),
			Message:    errorMessage(data),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
		if apiErr.Retryable() {
			c.logger.Warn("notion api transient error",
				"method", req.Method,
				"path", req.Path,
				"status", resp.StatusCode,
				"retry_after", apiErr.RetryAfter,
			)
		}
		return nil, apiErr
	}

	return data, nil
}

// retryAfter parses a Retry-After value given either as delay seconds or as
// an HTTP date. Missing, malformed and past values yield zero.
func retryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// errorMessage extracts the message from either {"message": ...} or
// {"error": {"message": ...}} bodies.
func errorMessage(data model.Response) string {
	if msg := stringField(data, "message"); msg != "" {
		return msg
	}
	if nested, ok := data["error"].(map[string]any); ok {
		if msg, ok := nested["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return "Unknown Notion API error"
}

func stringField(data model.Response, key string) string {
	s, _ := data[key].(string)
	return s
}
