package driven

import (
	"context"
	"net/url"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

// NotionRequest describes one call to the Notion REST API. Path is relative
// to the API base URL; Body is JSON-encoded when non-nil.
type NotionRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// NotionAPI performs authenticated HTTP calls against the Notion API.
// Errors are *model.NetworkError, *model.InvalidResponseError or
// *model.RemoteAPIError.
type NotionAPI interface {
	Do(ctx context.Context, token string, req NotionRequest) (model.Response, error)
}
