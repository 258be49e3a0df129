package application

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

// Cache operation names. They form the third segment of every cache key.
const (
	opDatabaseQuery = "database_query"
	opPage          = "page"
	opPageProperty  = "page_property"
	opBlocks        = "blocks"
	opSearch        = "search"
)

// scopePrefix returns the key prefix shared by every entry of one
// (app, workspace) pair. The trailing separator keeps "ws1" from matching
// "ws10" in prefix deletes.
func scopePrefix(appName, workspaceID string) string {
	return model.TenantKey(appName, workspaceID) + ":"
}

// cacheKey joins the scope, operation and identifying parts:
// <app>:<workspace>:<op>:<part>... Parts are escaped like the scope so a
// ':' inside an ID cannot reach into a sibling's prefix.
func cacheKey(scope, op string, parts ...string) string {
	var b strings.Builder
	b.WriteString(scope)
	b.WriteString(op)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(url.QueryEscape(p))
	}
	return b.String()
}

// paramsHash returns the first 8 bytes of SHA-256 over the canonical JSON of
// params, hex encoded. encoding/json writes map keys in sorted order, so
// filters that differ only in key order hash the same.
func paramsHash(params map[string]any) (string, error) {
	canonical, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("canonicalize cache parameters: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:8]), nil
}
