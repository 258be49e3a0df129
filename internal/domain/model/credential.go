package model

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// TokenPrefixes lists the accepted Notion integration token formats: the
// legacy "secret_" tokens and the newer "ntn_" tokens.
var TokenPrefixes = []string{"secret_", "ntn_"}

// HasValidTokenPrefix reports whether token starts with one of TokenPrefixes.
func HasValidTokenPrefix(token string) bool {
	for _, prefix := range TokenPrefixes {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}
	return false
}

// TenantKey identifies one (app, workspace) pair in in-memory maps and cache
// keys. Each part is query-escaped before joining so a ':' inside a name can
// never make two different pairs produce the same key.
func TenantKey(appName, workspaceID string) string {
	return url.QueryEscape(appName) + ":" + url.QueryEscape(workspaceID)
}

// ValidateCredentialInput checks the fields required to store a credential.
func ValidateCredentialInput(appName, workspaceID, token string) error {
	switch {
	case appName == "":
		return &ValidationError{Field: "app_name", Reason: "required"}
	case workspaceID == "":
		return &ValidationError{Field: "workspace_id", Reason: "required"}
	case token == "":
		return &ValidationError{Field: "api_key", Reason: "required"}
	case !HasValidTokenPrefix(token):
		return &ValidationError{Field: "api_key", Reason: "invalid Notion API key format, must start with secret_ or ntn_"}
	}
	return nil
}

// Credential is the decrypted access token of an active workspace connection.
type Credential struct {
	Token         string
	WorkspaceName string
}

// WorkspaceSummary is a listing row for one (app, workspace) connection.
// It never carries the token, encrypted or not.
type WorkspaceSummary struct {
	ID            int64
	WorkspaceID   string
	WorkspaceName string
	IsActive      bool
	CreatedAt     time.Time
	LastUsedAt    *time.Time
}

// WorkspaceConfig holds the default Notion resources a workspace writes to and
// an app-defined JSON blob the store never interprets.
type WorkspaceConfig struct {
	DatabaseID string
	PageID     string
	Config     json.RawMessage
}

// WorkspaceInfo is the full stored record of a connection minus the token.
type WorkspaceInfo struct {
	ID            int64
	AppName       string
	WorkspaceID   string
	WorkspaceName string
	WorkspaceConfig
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastUsedAt *time.Time
}
