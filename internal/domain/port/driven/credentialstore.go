package driven

import (
	"context"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

// Cipher encrypts and decrypts access tokens for storage. Implementations
// return errors wrapping model.ErrDecryption when a blob cannot be opened.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// CredentialStore defines the driven port for per-(app, workspace) Notion
// credentials. Tokens cross this boundary in plaintext; the adapter is
// responsible for encrypting them at rest.
type CredentialStore interface {
	// Initialize idempotently creates or migrates the backing schema.
	Initialize(ctx context.Context) error

	// Store validates and upserts a credential, reactivating a disabled row.
	// Returns the row ID. Fails with *model.ValidationError before any
	// encryption if a field is empty or the token format is unknown.
	Store(ctx context.Context, appName, workspaceID, token, workspaceName string) (int64, error)

	// Get returns the decrypted token of the active row. Fails with
	// model.ErrNotFound or *model.DecryptionFailureError.
	Get(ctx context.Context, appName, workspaceID string) (*model.Credential, error)

	// List returns every row of the app, active or not, ordered by name.
	List(ctx context.Context, appName string) ([]model.WorkspaceSummary, error)

	// Disable soft-deletes the row. Reports whether a row was affected.
	Disable(ctx context.Context, appName, workspaceID string) (bool, error)

	// Delete removes the row. Reports whether a row was affected.
	Delete(ctx context.Context, appName, workspaceID string) (bool, error)

	// RecordUsage bumps last_used_at. Callers treat failures as telemetry.
	RecordUsage(ctx context.Context, appName, workspaceID string) error

	// UpdateConfiguration replaces the target database, page and config blob.
	UpdateConfiguration(ctx context.Context, appName, workspaceID string, cfg model.WorkspaceConfig) (bool, error)

	// GetConfiguration returns the configuration of the active row.
	GetConfiguration(ctx context.Context, appName, workspaceID string) (*model.WorkspaceConfig, error)

	// GetWorkspaceInfo returns the active row without its token.
	GetWorkspaceInfo(ctx context.Context, appName, workspaceID string) (*model.WorkspaceInfo, error)
}
