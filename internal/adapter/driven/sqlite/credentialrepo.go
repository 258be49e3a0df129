package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Tokens are encrypted with the injected Cipher before write and decrypted
// after read; the ciphertext never leaves this type.
type CredentialRepo struct {
	db     *DB
	cipher driven.Cipher
}

// NewCredentialRepo creates a CredentialRepo.
func NewCredentialRepo(db *DB, cipher driven.Cipher) *CredentialRepo {
	return &CredentialRepo{db: db, cipher: cipher}
}

// Initialize applies the embedded schema migrations.
func (r *CredentialRepo) Initialize(_ context.Context) error {
	if err := RunMigrations(r.db.Writer); err != nil {
		return &model.StorageError{Op: "initialize schema", Err: err}
	}
	return nil
}

// Store validates the input, encrypts the token and upserts the row. A
// conflicting (app, workspace) row is overwritten and reactivated.
func (r *CredentialRepo) Store(ctx context.Context, appName, workspaceID, token, workspaceName string) (int64, error) {
	if err := model.ValidateCredentialInput(appName, workspaceID, token); err != nil {
		return 0, err
	}

	encrypted, err := r.cipher.Encrypt(token)
	if err != nil {
		return 0, fmt.Errorf("encrypt credentials for app %q in workspace %q: %w", appName, workspaceID, err)
	}

	const query = `
		INSERT INTO notion_credentials (app_name, workspace_id, api_key_encrypted, workspace_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (app_name, workspace_id) DO UPDATE SET
			api_key_encrypted = excluded.api_key_encrypted,
			workspace_name    = excluded.workspace_name,
			is_active         = 1,
			updated_at        = CURRENT_TIMESTAMP
		RETURNING id`

	var id int64
	err = r.db.Writer.QueryRowContext(ctx, query, appName, workspaceID, encrypted, nullString(workspaceName)).Scan(&id)
	if err != nil {
		return 0, &model.StorageError{Op: fmt.Sprintf("store credentials %s/%s", appName, workspaceID), Err: err}
	}
	return id, nil
}

// Get returns the decrypted token of the active row.
func (r *CredentialRepo) Get(ctx context.Context, appName, workspaceID string) (*model.Credential, error) {
	const query = `
		SELECT api_key_encrypted, workspace_name
		FROM notion_credentials
		WHERE app_name = ? AND workspace_id = ? AND is_active = 1
		LIMIT 1`

	var (
		encrypted string
		name      sql.NullString
	)
	err := r.db.Reader.QueryRowContext(ctx, query, appName, workspaceID).Scan(&encrypted, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(appName, workspaceID)
	}
	if err != nil {
		return nil, &model.StorageError{Op: fmt.Sprintf("get credentials %s/%s", appName, workspaceID), Err: err}
	}

	token, err := r.cipher.Decrypt(encrypted)
	if err != nil {
		return nil, &model.DecryptionFailureError{AppName: appName, WorkspaceID: workspaceID, Err: err}
	}

	return &model.Credential{Token: token, WorkspaceName: name.String}, nil
}

// List returns all rows of the app, active and disabled, without tokens.
func (r *CredentialRepo) List(ctx context.Context, appName string) ([]model.WorkspaceSummary, error) {
	const query = `
		SELECT id, workspace_id, workspace_name, is_active, created_at, last_used_at
		FROM notion_credentials
		WHERE app_name = ?
		ORDER BY workspace_name ASC, workspace_id ASC`

	rows, err := r.db.Reader.QueryContext(ctx, query, appName)
	if err != nil {
		return nil, &model.StorageError{Op: "list credentials " + appName, Err: err}
	}
	defer rows.Close()

	summaries := []model.WorkspaceSummary{}
	for rows.Next() {
		var (
			s         model.WorkspaceSummary
			name      sql.NullString
			createdAt string
			lastUsed  sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.WorkspaceID, &name, &s.IsActive, &createdAt, &lastUsed); err != nil {
			return nil, &model.StorageError{Op: "scan credential", Err: err}
		}
		s.WorkspaceName = name.String

		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for workspace %q: %w", s.WorkspaceID, err)
		}
		if s.LastUsedAt, err = parseNullTime(lastUsed); err != nil {
			return nil, fmt.Errorf("parse last_used_at for workspace %q: %w", s.WorkspaceID, err)
		}

		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "iterate credentials", Err: err}
	}

	return summaries, nil
}

// Disable marks the row inactive. The row is kept for auditing.
func (r *CredentialRepo) Disable(ctx context.Context, appName, workspaceID string) (bool, error) {
	const query = `
		UPDATE notion_credentials
		SET is_active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE app_name = ? AND workspace_id = ?`

	return r.execAffected(ctx, "disable credentials", query, appName, workspaceID)
}

// Delete removes the row permanently.
func (r *CredentialRepo) Delete(ctx context.Context, appName, workspaceID string) (bool, error) {
	const query = `DELETE FROM notion_credentials WHERE app_name = ? AND workspace_id = ?`

	return r.execAffected(ctx, "delete credentials", query, appName, workspaceID)
}

// RecordUsage sets last_used_at to now.
func (r *CredentialRepo) RecordUsage(ctx context.Context, appName, workspaceID string) error {
	const query = `
		UPDATE notion_credentials
		SET last_used_at = CURRENT_TIMESTAMP
		WHERE app_name = ? AND workspace_id = ?`

	_, err := r.execAffected(ctx, "record usage", query, appName, workspaceID)
	return err
}

// UpdateConfiguration replaces the target database, target page and config
// blob. Empty values are stored as NULL. A non-empty config must be valid JSON.
func (r *CredentialRepo) UpdateConfiguration(ctx context.Context, appName, workspaceID string, cfg model.WorkspaceConfig) (bool, error) {
	var configJSON any
	if len(cfg.Config) > 0 && string(cfg.Config) != "null" {
		if !json.Valid(cfg.Config) {
			return false, &model.ValidationError{Field: "config", Reason: "must be valid JSON"}
		}
		configJSON = string(cfg.Config)
	}

	const query = `
		UPDATE notion_credentials
		SET notion_database_id = ?, notion_page_id = ?, config = ?, updated_at = CURRENT_TIMESTAMP
		WHERE app_name = ? AND workspace_id = ?`

	return r.execAffected(ctx, "update configuration", query,
		nullString(cfg.DatabaseID), nullString(cfg.PageID), configJSON, appName, workspaceID)
}

// GetConfiguration returns the configuration of the active row.
func (r *CredentialRepo) GetConfiguration(ctx context.Context, appName, workspaceID string) (*model.WorkspaceConfig, error) {
	const query = `
		SELECT notion_database_id, notion_page_id, config
		FROM notion_credentials
		WHERE app_name = ? AND workspace_id = ? AND is_active = 1
		LIMIT 1`

	var databaseID, pageID, config sql.NullString
	err := r.db.Reader.QueryRowContext(ctx, query, appName, workspaceID).Scan(&databaseID, &pageID, &config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(appName, workspaceID)
	}
	if err != nil {
		return nil, &model.StorageError{Op: fmt.Sprintf("get configuration %s/%s", appName, workspaceID), Err: err}
	}

	return toWorkspaceConfig(databaseID, pageID, config), nil
}

// GetWorkspaceInfo returns every column of the active row except the token.
func (r *CredentialRepo) GetWorkspaceInfo(ctx context.Context, appName, workspaceID string) (*model.WorkspaceInfo, error) {
	const query = `
		SELECT id, workspace_name, notion_database_id, notion_page_id, config,
		       is_active, created_at, updated_at, last_used_at
		FROM notion_credentials
		WHERE app_name = ? AND workspace_id = ? AND is_active = 1
		LIMIT 1`

	info := model.WorkspaceInfo{AppName: appName, WorkspaceID: workspaceID}
	var (
		name                    sql.NullString
		databaseID, pageID, cfg sql.NullString
		createdAt, updatedAt    string
		lastUsed                sql.NullString
	)
	err := r.db.Reader.QueryRowContext(ctx, query, appName, workspaceID).Scan(
		&info.ID, &name, &databaseID, &pageID, &cfg,
		&info.IsActive, &createdAt, &updatedAt, &lastUsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(appName, workspaceID)
	}
	if err != nil {
		return nil, &model.StorageError{Op: fmt.Sprintf("get workspace info %s/%s", appName, workspaceID), Err: err}
	}

	info.WorkspaceName = name.String
	info.WorkspaceConfig = *toWorkspaceConfig(databaseID, pageID, cfg)

	if info.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if info.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if info.LastUsedAt, err = parseNullTime(lastUsed); err != nil {
		return nil, fmt.Errorf("parse last_used_at: %w", err)
	}

	return &info, nil
}

func (r *CredentialRepo) execAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return false, &model.StorageError{Op: op, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &model.StorageError{Op: op + " rows affected", Err: err}
	}
	return n > 0, nil
}

func notFound(appName, workspaceID string) error {
	return fmt.Errorf("no active credentials for app %q in workspace %q: %w", appName, workspaceID, model.ErrNotFound)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toWorkspaceConfig(databaseID, pageID, config sql.NullString) *model.WorkspaceConfig {
	cfg := &model.WorkspaceConfig{DatabaseID: databaseID.String, PageID: pageID.String}
	if config.Valid && config.String != "" {
		cfg.Config = json.RawMessage(config.String)
	}
	return cfg
}
