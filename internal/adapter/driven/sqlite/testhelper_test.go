package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notionvault/internal/adapter/driven/encryption"
)

const testMasterKey = "test-master-key-for-sqlite-credential-repo"

// setupTestDB creates a named shared in-memory SQLite database with the schema
// applied. The name is derived from t.Name() so parallel tests never share state.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db := openTestDB(t)
	require.NoError(t, RunMigrations(db.Writer), "run migrations")
	return db
}

// openTestDB is setupTestDB without the migrations.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	// WAL mode does not apply to in-memory databases.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)

	ctx := context.Background()

	writer, err := sql.Open("sqlite", dsn)
	require.NoError(t, err, "open test writer")
	writer.SetMaxOpenConns(1)
	require.NoError(t, writer.PingContext(ctx), "ping test writer")

	reader, err := sql.Open("sqlite", dsn)
	require.NoError(t, err, "open test reader")
	reader.SetMaxOpenConns(4)
	require.NoError(t, reader.PingContext(ctx), "ping test reader")

	db := &DB{Writer: writer, Reader: reader, path: dsn}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// setupTestRepo returns a CredentialRepo backed by a fresh database and a
// real Encryptor.
func setupTestRepo(t *testing.T) *CredentialRepo {
	t.Helper()

	enc, err := encryption.NewEncryptor(testMasterKey)
	require.NoError(t, err)

	return NewCredentialRepo(setupTestDB(t), enc)
}
