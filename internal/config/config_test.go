package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

// allConfigKeys lists every NOTIONVAULT_ env var that Load() reads.
var allConfigKeys = []string{
	"NOTIONVAULT_ENV_FILE",
	"NOTIONVAULT_MASTER_KEY",
	"NOTIONVAULT_LISTEN_ADDR",
	"NOTIONVAULT_DB_PATH",
	"NOTIONVAULT_NOTION_BASE_URL",
	"NOTIONVAULT_NOTION_VERSION",
	"NOTIONVAULT_RATE_LIMIT",
	"NOTIONVAULT_REQUEST_TIMEOUT",
	"NOTIONVAULT_CACHE_CLEANUP_INTERVAL",
	"NOTIONVAULT_LOG_LEVEL",
}

// isolateConfigEnv saves and unsets all NOTIONVAULT_ env vars so tests don't
// inherit values from the host environment, and points the dotenv lookup at
// an empty temp directory. t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTIONVAULT_MASTER_KEY", "master")
	t.Setenv("NOTIONVAULT_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("NOTIONVAULT_DB_PATH", "/tmp/test.db")
	t.Setenv("NOTIONVAULT_NOTION_BASE_URL", "http://localhost:1234/v1")
	t.Setenv("NOTIONVAULT_NOTION_VERSION", "2025-09-03")
	t.Setenv("NOTIONVAULT_RATE_LIMIT", "30")
	t.Setenv("NOTIONVAULT_REQUEST_TIMEOUT", "5s")
	t.Setenv("NOTIONVAULT_CACHE_CLEANUP_INTERVAL", "1m")
	t.Setenv("NOTIONVAULT_LOG_LEVEL", "debug")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "master", cfg.MasterKey)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "http://localhost:1234/v1", cfg.NotionBaseURL)
	assert.Equal(t, "2025-09-03", cfg.NotionVersion)
	assert.Equal(t, 30, cfg.RateLimit)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Minute, cfg.CacheCleanupInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTIONVAULT_MASTER_KEY", "master")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "notionvault.db", cfg.DBPath)
	assert.Equal(t, "https://api.notion.com/v1", cfg.NotionBaseURL)
	assert.Equal(t, "2022-06-28", cfg.NotionVersion)
	assert.Equal(t, 150, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.CacheCleanupInterval)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_MissingMasterKey(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.ErrorIs(t, err, model.ErrConfiguration)
	assert.Contains(t, err.Error(), "NOTIONVAULT_MASTER_KEY")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "NOTIONVAULT_RATE_LIMIT", value: "lots"},
		{key: "NOTIONVAULT_RATE_LIMIT", value: "0"},
		{key: "NOTIONVAULT_REQUEST_TIMEOUT", value: "not-a-duration"},
		{key: "NOTIONVAULT_REQUEST_TIMEOUT", value: "-1s"},
		{key: "NOTIONVAULT_CACHE_CLEANUP_INTERVAL", value: "0s"},
		{key: "NOTIONVAULT_LOG_LEVEL", value: "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv("NOTIONVAULT_MASTER_KEY", "master")
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.ErrorIs(t, err, model.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolateConfigEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("NOTIONVAULT_MASTER_KEY=from-file\nNOTIONVAULT_DB_PATH=file.db\n"), 0o600))
	t.Setenv("NOTIONVAULT_DB_PATH", "env.db")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.MasterKey)
	assert.Equal(t, "env.db", cfg.DBPath, "real environment wins over the dotenv file")
}

func TestLoad_ExplicitEnvFile(t *testing.T) {
	isolateConfigEnv(t)
	path := filepath.Join(t.TempDir(), "vault.env")
	require.NoError(t, os.WriteFile(path, []byte("NOTIONVAULT_MASTER_KEY=explicit\n"), 0o600))
	t.Setenv("NOTIONVAULT_ENV_FILE", path)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.MasterKey)
}

func TestLoad_ExplicitEnvFileMissing(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("NOTIONVAULT_MASTER_KEY", "master")
	t.Setenv("NOTIONVAULT_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.ErrorIs(t, err, model.ErrConfiguration)
	assert.Contains(t, err.Error(), "missing.env")
}
