// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

const defaultEnvFile = ".env"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	MasterKey            string
	ListenAddr           string
	DBPath               string
	NotionBaseURL        string
	NotionVersion        string
	RateLimit            int
	RequestTimeout       time.Duration
	CacheCleanupInterval time.Duration
	LogLevel             slog.Level
}

// Load reads configuration from environment variables and returns a validated Config.
//
// An optional dotenv file is read first (NOTIONVAULT_ENV_FILE, default .env);
// variables already set in the environment take precedence over it. A missing
// default file is ignored, a missing explicitly named file is an error.
//
// NOTIONVAULT_MASTER_KEY is required. Optional variables with defaults:
// NOTIONVAULT_LISTEN_ADDR (127.0.0.1:8080), NOTIONVAULT_DB_PATH (notionvault.db),
// NOTIONVAULT_NOTION_BASE_URL (https://api.notion.com/v1),
// NOTIONVAULT_NOTION_VERSION (2022-06-28), NOTIONVAULT_RATE_LIMIT (150),
// NOTIONVAULT_REQUEST_TIMEOUT (30s), NOTIONVAULT_CACHE_CLEANUP_INTERVAL (5m),
// NOTIONVAULT_LOG_LEVEL (info).
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	masterKey := os.Getenv("NOTIONVAULT_MASTER_KEY")
	if masterKey == "" {
		return nil, fmt.Errorf("%w: NOTIONVAULT_MASTER_KEY is required", model.ErrConfiguration)
	}

	cfg := &Config{
		MasterKey:     masterKey,
		ListenAddr:    stringVar("NOTIONVAULT_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:        stringVar("NOTIONVAULT_DB_PATH", "notionvault.db"),
		NotionBaseURL: stringVar("NOTIONVAULT_NOTION_BASE_URL", "https://api.notion.com/v1"),
		NotionVersion: stringVar("NOTIONVAULT_NOTION_VERSION", "2022-06-28"),
	}

	var err error
	if cfg.RateLimit, err = positiveIntVar("NOTIONVAULT_RATE_LIMIT", 150); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = durationVar("NOTIONVAULT_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheCleanupInterval, err = durationVar("NOTIONVAULT_CACHE_CLEANUP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("NOTIONVAULT_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("%w: NOTIONVAULT_LOG_LEVEL has invalid level %q", model.ErrConfiguration, v)
		}
	}

	return cfg, nil
}

func loadEnvFile() error {
	path, explicit := os.LookupEnv("NOTIONVAULT_ENV_FILE")
	if !explicit || path == "" {
		path = defaultEnvFile
	}

	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("%w: load env file %q: %v", model.ErrConfiguration, path, err)
}

func stringVar(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func positiveIntVar(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", model.ErrConfiguration, key, v)
	}
	return n, nil
}

func durationVar(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s has invalid duration %q: %v", model.ErrConfiguration, key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %q", model.ErrConfiguration, key, v)
	}
	return d, nil
}
