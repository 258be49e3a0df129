package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/notionvault/internal/adapter/driven/encryption"
	"github.com/ericfisherdev/notionvault/internal/adapter/driven/memory"
	"github.com/ericfisherdev/notionvault/internal/adapter/driven/metrics"
	"github.com/ericfisherdev/notionvault/internal/adapter/driven/notion"
	sqliteadapter "github.com/ericfisherdev/notionvault/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/notionvault/internal/adapter/driving/http"
	"github.com/ericfisherdev/notionvault/internal/application"
	"github.com/ericfisherdev/notionvault/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on a missing master key).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"notion_base_url", cfg.NotionBaseURL,
		"notion_version", cfg.NotionVersion,
		"rate_limit", cfg.RateLimit,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	logger.Info("database opened", "path", cfg.DBPath)

	// 4. Credential store with encryption at rest; Initialize runs migrations.
	encryptor, err := encryption.NewEncryptor(cfg.MasterKey)
	if err != nil {
		return err
	}
	credentialStore := sqliteadapter.NewCredentialRepo(db, encryptor)
	if err := credentialStore.Initialize(ctx); err != nil {
		return err
	}
	logger.Info("migrations complete")

	// 5. Wire shared Notion infrastructure.
	recorder := metrics.NewRecorder()
	cache := memory.NewResponseCache()

	provider, err := application.NewServiceProvider(application.NotionDeps{
		Store:    credentialStore,
		API:      notion.NewClient(cfg.NotionBaseURL, cfg.NotionVersion, cfg.RequestTimeout, logger),
		Cache:    cache,
		Limiter:  memory.NewRateLimiter(cfg.RateLimit, memory.DefaultWindow, logger),
		Observer: recorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	recorder.WatchStats(provider)

	// 6. Start the cache janitor.
	janitor := application.NewCacheJanitor(provider, cfg.CacheCleanupInterval, logger)
	go janitor.Start(ctx)

	// 7. Create HTTP handler with all routes and middleware.
	apiHandler := httphandler.NewHandler(provider, recorder.Handler(), logger)
	handler := httphandler.NewServeMux(apiHandler, recorder, logger)

	// Rate-limited calls may block up to one window before reaching Notion.
	writeTimeout := memory.DefaultWindow + cfg.RequestTimeout + 10*time.Second

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	logger.Info("notionvault started", "listen_addr", cfg.ListenAddr)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// 9. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	cache.Clear()
	logger.Info("shutdown complete")
	return nil
}
