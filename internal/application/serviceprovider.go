package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

// ServiceProvider hands out one NotionService per (app, workspace) and
// rebuilds it after the credential changes. All services share the provider's
// cache, limiter and singleflight group.
type ServiceProvider struct {
	deps   NotionDeps
	logger *slog.Logger

	mu       sync.RWMutex
	services map[string]*NotionService
}

// NewServiceProvider creates a provider. deps.Flight is filled in when nil so
// every service coalesces misses through the same group.
func NewServiceProvider(deps NotionDeps) (*ServiceProvider, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Flight == nil {
		deps.Flight = &singleflight.Group{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &ServiceProvider{
		deps:     deps,
		logger:   deps.Logger,
		services: make(map[string]*NotionService),
	}, nil
}

// Get returns the service for (appName, workspaceID), building it from the
// stored credential on first use.
func (p *ServiceProvider) Get(ctx context.Context, appName, workspaceID string) (*NotionService, error) {
	key := scopePrefix(appName, workspaceID)

	p.mu.RLock()
	svc, ok := p.services[key]
	p.mu.RUnlock()
	if ok {
		return svc, nil
	}

	svc, err := NewNotionService(ctx, p.deps, appName, workspaceID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.services[key]; ok {
		return existing, nil
	}
	p.services[key] = svc
	return svc, nil
}

// StoreAndConnect stores a credential and drops any service built from the
// previous one. With validate set, the token is first probed with a search:
// an auth-class rejection aborts before anything is stored, other probe
// failures are logged and the credential is stored anyway.
func (p *ServiceProvider) StoreAndConnect(ctx context.Context, appName, workspaceID, token, workspaceName string, validate bool) (int64, error) {
	if validate {
		if err := model.ValidateCredentialInput(appName, workspaceID, token); err != nil {
			return 0, err
		}

		probe, err := NewNotionServiceWithCredentials(p.deps, appName, workspaceID, model.Credential{Token: token, WorkspaceName: workspaceName})
		if err != nil {
			return 0, err
		}
		if err := probe.Probe(ctx); err != nil {
			if model.IsAuthError(err) {
				return 0, fmt.Errorf("validate credentials for app %q in workspace %q: %w", appName, workspaceID, err)
			}
			p.logger.Warn("credential probe failed, storing anyway",
				"app", appName,
				"workspace", workspaceID,
				"error", err,
			)
		}
	}

	id, err := p.deps.Store.Store(ctx, appName, workspaceID, token, workspaceName)
	if err != nil {
		return 0, err
	}

	p.Invalidate(appName, workspaceID)
	return id, nil
}

// TestConnection probes the stored credential of (appName, workspaceID).
func (p *ServiceProvider) TestConnection(ctx context.Context, appName, workspaceID string) error {
	svc, err := p.Get(ctx, appName, workspaceID)
	if err != nil {
		return err
	}
	return svc.Probe(ctx)
}

// Disable soft-deletes the credential and drops its service and cache scope.
func (p *ServiceProvider) Disable(ctx context.Context, appName, workspaceID string) (bool, error) {
	ok, err := p.deps.Store.Disable(ctx, appName, workspaceID)
	if err != nil {
		return false, err
	}
	p.Invalidate(appName, workspaceID)
	return ok, nil
}

// Delete removes the credential and drops its service and cache scope.
func (p *ServiceProvider) Delete(ctx context.Context, appName, workspaceID string) (bool, error) {
	ok, err := p.deps.Store.Delete(ctx, appName, workspaceID)
	if err != nil {
		return false, err
	}
	p.Invalidate(appName, workspaceID)
	return ok, nil
}

// Invalidate forgets the service of (appName, workspaceID) and its cached
// responses. It returns the number of cache entries removed.
func (p *ServiceProvider) Invalidate(appName, workspaceID string) int {
	key := scopePrefix(appName, workspaceID)

	p.mu.Lock()
	delete(p.services, key)
	p.mu.Unlock()

	return p.deps.Cache.DeletePrefix(key)
}

// ClearCache drops the cached responses of (appName, workspaceID) without
// touching its service.
func (p *ServiceProvider) ClearCache(appName, workspaceID string) int {
	return p.deps.Cache.DeletePrefix(scopePrefix(appName, workspaceID))
}

// Cleanup sweeps expired cache entries.
func (p *ServiceProvider) Cleanup() int {
	return p.deps.Cache.Cleanup()
}

// Stats snapshots the shared cache and limiter.
func (p *ServiceProvider) Stats() model.ServiceStats {
	p.mu.RLock()
	n := len(p.services)
	p.mu.RUnlock()

	return model.ServiceStats{
		Cache:          p.deps.Cache.Stats(),
		RateLimits:     p.deps.Limiter.Stats(),
		ActiveServices: n,
	}
}

// Store returns the credential store the provider writes through.
func (p *ServiceProvider) Store() driven.CredentialStore {
	return p.deps.Store
}
