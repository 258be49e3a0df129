package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockStore struct {
	mu sync.Mutex

	creds        map[string]model.Credential
	getErr       error
	recordErr    error
	getCalls     int
	recordCalls  int
	storeCalls   int
	disableCalls int
	deleteCalls  int
}

func newMockStore() *mockStore {
	return &mockStore{creds: make(map[string]model.Credential)}
}

func (m *mockStore) put(app, ws, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[model.TenantKey(app, ws)] = model.Credential{Token: token, WorkspaceName: ws + " name"}
}

func (m *mockStore) Initialize(context.Context) error { return nil }

func (m *mockStore) Store(_ context.Context, app, ws, token, name string) (int64, error) {
	if err := model.ValidateCredentialInput(app, ws, token); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeCalls++
	m.creds[model.TenantKey(app, ws)] = model.Credential{Token: token, WorkspaceName: name}
	return int64(len(m.creds)), nil
}

func (m *mockStore) Get(_ context.Context, app, ws string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	cred, ok := m.creds[model.TenantKey(app, ws)]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &cred, nil
}

func (m *mockStore) List(context.Context, string) ([]model.WorkspaceSummary, error) {
	return nil, nil
}

func (m *mockStore) Disable(_ context.Context, app, ws string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disableCalls++
	_, ok := m.creds[model.TenantKey(app, ws)]
	delete(m.creds, model.TenantKey(app, ws))
	return ok, nil
}

func (m *mockStore) Delete(_ context.Context, app, ws string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	_, ok := m.creds[model.TenantKey(app, ws)]
	delete(m.creds, model.TenantKey(app, ws))
	return ok, nil
}

func (m *mockStore) RecordUsage(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordCalls++
	return m.recordErr
}

func (m *mockStore) UpdateConfiguration(context.Context, string, string, model.WorkspaceConfig) (bool, error) {
	return false, nil
}

func (m *mockStore) GetConfiguration(context.Context, string, string) (*model.WorkspaceConfig, error) {
	return nil, model.ErrNotFound
}

func (m *mockStore) GetWorkspaceInfo(context.Context, string, string) (*model.WorkspaceInfo, error) {
	return nil, model.ErrNotFound
}

type apiCall struct {
	Token string
	Req   driven.NotionRequest
}

type mockAPI struct {
	mu    sync.Mutex
	calls []apiCall
	do    func(ctx context.Context, token string, req driven.NotionRequest) (model.Response, error)
}

func (m *mockAPI) Do(ctx context.Context, token string, req driven.NotionRequest) (model.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, apiCall{Token: token, Req: req})
	m.mu.Unlock()

	if m.do == nil {
		return model.Response{"object": "page", "path": req.Path}, nil
	}
	return m.do(ctx, token, req)
}

func (m *mockAPI) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockAPI) lastCall() apiCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

type mockLimiter struct {
	mu         sync.Mutex
	reserveErr error
	reserves   int
	commits    int
	cancels    int
	deferrals  []time.Duration
}

func (m *mockLimiter) Reserve(context.Context, string, string) (driven.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserveErr != nil {
		return nil, m.reserveErr
	}
	m.reserves++
	return &mockReservation{l: m}, nil
}

func (m *mockLimiter) Defer(_, _ string, d time.Duration) {
	m.mu.Lock()
	m.deferrals = append(m.deferrals, d)
	m.mu.Unlock()
}

func (m *mockLimiter) deferred() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.deferrals...)
}

func (m *mockLimiter) Stats() map[string]model.LimiterKeyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]model.LimiterKeyStats{
		"app:ws": {RequestsInWindow: m.commits, LimitPercent: float64(m.commits)},
	}
}

func (m *mockLimiter) counts() (reserves, commits, cancels int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserves, m.commits, m.cancels
}

type mockReservation struct {
	l *mockLimiter
}

func (r *mockReservation) Commit() {
	r.l.mu.Lock()
	r.l.commits++
	r.l.mu.Unlock()
}

func (r *mockReservation) Cancel() {
	r.l.mu.Lock()
	r.l.cancels++
	r.l.mu.Unlock()
}

type observedCall struct {
	Op  string
	Err error
}

type mockObserver struct {
	mu     sync.Mutex
	calls  []observedCall
	hits   int
	misses int
}

func (m *mockObserver) ObserveCall(op string, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, observedCall{Op: op, Err: err})
}

func (m *mockObserver) ObserveCacheLookup(_ string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}
