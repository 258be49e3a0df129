package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
	"github.com/ericfisherdev/notionvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RateLimiter = (*RateLimiter)(nil)

const (
	// DefaultRequestsPerWindow stays under Notion's 180 requests/minute
	// (3/s) hard limit.
	DefaultRequestsPerWindow = 150

	// DefaultWindow is the sliding window length.
	DefaultWindow = 60 * time.Second

	// safetyBuffer is added to every computed wait so the oldest timestamp
	// has left the window by the time the caller wakes up.
	safetyBuffer = 100 * time.Millisecond
)

type window struct {
	stamps      []time.Time // committed requests, oldest first
	pending     int         // reserved slots whose request is still in flight
	pausedUntil time.Time   // upstream asked us to back off until then
}

// RateLimiter is a sliding-window limiter keyed by (app, workspace).
//
// A single mutex guards every window, so the prune, compare and claim steps
// are atomic and two callers can never both take the last slot. The mutex is
// never held while sleeping; a blocked key does not stall other keys.
type RateLimiter struct {
	limit  int
	window time.Duration
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	windows map[string]*window
}

// NewRateLimiter creates a limiter admitting limit requests per window per key.
// Non-positive arguments fall back to DefaultRequestsPerWindow and DefaultWindow.
func NewRateLimiter(limit int, windowLen time.Duration, logger *slog.Logger) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRequestsPerWindow
	}
	if windowLen <= 0 {
		windowLen = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RateLimiter{
		limit:   limit,
		window:  windowLen,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
		windows: make(map[string]*window),
	}
}

// Limit returns the configured requests per window.
func (rl *RateLimiter) Limit() int { return rl.limit }

// WaitIfNecessary blocks until the key has fewer than limit requests in the
// window. Reaching exactly the limit means the caller waits. It returns
// ctx.Err() if the context ends first.
func (rl *RateLimiter) WaitIfNecessary(ctx context.Context, appName, workspaceID string) error {
	return rl.await(ctx, appName, workspaceID, false)
}

// RecordRequest appends the current time to the key's window. Call it only
// after the request actually reached the remote API.
func (rl *RateLimiter) RecordRequest(appName, workspaceID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.windowLocked(model.TenantKey(appName, workspaceID))
	w.stamps = append(w.stamps, rl.now())
}

// Reserve waits like WaitIfNecessary and atomically claims a slot. The slot
// counts against the limit until it is committed or cancelled.
func (rl *RateLimiter) Reserve(ctx context.Context, appName, workspaceID string) (driven.Reservation, error) {
	if err := rl.await(ctx, appName, workspaceID, true); err != nil {
		return nil, err
	}
	return &reservation{rl: rl, key: model.TenantKey(appName, workspaceID)}, nil
}

func (rl *RateLimiter) await(ctx context.Context, appName, workspaceID string, claim bool) error {
	key := model.TenantKey(appName, workspaceID)

	for {
		rl.mu.Lock()
		now := rl.now()
		w := rl.windowLocked(key)
		rl.pruneLocked(w, now)

		if now.Before(w.pausedUntil) {
			wait := w.pausedUntil.Sub(now)
			rl.mu.Unlock()

			rl.logger.Info("rate limit deferred by upstream, waiting",
				"key", key,
				"wait", wait.Round(time.Millisecond),
			)

			if err := rl.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		inUse := len(w.stamps) + w.pending
		if inUse < rl.limit {
			if claim {
				w.pending++
			}
			rl.mu.Unlock()
			return nil
		}

		wait := safetyBuffer
		if len(w.stamps) > 0 {
			wait += w.stamps[0].Add(rl.window).Sub(now)
		}
		rl.mu.Unlock()

		rl.logger.Info("rate limit reached, waiting",
			"key", key,
			"in_window", inUse,
			"limit", rl.limit,
			"wait", wait.Round(time.Millisecond),
		)

		if err := rl.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Defer holds every new request for the key until d from now, regardless of
// how much of the window is free. It is fed from an upstream Retry-After.
// A shorter hold never cuts an earlier, longer one.
func (rl *RateLimiter) Defer(appName, workspaceID string, d time.Duration) {
	if d <= 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.windowLocked(model.TenantKey(appName, workspaceID))
	if until := rl.now().Add(d); until.After(w.pausedUntil) {
		w.pausedUntil = until
	}
}

// CurrentRequestCount returns the number of recorded requests in the window.
func (rl *RateLimiter) CurrentRequestCount(appName, workspaceID string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[model.TenantKey(appName, workspaceID)]
	if !ok {
		return 0
	}
	rl.pruneLocked(w, rl.now())
	return len(w.stamps)
}

// LimitUsagePercent returns CurrentRequestCount as a percentage of the limit.
func (rl *RateLimiter) LimitUsagePercent(appName, workspaceID string) float64 {
	return rl.percent(rl.CurrentRequestCount(appName, workspaceID))
}

// Reset forgets the key's window.
func (rl *RateLimiter) Reset(appName, workspaceID string) {
	rl.mu.Lock()
	delete(rl.windows, model.TenantKey(appName, workspaceID))
	rl.mu.Unlock()
}

// ClearAll forgets every window.
func (rl *RateLimiter) ClearAll() {
	rl.mu.Lock()
	clear(rl.windows)
	rl.mu.Unlock()
}

// Stats returns usage for each key with at least one request in the window,
// keyed by model.TenantKey.
func (rl *RateLimiter) Stats() map[string]model.LimiterKeyStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	stats := make(map[string]model.LimiterKeyStats)
	for key, w := range rl.windows {
		rl.pruneLocked(w, now)
		n := len(w.stamps)
		if n == 0 {
			if w.pending == 0 && !now.Before(w.pausedUntil) {
				delete(rl.windows, key)
			}
			continue
		}
		stats[key] = model.LimiterKeyStats{RequestsInWindow: n, LimitPercent: rl.percent(n)}
	}
	return stats
}

func (rl *RateLimiter) percent(n int) float64 {
	return float64(n) / float64(rl.limit) * 100
}

func (rl *RateLimiter) windowLocked(key string) *window {
	w, ok := rl.windows[key]
	if !ok {
		w = &window{}
		rl.windows[key] = w
	}
	return w
}

// pruneLocked drops timestamps that are window or more in the past.
func (rl *RateLimiter) pruneLocked(w *window, now time.Time) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= rl.window {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

type reservation struct {
	rl   *RateLimiter
	key  string
	once sync.Once
}

func (r *reservation) Commit() {
	r.once.Do(func() {
		r.rl.mu.Lock()
		defer r.rl.mu.Unlock()

		w := r.rl.windowLocked(r.key)
		if w.pending > 0 {
			w.pending--
		}
		w.stamps = append(w.stamps, r.rl.now())
	})
}

func (r *reservation) Cancel() {
	r.once.Do(func() {
		r.rl.mu.Lock()
		defer r.rl.mu.Unlock()

		if w, ok := r.rl.windows[r.key]; ok && w.pending > 0 {
			w.pending--
		}
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
