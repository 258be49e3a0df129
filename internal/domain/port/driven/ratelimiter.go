package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

// Reservation is an admitted slot in a rate limiter window. Exactly one of
// Commit or Cancel takes effect; later calls are no-ops.
type Reservation interface {
	// Commit records the request at the current time.
	Commit()
	// Cancel frees the slot without consuming quota.
	Cancel()
}

// RateLimiter admits outbound calls per (app, workspace) key.
type RateLimiter interface {
	// Reserve blocks until the key has capacity and claims a slot. It returns
	// ctx.Err() if the context ends while waiting.
	Reserve(ctx context.Context, appName, workspaceID string) (Reservation, error)

	// Defer holds new reservations for the key until d has passed. Callers
	// feed it the Retry-After of a remote 429.
	Defer(appName, workspaceID string, d time.Duration)

	// Stats returns usage for every key with requests in the window.
	Stats() map[string]model.LimiterKeyStats
}
