package application

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops expired cache entries and reports how many were removed.
type Sweeper interface {
	Cleanup() int
}

// sweepRequest represents a manual sweep trigger.
type sweepRequest struct {
	done chan int
}

// CacheJanitor periodically evicts expired Notion responses so entries that
// are never read again do not accumulate.
type CacheJanitor struct {
	target   Sweeper
	interval time.Duration
	logger   *slog.Logger
	sweepCh  chan sweepRequest
}

// NewCacheJanitor creates a CacheJanitor sweeping target every interval.
func NewCacheJanitor(target Sweeper, interval time.Duration, logger *slog.Logger) *CacheJanitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheJanitor{
		target:   target,
		interval: interval,
		logger:   logger,
		sweepCh:  make(chan sweepRequest),
	}
}

// Start runs the sweep loop on the configured interval and serves manual
// sweep requests. Start blocks until the context is canceled.
func (j *CacheJanitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cache janitor stopped")
			return
		case <-ticker.C:
			j.sweep()
		case req := <-j.sweepCh:
			req.done <- j.sweep()
		}
	}
}

// SweepNow asks the running loop for an immediate sweep and returns the
// number of entries removed. It blocks until the sweep completes or the
// context is canceled.
func (j *CacheJanitor) SweepNow(ctx context.Context) (int, error) {
	req := sweepRequest{done: make(chan int, 1)}

	select {
	case j.sweepCh <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case removed := <-req.done:
		return removed, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (j *CacheJanitor) sweep() int {
	removed := j.target.Cleanup()
	if removed > 0 {
		j.logger.Debug("expired cache entries removed", "count", removed)
	}
	return removed
}
