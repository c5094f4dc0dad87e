package directory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"
)

// Refresher keeps the directory account map warm by polling in the background.
type Refresher struct {
	resolver     *Resolver
	pollInterval time.Duration
	maxAttempts  int
	baseDelay    time.Duration
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewRefresher creates a refresher polling every interval.
func NewRefresher(resolver *Resolver, interval time.Duration) *Refresher {
	return &Refresher{
		resolver:     resolver,
		pollInterval: interval,
		maxAttempts:  3,
		baseDelay:    time.Second,
	}
}

// Start warms the cache in the background and begins polling
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Directory refresh panic recovered", slog.Any("panic", rec))
			}
		}()

		if err := r.refresh(ctx); err != nil {
			slog.Warn("Initial directory refresh failed", slog.Any("error", err))
			// Continue anyway - will retry on next tick
		}

		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Directory refresh stopped")
				return
			case <-ticker.C:
				if err := r.refresh(ctx); err != nil {
					slog.Warn("Directory refresh failed", slog.Any("error", err))
				}
			}
		}
	}()
}

// refresh fetches the account map with exponential backoff between attempts
func (r *Refresher) refresh(ctx context.Context) error {
	var lastErr error
	for i := 0; i < r.maxAttempts; i++ {
		if i > 0 {
			// 1s, 2s, 4s with the default base delay
			delay := r.baseDelay * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := r.resolver.Refresh(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn("Directory refresh attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
		if !domain.IsRetriable(err) {
			return err
		}
	}
	return lastErr
}

// Stop stops the polling
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
		r.wg.Wait()
	}
}
