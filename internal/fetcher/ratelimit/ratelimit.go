// Package ratelimit decorates fetchers with per-host token buckets so the
// pipeline stays polite to source sites.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/carelane/content-pipeline/internal/metrics"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

// Config holds the default per-host budget.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter manages one token bucket per host. Wrapped probe and headless
// fetchers share a Limiter, so a rendered refetch draws from the same budget
// as the probe that triggered it.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a Limiter. A non-positive RPS disables throttling.
func NewLimiter(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until the host's bucket has a token, respecting the context.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	return nil
}

// Fetcher throttles another fetcher with a shared Limiter.
type Fetcher struct {
	limiter *Limiter
	next    pipeline.Fetcher
	logger  *zap.Logger
}

// Wrap decorates next with the limiter.
func Wrap(limiter *Limiter, next pipeline.Fetcher, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{limiter: limiter, next: next, logger: logger}
}

// Fetch waits for the host's budget, then delegates to the wrapped fetcher.
func (f *Fetcher) Fetch(ctx context.Context, request pipeline.FetchRequest) (pipeline.FetchResponse, error) {
	host := metrics.SanitizeSite(request.URL)
	start := time.Now()
	if err := f.limiter.Wait(ctx, host); err != nil {
		return pipeline.FetchResponse{}, err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(host, waited)
		f.logger.Debug("fetch delayed by host budget",
			zap.String("url", request.URL),
			zap.Duration("waited", waited),
		)
	}
	return f.next.Fetch(ctx, request)
}
