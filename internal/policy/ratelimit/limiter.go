// Package ratelimit throttles search-index writes with per-index token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/gbif/content-crawler-sub000/internal/crawler"
)

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerSecond bounds write requests per index; <= 0 disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// Limiter manages per-index rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
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

// Wait blocks until a token is available for index, respecting ctx.
func (l *Limiter) Wait(ctx context.Context, index string) error {
	l.mu.Lock()
	limiter, ok := l.limiters[index]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[index] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Writer decorates an IndexWriter so bulk writes and tag updates pass through
// the Limiter. Index administration calls are not limited.
type Writer struct {
	crawler.IndexWriter
	limiter *Limiter
}

// NewWriter wraps next with limiter.
func NewWriter(next crawler.IndexWriter, limiter *Limiter) *Writer {
	return &Writer{IndexWriter: next, limiter: limiter}
}

// BulkUpsert waits for a token on index before writing.
func (w *Writer) BulkUpsert(ctx context.Context, index string, docs []crawler.IndexedDocument) (crawler.BulkResult, error) {
	if len(docs) > 0 {
		if err := w.limiter.Wait(ctx, index); err != nil {
			return crawler.BulkResult{}, err
		}
	}
	res, err := w.IndexWriter.BulkUpsert(ctx, index, docs)
	if err != nil {
		return res, fmt.Errorf("bulk upsert: %w", err)
	}
	return res, nil
}

// PartialUpdate waits for a token on index before updating.
func (w *Writer) PartialUpdate(ctx context.Context, index, id string, update crawler.AppendIfAbsent) (crawler.UpdateOutcome, error) {
	if err := w.limiter.Wait(ctx, index); err != nil {
		return "", err
	}
	out, err := w.IndexWriter.PartialUpdate(ctx, index, id, update)
	if err != nil {
		return out, fmt.Errorf("partial update: %w", err)
	}
	return out, nil
}
