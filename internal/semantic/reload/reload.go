// Package reload rebuilds the semantic index from the post store, at startup,
// on demand and on a fixed schedule.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/index"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/resilience"
)

// PostSource lists every published post.
type PostSource interface {
	ListPublished(ctx context.Context) ([]index.PostData, error)
}

// Rebuilder is the part of the semantic index a reload replaces.
type Rebuilder interface {
	Rebuild(posts []index.PostData)
	Stats() index.Stats
}

// Invalidator drops cached query results.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Reloader loads published posts and rebuilds the index from them.
type Reloader struct {
	index       Rebuilder
	source      PostSource
	cache       Invalidator
	metrics     *metrics.Metrics
	retry       resilience.RetryConfig
	loadTimeout time.Duration
	group       singleflight.Group
	logger      *slog.Logger
}

type Option func(*Reloader)

// WithCache invalidates c after every successful rebuild.
func WithCache(c Invalidator) Option {
	return func(r *Reloader) { r.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reloader) { r.metrics = m }
}

// WithRetry sets the backoff used when loading posts fails.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(r *Reloader) { r.retry = cfg }
}

// WithLoadTimeout bounds each load attempt.
func WithLoadTimeout(d time.Duration) Option {
	return func(r *Reloader) { r.loadTimeout = d }
}

func New(ix Rebuilder, source PostSource, opts ...Option) *Reloader {
	r := &Reloader{
		index:       ix,
		source:      source,
		retry:       resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond},
		loadTimeout: 30 * time.Second,
		logger:      slog.Default().With("component", "semantic-reload"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload loads all published posts and rebuilds the index. Concurrent calls
// share one load. On failure the current index is left untouched.
func (r *Reloader) Reload(ctx context.Context) (index.Stats, error) {
	v, err, shared := r.group.Do("reload", func() (any, error) {
		return r.reload(ctx)
	})
	if shared {
		r.logger.Debug("joined in-flight reload")
	}
	if err != nil {
		return index.Stats{}, err
	}
	return v.(index.Stats), nil
}

func (r *Reloader) reload(ctx context.Context) (index.Stats, error) {
	start := time.Now()

	var posts []index.PostData
	err := resilience.Retry(ctx, "load published posts", r.retry, func() error {
		loadCtx, cancel := context.WithTimeout(ctx, r.loadTimeout)
		defer cancel()
		var err error
		posts, err = r.source.ListPublished(loadCtx)
		return err
	})
	if err != nil {
		r.observe("failure", start)
		return index.Stats{}, fmt.Errorf("reloading semantic index: %w", err)
	}

	r.index.Rebuild(posts)
	stats := r.index.Stats()
	r.observe("success", start)
	if r.metrics != nil {
		r.metrics.IndexDocuments.Set(float64(stats.Documents))
		r.metrics.IndexTerms.Set(float64(stats.Terms))
	}
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			r.logger.Error("cache invalidation failed", "error", err)
		}
	}

	r.logger.Info("semantic index reloaded",
		"documents", stats.Documents,
		"terms", stats.Terms,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

func (r *Reloader) observe(status string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.RebuildsTotal.WithLabelValues(status).Inc()
	r.metrics.RebuildDuration.Observe(time.Since(start).Seconds())
}

// Run reloads the index every interval until ctx is cancelled. A
// non-positive interval disables periodic reloads and Run returns at once.
// Failed reloads are logged and the previous index keeps serving.
func (r *Reloader) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		r.logger.Info("periodic reload disabled")
		return nil
	}
	r.logger.Info("periodic reload started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.Reload(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("periodic reload failed", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
