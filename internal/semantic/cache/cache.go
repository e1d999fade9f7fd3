// Package cache memoises semantic query results in Redis. Every index
// mutation changes IDF weights corpus-wide, so the whole cache is
// invalidated on each rebuild, upsert and remove.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/index"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/resilience"
)

const keyPrefix = "semantic:"

// Backend is the subset of the Redis client the cache needs. Get must
// return an error satisfying pkgredis.IsNilError on a miss.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Kind names the query operation a cached result belongs to.
type Kind string

const (
	KindSearch     Kind = "search"
	KindSearchBlog Kind = "search_blog"
	KindRelated    Kind = "related"
)

// Key identifies one cached result list. Version is the index version the
// result is computed against; it must be read before computing, so a
// result that lands after a concurrent Invalidate is stored under a key no
// later lookup asks for.
type Key struct {
	Kind    Kind
	BlogID  string
	PostID  string
	Query   string
	Limit   int
	Version string
}

type HitCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache storing entries for ttl. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *HitCache {
	return &HitCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "semantic-cache"),
	}
}

func (c *HitCache) Get(ctx context.Context, key Key) ([]index.Hit, bool) {
	k := key.String()
	data, err := c.backend.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsNilError(err) && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.recordMiss()
		return nil, false
	}
	var hits []index.Hit
	if err := json.Unmarshal([]byte(data), &hits); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	c.logger.Debug("cache hit", "kind", key.Kind, "key", k)
	return hits, true
}

func (c *HitCache) Set(ctx context.Context, key Key, hits []index.Hit) {
	k := key.String()
	data, err := json.Marshal(hits)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.backend.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached hits for key, or runs compute once per key
// across concurrent callers and stores its result. The bool reports a
// cache hit.
func (c *HitCache) GetOrCompute(ctx context.Context, key Key, compute func() []index.Hit) ([]index.Hit, bool) {
	if hits, ok := c.Get(ctx, key); ok {
		return hits, true
	}
	val, _, _ := c.group.Do(key.String(), func() (any, error) {
		hits := compute()
		c.Set(ctx, key, hits)
		return hits, nil
	})
	return val.([]index.Hit), false
}

// Invalidate drops every cached result.
func (c *HitCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating semantic cache: %w", err)
	}
	c.logger.Debug("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *HitCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *HitCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *HitCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// String hashes the key. Queries are reduced to their sorted stemmed terms,
// since term order and stop-words do not affect ranking.
func (k Key) String() string {
	raw := fmt.Sprintf("%s|v=%s|blog=%s|post=%s|q=%s|limit=%d",
		k.Kind, k.Version, k.BlogID, k.PostID, normalizeQuery(k.Query), k.Limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func normalizeQuery(query string) string {
	terms := tokenizer.Analyze(query)
	slices.Sort(terms)
	return strings.Join(terms, ",")
}
