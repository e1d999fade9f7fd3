// Package handler exposes the semantic index over HTTP: free-text search,
// blog-scoped search, related posts, on-demand rebuild and index stats.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/cache"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/metrics"
)

// Engine is the read side of the semantic index.
type Engine interface {
	Search(query string, limit int) []index.Hit
	SearchBlog(blogID, query string, limit int) []index.Hit
	FindSimilar(postID, blogID string, limit int) []index.Hit
	Stats() index.Stats
	Version() string
}

// Reloader rebuilds the index from the post store.
type Reloader interface {
	Reload(ctx context.Context) (index.Stats, error)
}

// Limits bounds the number of hits a request may ask for.
type Limits struct {
	Default int
	Max     int
	Related int
}

// SearchResponse is the body of every query endpoint.
type SearchResponse struct {
	Query    string      `json:"query,omitempty"`
	BlogID   string      `json:"blog_id,omitempty"`
	PostID   string      `json:"post_id,omitempty"`
	Results  []index.Hit `json:"results"`
	Count    int         `json:"count"`
	CacheHit bool        `json:"cache_hit"`
	TookMs   int64       `json:"took_ms"`
}

type Handler struct {
	engine   Engine
	reloader Reloader
	cache    *cache.HitCache
	metrics  *metrics.Metrics
	limits   Limits
	logger   *slog.Logger
}

// New creates a Handler. reloader, hitCache and m may be nil.
func New(engine Engine, reloader Reloader, hitCache *cache.HitCache, m *metrics.Metrics, limits Limits) *Handler {
	return &Handler{
		engine:   engine,
		reloader: reloader,
		cache:    hitCache,
		metrics:  m,
		limits:   limits,
		logger:   slog.Default().With("component", "semantic-handler"),
	}
}

// Register mounts the semantic routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/semantic/search", h.Search)
	mux.HandleFunc("GET /api/v1/blogs/{blogID}/semantic/search", h.SearchBlog)
	mux.HandleFunc("GET /api/v1/blogs/{blogID}/posts/{postID}/related", h.Related)
	mux.HandleFunc("POST /api/v1/semantic/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/semantic/stats", h.Stats)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query, limit, err := h.queryParams(r, h.limits.Default)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	key := cache.Key{Kind: cache.KindSearch, Query: query, Limit: limit}
	resp := h.run(r.Context(), key, func() []index.Hit {
		return h.engine.Search(query, limit)
	})
	resp.Query = query
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SearchBlog(w http.ResponseWriter, r *http.Request) {
	blogID := r.PathValue("blogID")
	query, limit, err := h.queryParams(r, h.limits.Default)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	key := cache.Key{Kind: cache.KindSearchBlog, BlogID: blogID, Query: query, Limit: limit}
	resp := h.run(r.Context(), key, func() []index.Hit {
		return h.engine.SearchBlog(blogID, query, limit)
	})
	resp.Query = query
	resp.BlogID = blogID
	h.writeJSON(w, http.StatusOK, resp)
}

// Related lists the posts of the same blog most similar to postID. An
// unindexed post yields an empty result.
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	blogID := r.PathValue("blogID")
	postID := r.PathValue("postID")
	limit, err := h.parseLimit(r, h.limits.Related)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	key := cache.Key{Kind: cache.KindRelated, BlogID: blogID, PostID: postID, Limit: limit}
	resp := h.run(r.Context(), key, func() []index.Hit {
		return h.engine.FindSimilar(postID, blogID, limit)
	})
	resp.BlogID = blogID
	resp.PostID = postID
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "rebuild is not available"))
		return
	}
	start := time.Now()
	stats, err := h.reloader.Reload(r.Context())
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err))
		return
	}
	logger.FromContext(r.Context()).Info("semantic index rebuilt on request",
		"documents", stats.Documents,
		"terms", stats.Terms,
	)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "rebuilt",
		"documents": stats.Documents,
		"terms":     stats.Terms,
		"took_ms":   time.Since(start).Milliseconds(),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	body := map[string]any{
		"documents": stats.Documents,
		"terms":     stats.Terms,
	}
	if h.cache == nil {
		body["cache"] = map[string]string{"status": "disabled"}
	} else {
		hits, misses := h.cache.Stats()
		total := hits + misses
		var hitRate float64
		if total > 0 {
			hitRate = float64(hits) / float64(total) * 100
		}
		body["cache"] = map[string]any{
			"hits":     hits,
			"misses":   misses,
			"total":    total,
			"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		}
	}
	h.writeJSON(w, http.StatusOK, body)
}

// run executes compute through the cache when one is configured and records
// query metrics.
func (h *Handler) run(ctx context.Context, key cache.Key, compute func() []index.Hit) SearchResponse {
	start := time.Now()
	var hits []index.Hit
	cacheStatus := "disabled"
	cacheHit := false
	if h.cache != nil {
		key.Version = h.engine.Version()
		hits, cacheHit = h.cache.GetOrCompute(ctx, key, compute)
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		hits = compute()
	}
	if hits == nil {
		hits = []index.Hit{}
	}
	took := time.Since(start)

	kind := string(key.Kind)
	if h.metrics != nil {
		resultType := "hit"
		if len(hits) == 0 {
			resultType = "zero_result"
		}
		h.metrics.QueriesTotal.WithLabelValues(kind, resultType).Inc()
		h.metrics.QueryLatency.WithLabelValues(kind, cacheStatus).Observe(took.Seconds())
		h.metrics.QueryResultsCount.WithLabelValues(kind).Observe(float64(len(hits)))
	}
	logger.FromContext(ctx).Info("semantic query completed",
		"kind", kind,
		"query", key.Query,
		"blog_id", key.BlogID,
		"post_id", key.PostID,
		"returned", len(hits),
		"cache", cacheStatus,
		"latency_ms", took.Milliseconds(),
	)
	return SearchResponse{
		Results:  hits,
		Count:    len(hits),
		CacheHit: cacheHit,
		TookMs:   took.Milliseconds(),
	}
}

func (h *Handler) queryParams(r *http.Request, defaultLimit int) (string, int, error) {
	query := r.URL.Query().Get("q")
	if query == "" {
		return "", 0, apperrors.InvalidInput("query parameter 'q' is required")
	}
	limit, err := h.parseLimit(r, defaultLimit)
	if err != nil {
		return "", 0, err
	}
	return query, limit, nil
}

// parseLimit reads the optional limit parameter, clamped to the maximum.
func (h *Handler) parseLimit(r *http.Request, defaultLimit int) (int, error) {
	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			return 0, apperrors.InvalidInput("limit must be a positive integer")
		}
		limit = parsed
	}
	if h.limits.Max > 0 && limit > h.limits.Max {
		limit = h.limits.Max
	}
	return limit, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": apperrors.PublicMessage(err)})
}
