package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/cache"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/index"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/metrics"
)

var corpus = []index.PostData{
	{PostID: "rust-1", BlogID: "sys", Title: "Rust ownership", Content: "The borrow checker enforces ownership rules in Rust programs."},
	{PostID: "rust-2", BlogID: "sys", Title: "Rust async", Content: "Async Rust uses futures and executors."},
	{PostID: "go-1", BlogID: "web", Title: "Go channels", Content: "Channels connect goroutines in Go programs."},
	{PostID: "ml-1", BlogID: "ai", Title: "Neural networks", Content: "Deep learning trains neural networks on data."},
}

type mapBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func (b *mapBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (b *mapBackend) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = string(value.([]byte))
	return nil
}

func (b *mapBackend) FlushByPattern(context.Context, string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.data))
	b.data = map[string]string{}
	return n, nil
}

type stubReloader struct {
	stats index.Stats
	err   error
	calls int
}

func (s *stubReloader) Reload(context.Context) (index.Stats, error) {
	s.calls++
	return s.stats, s.err
}

var limits = Limits{Default: 10, Max: 3, Related: 5}

func newServer(t *testing.T, h *Handler) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func seeded() *index.Index {
	ix := index.New()
	ix.Rebuild(corpus)
	return ix
}

func do(t *testing.T, mux http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) SearchResponse {
	t.Helper()
	var resp SearchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestSearch(t *testing.T) {
	mux := newServer(t, New(seeded(), nil, nil, nil, limits))

	w := do(t, mux, http.MethodGet, "/api/v1/semantic/search?q=rust+ownership")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decode(t, w)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "rust-1", resp.Results[0].PostID)
	assert.Equal(t, len(resp.Results), resp.Count)
	assert.False(t, resp.CacheHit)
	for _, hit := range resp.Results {
		assert.Equal(t, "sys", hit.BlogID)
	}
}

func TestSearchValidation(t *testing.T) {
	mux := newServer(t, New(seeded(), nil, nil, nil, limits))

	for _, target := range []string{
		"/api/v1/semantic/search",
		"/api/v1/semantic/search?q=rust&limit=0",
		"/api/v1/semantic/search?q=rust&limit=-2",
		"/api/v1/semantic/search?q=rust&limit=ten",
		"/api/v1/blogs/sys/semantic/search?limit=2",
		"/api/v1/blogs/sys/posts/rust-1/related?limit=x",
	} {
		t.Run(target, func(t *testing.T) {
			w := do(t, mux, http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSearchLimitClamped(t *testing.T) {
	ix := index.New()
	var posts []index.PostData
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		posts = append(posts, index.PostData{PostID: id, BlogID: "b", Title: "kubernetes", Content: "cluster " + id})
	}
	ix.Rebuild(posts)
	mux := newServer(t, New(ix, nil, nil, nil, limits))

	resp := decode(t, do(t, mux, http.MethodGet, "/api/v1/semantic/search?q=kubernetes&limit=50"))
	assert.Len(t, resp.Results, 3)
}

func TestSearchNoMatchesReturnsEmptyArray(t *testing.T) {
	mux := newServer(t, New(seeded(), nil, nil, nil, limits))

	for _, q := range []string{"quantum+chromodynamics", "the+and+of"} {
		w := do(t, mux, http.MethodGet, "/api/v1/semantic/search?q="+q)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"results":[]`)
	}
}

func TestSearchBlog(t *testing.T) {
	mux := newServer(t, New(seeded(), nil, nil, nil, limits))

	resp := decode(t, do(t, mux, http.MethodGet, "/api/v1/blogs/web/semantic/search?q=programs"))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "go-1", resp.Results[0].PostID)
	assert.Equal(t, "web", resp.BlogID)
}

func TestRelated(t *testing.T) {
	mux := newServer(t, New(seeded(), nil, nil, nil, limits))

	resp := decode(t, do(t, mux, http.MethodGet, "/api/v1/blogs/sys/posts/rust-1/related"))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "rust-2", resp.Results[0].PostID)
	assert.Equal(t, "rust-1", resp.PostID)

	w := do(t, mux, http.MethodGet, "/api/v1/blogs/sys/posts/missing/related")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w).Results)
}

func TestSearchUsesCache(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	hc := cache.New(&mapBackend{data: map[string]string{}}, time.Minute, m)
	mux := newServer(t, New(seeded(), nil, hc, m, limits))

	first := decode(t, do(t, mux, http.MethodGet, "/api/v1/semantic/search?q=neural+networks"))
	second := decode(t, do(t, mux, http.MethodGet, "/api/v1/semantic/search?q=networks+neural"))

	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("search", "hit")))

	resp := decode(t, do(t, mux, http.MethodGet, "/api/v1/semantic/search?q=astronomy"))
	assert.Empty(t, resp.Results)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("search", "zero_result")))
}

// mutatingEngine runs afterSearch once, after the first search has been
// computed and before its result reaches the cache.
type mutatingEngine struct {
	*index.Index
	once        sync.Once
	afterSearch func()
}

func (e *mutatingEngine) Search(query string, limit int) []index.Hit {
	hits := e.Index.Search(query, limit)
	e.once.Do(e.afterSearch)
	return hits
}

func TestRemoveDuringSearchDoesNotLeaveStaleCacheEntry(t *testing.T) {
	hc := cache.New(&mapBackend{data: map[string]string{}}, time.Minute, nil)
	engine := &mutatingEngine{Index: seeded()}
	engine.afterSearch = func() {
		require.True(t, engine.Remove("ml-1"))
		require.NoError(t, hc.Invalidate(context.Background()))
	}
	mux := newServer(t, New(engine, nil, hc, nil, limits))

	first := decode(t, do(t, mux, http.MethodGet, "/api/v1/semantic/search?q=neural+networks"))
	require.Len(t, first.Results, 1)
	assert.Equal(t, "ml-1", first.Results[0].PostID)

	second := decode(t, do(t, mux, http.MethodGet, "/api/v1/semantic/search?q=neural+networks"))
	assert.False(t, second.CacheHit)
	assert.Empty(t, second.Results)

	third := decode(t, do(t, mux, http.MethodGet, "/api/v1/semantic/search?q=neural+networks"))
	assert.True(t, third.CacheHit)
	assert.Empty(t, third.Results)
}

func TestRebuild(t *testing.T) {
	r := &stubReloader{stats: index.Stats{Documents: 4, Terms: 30}}
	mux := newServer(t, New(seeded(), r, nil, nil, limits))

	w := do(t, mux, http.MethodPost, "/api/v1/semantic/rebuild")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "rebuilt", body["status"])
	assert.Equal(t, 4.0, body["documents"])
	assert.Equal(t, 1, r.calls)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, mux, http.MethodGet, "/api/v1/semantic/rebuild").Code)
}

func TestRebuildFailures(t *testing.T) {
	mux := newServer(t, New(seeded(), &stubReloader{err: errors.New("db down")}, nil, nil, limits))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, mux, http.MethodPost, "/api/v1/semantic/rebuild").Code)

	mux = newServer(t, New(seeded(), nil, nil, nil, limits))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, mux, http.MethodPost, "/api/v1/semantic/rebuild").Code)
}

func TestStats(t *testing.T) {
	ix := seeded()
	mux := newServer(t, New(ix, nil, nil, nil, limits))

	w := do(t, mux, http.MethodGet, "/api/v1/semantic/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 4.0, body["documents"])
	assert.Equal(t, float64(ix.Stats().Terms), body["terms"])
	assert.Equal(t, map[string]any{"status": "disabled"}, body["cache"])
}
