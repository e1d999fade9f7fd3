package reload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/index"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/resilience"
)

type fakeSource struct {
	mu       sync.Mutex
	posts    []index.PostData
	failures int
	calls    atomic.Int32
	block    chan struct{}
}

func (s *fakeSource) ListPublished(ctx context.Context) ([]index.PostData, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("connection reset")
	}
	return s.posts, nil
}

type countingCache struct{ n atomic.Int32 }

func (c *countingCache) Invalidate(context.Context) error {
	c.n.Add(1)
	return nil
}

var samplePosts = []index.PostData{
	{PostID: "p1", BlogID: "b1", Title: "Rust ownership", Content: "borrow checker"},
	{PostID: "p2", BlogID: "b1", Title: "Go channels", Content: "goroutines"},
}

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
}

func TestReload(t *testing.T) {
	ix := index.New()
	c := &countingCache{}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	r := New(ix, &fakeSource{posts: samplePosts}, WithCache(c), WithMetrics(m), fastRetry())

	stats, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, ix.DocCount())
	assert.Equal(t, int32(1), c.n.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RebuildsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexDocuments))
	assert.Equal(t, float64(stats.Terms), testutil.ToFloat64(m.IndexTerms))
}

func TestReloadRetriesTransientFailures(t *testing.T) {
	ix := index.New()
	src := &fakeSource{posts: samplePosts, failures: 2}
	r := New(ix, src, fastRetry())

	_, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())
	assert.Equal(t, 2, ix.DocCount())
}

func TestReloadFailureKeepsIndex(t *testing.T) {
	ix := index.New()
	ix.Rebuild(samplePosts[:1])
	c := &countingCache{}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	r := New(ix, &fakeSource{posts: samplePosts, failures: 10}, WithCache(c), WithMetrics(m), fastRetry())

	_, err := r.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, ix.DocCount())
	assert.Zero(t, c.n.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RebuildsTotal.WithLabelValues("failure")))
}

func TestReloadConcurrentCallsShareLoad(t *testing.T) {
	src := &fakeSource{posts: samplePosts, block: make(chan struct{})}
	r := New(index.New(), src, fastRetry())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Reload(context.Background())
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(src.block)
	wg.Wait()

	assert.Less(t, src.calls.Load(), int32(5))
}

func TestRunDisabled(t *testing.T) {
	src := &fakeSource{posts: samplePosts}
	r := New(index.New(), src)
	require.NoError(t, r.Run(context.Background(), 0))
	assert.Zero(t, src.calls.Load())
}

func TestRunReloadsPeriodically(t *testing.T) {
	src := &fakeSource{posts: samplePosts}
	ix := index.New()
	r := New(ix, src, fastRetry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return src.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 2, ix.DocCount())
}
