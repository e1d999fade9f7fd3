package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/resilience"
)

type blockingBackend struct{ memoryBackend }

func (b *blockingBackend) Get(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newBreaker(threshold int) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker("test-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     time.Hour,
	})
}

func TestGuardedBackendPassesThrough(t *testing.T) {
	backend := newMemoryBackend()
	g := NewGuardedBackend(backend, newBreaker(2), time.Second)
	ctx := context.Background()

	require.NoError(t, g.Set(ctx, "semantic:a", "[]", time.Minute))
	v, err := g.Get(ctx, "semantic:a")
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	n, err := g.FlushByPattern(ctx, "semantic:*")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGuardedBackendMissesDoNotTrip(t *testing.T) {
	g := NewGuardedBackend(newMemoryBackend(), newBreaker(2), time.Second)
	for i := 0; i < 5; i++ {
		_, err := g.Get(context.Background(), "semantic:missing")
		assert.True(t, pkgredis.IsNilError(err))
	}
	assert.Equal(t, resilience.StateClosed, g.State())
}

func TestGuardedBackendOpensOnFailures(t *testing.T) {
	backend := newMemoryBackend()
	backend.getErr = errors.New("connection refused")
	g := NewGuardedBackend(backend, newBreaker(2), time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.Get(ctx, "semantic:k")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, g.State())

	_, err := g.Get(ctx, "semantic:k")
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.True(t, errors.Is(g.Set(ctx, "semantic:k", "[]", time.Minute), resilience.ErrCircuitOpen))

	// Invalidation still reaches the backend.
	_, err = g.FlushByPattern(ctx, "semantic:*")
	assert.NoError(t, err)
}

func TestGuardedBackendTimeout(t *testing.T) {
	g := NewGuardedBackend(&blockingBackend{}, newBreaker(5), 20*time.Millisecond)
	_, err := g.Get(context.Background(), "semantic:k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
}

func TestHitCacheOverOpenCircuitMisses(t *testing.T) {
	backend := newMemoryBackend()
	backend.getErr = errors.New("connection refused")
	g := NewGuardedBackend(backend, newBreaker(1), time.Second)
	c := New(g, time.Minute, nil)
	key := Key{Kind: KindSearch, Query: "rust", Limit: 10}

	for i := 0; i < 3; i++ {
		_, ok := c.Get(context.Background(), key)
		assert.False(t, ok)
	}
	_, misses := c.Stats()
	assert.Equal(t, int64(3), misses)
}
