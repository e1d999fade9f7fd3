package cache

import (
	"context"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/resilience"
)

// GuardedBackend bounds every call to the wrapped backend with a deadline.
// While the breaker is open Get and Set fail fast and queries run uncached.
type GuardedBackend struct {
	next    Backend
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

func NewGuardedBackend(next Backend, breaker *resilience.CircuitBreaker, timeout time.Duration) *GuardedBackend {
	return &GuardedBackend{next: next, breaker: breaker, timeout: timeout}
}

func (g *GuardedBackend) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := g.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, g.timeout, "cache get", func(ctx context.Context) error {
			v, err := g.next.Get(ctx, key)
			val = v
			return err
		})
	}, pkgredis.IsNilError)
	if err != nil {
		return "", err
	}
	return val, nil
}

func (g *GuardedBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return g.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, g.timeout, "cache set", func(ctx context.Context) error {
			return g.next.Set(ctx, key, value, ttl)
		})
	}, nil)
}

// FlushByPattern bypasses the breaker. Invalidation is attempted even while
// the circuit is open.
func (g *GuardedBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var n int64
	err := resilience.WithTimeout(ctx, g.timeout, "cache flush", func(ctx context.Context) error {
		deleted, err := g.next.FlushByPattern(ctx, pattern)
		n = deleted
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// State reports the breaker state for health checks.
func (g *GuardedBackend) State() resilience.State {
	return g.breaker.State()
}
