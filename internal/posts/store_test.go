package posts

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/postgres"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "blog_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "blog"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    1, // temp tables are per session
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}
	client, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping store test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func TestStore(t *testing.T) {
	client := skipIfNoPostgres(t)
	ctx := context.Background()

	_, err := client.DB.ExecContext(ctx, `
		CREATE TEMP TABLE posts (
			id TEXT PRIMARY KEY,
			blog_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			summary TEXT,
			tags TEXT,
			status TEXT DEFAULT 'draft',
			published_at TIMESTAMPTZ
		)`)
	require.NoError(t, err)
	_, err = client.DB.ExecContext(ctx, `
		INSERT INTO posts (id, blog_id, title, content, summary, tags, status, published_at) VALUES
		('p1', 'b1', 'Rust Guide', 'ownership', 'intro', '["rust"]', 'published', NOW() - INTERVAL '1 day'),
		('p2', 'b1', 'Draft', 'wip', NULL, NULL, 'draft', NULL),
		('p3', 'b2', 'Go Guide', 'goroutines', NULL, NULL, 'published', NOW())`)
	require.NoError(t, err)

	store := NewStore(client.DB)

	t.Run("list published", func(t *testing.T) {
		posts, err := store.ListPublished(ctx)
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, "p1", posts[0].PostID)
		assert.Equal(t, `["rust"]`, posts[0].Tags)
		assert.Equal(t, "p3", posts[1].PostID)
		assert.Empty(t, posts[1].Summary)
	})

	t.Run("get published", func(t *testing.T) {
		post, err := store.GetPublished(ctx, "p3")
		require.NoError(t, err)
		assert.Equal(t, "b2", post.BlogID)
	})

	t.Run("draft is not found", func(t *testing.T) {
		_, err := store.GetPublished(ctx, "p2")
		assert.ErrorIs(t, err, apperrors.ErrPostNotFound)
	})
}
