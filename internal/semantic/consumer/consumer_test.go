package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/metrics"
)

type fakeStore struct {
	posts map[string]index.PostData
	err   error
	calls int
}

func (s *fakeStore) GetPublished(_ context.Context, postID string) (index.PostData, error) {
	s.calls++
	if s.err != nil {
		return index.PostData{}, s.err
	}
	p, ok := s.posts[postID]
	if !ok {
		return index.PostData{}, fmt.Errorf("post %s: %w", postID, apperrors.ErrPostNotFound)
	}
	return p, nil
}

type fakeCache struct{ invalidations int }

func (c *fakeCache) Invalidate(context.Context) error {
	c.invalidations++
	return nil
}

func seededIndex() *index.Index {
	ix := index.New()
	ix.Rebuild([]index.PostData{
		{PostID: "p1", BlogID: "b1", Title: "Rust ownership", Content: "borrow checker lifetimes"},
		{PostID: "p2", BlogID: "b1", Title: "Go channels", Content: "goroutines and select"},
	})
	return ix
}

func encode(t *testing.T, ev PostEvent) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return data
}

func TestApplyUpsertWithPayload(t *testing.T) {
	ix := seededIndex()
	c := &fakeCache{}
	a := NewApplier(ix, nil, c, nil)

	err := a.Apply(context.Background(), PostEvent{
		Type:   EventPostCreated,
		PostID: "p3",
		BlogID: "b2",
		Post:   &index.PostData{Title: "Kubernetes operators", Content: "controllers reconcile state"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, ix.DocCount())
	hits := ix.Search("kubernetes", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "p3", hits[0].PostID)
	assert.Equal(t, "b2", hits[0].BlogID)
	assert.Equal(t, 1, c.invalidations)
}

func TestApplyUpsertLoadsFromStore(t *testing.T) {
	ix := seededIndex()
	store := &fakeStore{posts: map[string]index.PostData{
		"p2": {PostID: "p2", BlogID: "b1", Title: "Go generics", Content: "type parameters"},
	}}
	a := NewApplier(ix, store, nil, nil)

	require.NoError(t, a.Apply(context.Background(), PostEvent{Type: EventPostUpdated, PostID: "p2"}))
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 2, ix.DocCount())
	assert.Empty(t, ix.Search("goroutines", 10))
	assert.NotEmpty(t, ix.Search("generics", 10))
}

func TestApplyUpsertOfUnpublishedPostRemovesIt(t *testing.T) {
	ix := seededIndex()
	a := NewApplier(ix, &fakeStore{posts: map[string]index.PostData{}}, nil, nil)

	require.NoError(t, a.Apply(context.Background(), PostEvent{Type: EventPostPublished, PostID: "p1"}))
	assert.Equal(t, 1, ix.DocCount())
	assert.Empty(t, ix.Search("rust", 10))
}

func TestApplyUpsertStoreFailure(t *testing.T) {
	ix := seededIndex()
	a := NewApplier(ix, &fakeStore{err: errors.New("connection refused")}, nil, nil)

	err := a.Apply(context.Background(), PostEvent{Type: EventPostUpdated, PostID: "p1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, 2, ix.DocCount())
}

func TestApplyRemove(t *testing.T) {
	for _, typ := range []EventType{EventPostUnpublished, EventPostDeleted} {
		t.Run(string(typ), func(t *testing.T) {
			ix := seededIndex()
			c := &fakeCache{}
			a := NewApplier(ix, nil, c, nil)

			require.NoError(t, a.Apply(context.Background(), PostEvent{Type: typ, PostID: "p1"}))
			assert.Equal(t, 1, ix.DocCount())
			assert.Equal(t, 1, c.invalidations)

			// Removing again is a no-op and leaves the cache alone.
			require.NoError(t, a.Apply(context.Background(), PostEvent{Type: typ, PostID: "p1"}))
			assert.Equal(t, 1, c.invalidations)
		})
	}
}

func TestApplyInvalidEvents(t *testing.T) {
	tests := []struct {
		name string
		ev   PostEvent
	}{
		{"missing post id", PostEvent{Type: EventPostDeleted}},
		{"unknown type", PostEvent{Type: "post.archived", PostID: "p1"}},
		{"upsert without payload or store", PostEvent{Type: EventPostCreated, PostID: "p9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := seededIndex()
			err := NewApplier(ix, nil, nil, nil).Apply(context.Background(), tt.ev)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			assert.Equal(t, 2, ix.DocCount())
		})
	}
}

func TestHandleMessage(t *testing.T) {
	ix := seededIndex()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	store := &fakeStore{err: errors.New("timeout")}
	handle := NewApplier(ix, store, nil, m).HandleMessage()
	ctx := context.Background()

	require.NoError(t, handle(ctx, []byte("p1"), encode(t, PostEvent{Type: EventPostDeleted, PostID: "p1"})))
	require.NoError(t, handle(ctx, []byte("x"), []byte("{not json")))
	require.NoError(t, handle(ctx, []byte("p2"), encode(t, PostEvent{Type: "post.liked", PostID: "p2"})))
	// Store failures are returned so the message is not committed.
	require.Error(t, handle(ctx, []byte("p2"), encode(t, PostEvent{Type: EventPostUpdated, PostID: "p2"})))

	assert.Equal(t, 1, ix.DocCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostEventsTotal.WithLabelValues("post.deleted", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostEventsTotal.WithLabelValues("unknown", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostEventsTotal.WithLabelValues("post.liked", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostEventsTotal.WithLabelValues("post.updated", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexMutationsTotal.WithLabelValues("remove")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexDocuments))
}
