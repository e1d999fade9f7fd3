// Package consumer applies post lifecycle events from Kafka to the semantic
// index, keeping it current between full rebuilds.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/metrics"
)

// EventType names a post lifecycle transition.
type EventType string

const (
	EventPostCreated     EventType = "post.created"
	EventPostUpdated     EventType = "post.updated"
	EventPostPublished   EventType = "post.published"
	EventPostUnpublished EventType = "post.unpublished"
	EventPostDeleted     EventType = "post.deleted"
)

// PostEvent is the JSON message published on the post events topic. Post
// carries the indexable fields; when it is absent the post is read back
// from the post store.
type PostEvent struct {
	Type       EventType       `json:"type"`
	PostID     string          `json:"post_id"`
	BlogID     string          `json:"blog_id"`
	Post       *index.PostData `json:"post,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Indexer is the part of the semantic index the applier mutates.
type Indexer interface {
	Upsert(post index.PostData)
	Remove(postID string) bool
	Stats() index.Stats
}

// PostSource loads a single published post.
type PostSource interface {
	GetPublished(ctx context.Context, postID string) (index.PostData, error)
}

// Invalidator drops cached query results.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Applier turns post events into index mutations.
type Applier struct {
	index   Indexer
	posts   PostSource
	cache   Invalidator
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewApplier creates an Applier. posts, cache and m may be nil.
func NewApplier(ix Indexer, posts PostSource, cache Invalidator, m *metrics.Metrics) *Applier {
	return &Applier{
		index:   ix,
		posts:   posts,
		cache:   cache,
		metrics: m,
		logger:  slog.Default().With("component", "post-event-consumer"),
	}
}

// Apply performs the index mutation for ev. Malformed events return an
// ErrInvalidInput error; store failures are returned as-is so the message
// is retried before anything after it is committed.
func (a *Applier) Apply(ctx context.Context, ev PostEvent) error {
	if ev.PostID == "" && ev.Post != nil {
		ev.PostID = ev.Post.PostID
	}
	if ev.PostID == "" {
		return fmt.Errorf("%w: event %q has no post id", apperrors.ErrInvalidInput, ev.Type)
	}

	switch ev.Type {
	case EventPostCreated, EventPostUpdated, EventPostPublished:
		return a.upsert(ctx, ev)
	case EventPostUnpublished, EventPostDeleted:
		a.remove(ctx, ev.PostID)
		return nil
	default:
		return fmt.Errorf("%w: unknown event type %q", apperrors.ErrInvalidInput, ev.Type)
	}
}

func (a *Applier) upsert(ctx context.Context, ev PostEvent) error {
	var post index.PostData
	switch {
	case ev.Post != nil:
		post = *ev.Post
		if post.PostID == "" {
			post.PostID = ev.PostID
		}
		if post.BlogID == "" {
			post.BlogID = ev.BlogID
		}
	case a.posts != nil:
		loaded, err := a.posts.GetPublished(ctx, ev.PostID)
		if errors.Is(err, apperrors.ErrPostNotFound) {
			// Unpublished or deleted since the event was emitted.
			a.remove(ctx, ev.PostID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading post %s: %w", ev.PostID, err)
		}
		post = loaded
	default:
		return fmt.Errorf("%w: event %q for %s has no post payload", apperrors.ErrInvalidInput, ev.Type, ev.PostID)
	}

	a.index.Upsert(post)
	a.afterMutation(ctx, "upsert")
	a.logger.Info("post indexed", "post_id", post.PostID, "blog_id", post.BlogID, "event", ev.Type)
	return nil
}

func (a *Applier) remove(ctx context.Context, postID string) {
	if !a.index.Remove(postID) {
		a.logger.Debug("post not in index", "post_id", postID)
		return
	}
	a.afterMutation(ctx, "remove")
	a.logger.Info("post removed from index", "post_id", postID)
}

func (a *Applier) afterMutation(ctx context.Context, op string) {
	if a.metrics != nil {
		stats := a.index.Stats()
		a.metrics.IndexMutationsTotal.WithLabelValues(op).Inc()
		a.metrics.IndexDocuments.Set(float64(stats.Documents))
		a.metrics.IndexTerms.Set(float64(stats.Terms))
	}
	if a.cache != nil {
		if err := a.cache.Invalidate(ctx); err != nil {
			a.logger.Error("cache invalidation failed", "error", err)
		}
	}
}

// HandleMessage returns a Kafka MessageHandler that decodes post events
// and applies them. Undecodable and invalid events are logged and
// acknowledged.
func (a *Applier) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[PostEvent](value)
		if err != nil {
			a.logger.Error("failed to decode post event", "error", err, "key", string(key))
			a.count("unknown", "invalid")
			return nil
		}
		a.logger.Debug("processing post event", "type", ev.Type, "post_id", ev.PostID)

		err = a.Apply(ctx, ev)
		switch {
		case err == nil:
			a.count(string(ev.Type), "applied")
			return nil
		case errors.Is(err, apperrors.ErrInvalidInput):
			a.logger.Warn("skipping post event", "type", ev.Type, "post_id", ev.PostID, "error", err)
			a.count(string(ev.Type), "invalid")
			return nil
		default:
			a.count(string(ev.Type), "failed")
			return err
		}
	}
}

func (a *Applier) count(eventType, outcome string) {
	if a.metrics != nil {
		a.metrics.PostEventsTotal.WithLabelValues(eventType, outcome).Inc()
	}
}

// PostConsumer wraps a Kafka consumer subscribed to post events.
type PostConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *PostConsumer {
	return &PostConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "post-event-consumer"),
	}
}

// Start consumes post events until ctx is cancelled.
func (pc *PostConsumer) Start(ctx context.Context) error {
	pc.logger.Info("post event consumer starting")
	return pc.consumer.Start(ctx)
}
