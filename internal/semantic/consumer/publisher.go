package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/index"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/kafka"
)

// EventSink is the subset of kafka.Producer used to publish post events.
type EventSink interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher emits post events keyed by post ID, so the events of one post
// are applied in order.
type Publisher struct {
	sink EventSink
	now  func() time.Time
}

func NewPublisher(sink EventSink) *Publisher {
	return &Publisher{sink: sink, now: time.Now}
}

// Publish sends a single event, stamping OccurredAt when unset.
func (p *Publisher) Publish(ctx context.Context, ev PostEvent) error {
	if ev.PostID == "" {
		return fmt.Errorf("publishing %s event: missing post id", ev.Type)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now().UTC()
	}
	return p.sink.Publish(ctx, kafka.Event{Key: ev.PostID, Value: ev})
}

// Replay publishes a post.updated event carrying the full payload for each
// post. Consumers upsert every post, which refreshes indexes that missed
// events.
func (p *Publisher) Replay(ctx context.Context, posts []index.PostData) error {
	now := p.now().UTC()
	events := make([]kafka.Event, 0, len(posts))
	for i := range posts {
		post := posts[i]
		events = append(events, kafka.Event{
			Key: post.PostID,
			Value: PostEvent{
				Type:       EventPostUpdated,
				PostID:     post.PostID,
				BlogID:     post.BlogID,
				Post:       &post,
				OccurredAt: now,
			},
		})
	}
	if err := p.sink.PublishBatch(ctx, events); err != nil {
		return fmt.Errorf("replaying %d posts: %w", len(posts), err)
	}
	return nil
}
