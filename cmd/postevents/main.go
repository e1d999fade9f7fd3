// Command postevents publishes post lifecycle events to the semantic search
// service's Kafka topic. It emits a single event, or replays every published
// post from Postgres so running replicas upsert them all.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/posts"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/consumer"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	eventType := flag.String("type", string(consumer.EventPostUpdated), "event type to publish")
	postID := flag.String("post", "", "post ID for a single event")
	blogID := flag.String("blog", "", "blog ID for a single event")
	replay := flag.Bool("replay", false, "publish a post.updated event for every published post")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if len(cfg.Kafka.Brokers) == 0 {
		slog.Error("no kafka brokers configured")
		os.Exit(1)
	}
	if !*replay && *postID == "" {
		fmt.Fprintln(os.Stderr, "either -post or -replay is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.PostEvents)
	defer producer.Close()
	publisher := consumer.NewPublisher(producer)

	if *replay {
		if err := replayAll(ctx, cfg, publisher); err != nil {
			slog.Error("replay failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ev := consumer.PostEvent{
		Type:   consumer.EventType(*eventType),
		PostID: *postID,
		BlogID: *blogID,
	}
	if err := publisher.Publish(ctx, ev); err != nil {
		slog.Error("publish failed", "error", err)
		os.Exit(1)
	}
	slog.Info("post event published", "type", ev.Type, "post_id", ev.PostID, "topic", cfg.Kafka.Topics.PostEvents)
}

func replayAll(ctx context.Context, cfg *config.Config, publisher *consumer.Publisher) error {
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pg.Close()

	published, err := posts.NewStore(pg.DB).ListPublished(ctx)
	if err != nil {
		return err
	}
	if err := publisher.Replay(ctx, published); err != nil {
		return err
	}
	slog.Info("replayed published posts", "count", len(published), "topic", cfg.Kafka.Topics.PostEvents)
	return nil
}
