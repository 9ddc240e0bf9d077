package consumer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-crawler/internal/config"
)

// taskHandler defines the interface for handling inbound image task messages.
type taskHandler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// client is the subset of the wbf consumer used by Consume.
type client interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer represents a Kafka consumer along with its configuration
// and the handler that dispatches inbound image tasks.
type Consumer struct {
	Client      client
	taskHandler taskHandler
	topic       string
	strategy    retry.Strategy
	backoff     time.Duration
}

// New creates a new Consumer for the inbound task topic.
// - cfg: Kafka configuration struct
// - s: retry strategy
// - th: handler for inbound image tasks
func New(
	cfg *config.Kafka,
	s retry.Strategy,
	th taskHandler,
) *Consumer {
	consumer := wbfkafka.NewConsumer(cfg.Brokers, cfg.InboundTopic, cfg.GroupID)

	return &Consumer{
		Client:      consumer,
		taskHandler: th,
		topic:       cfg.InboundTopic,
		strategy:    s,
		backoff:     500 * time.Millisecond,
	}
}

// Consume continuously fetches messages from Kafka, hands them to the handler,
// and commits offsets once the handler accepted them. It stops gracefully on
// context cancellation.
func (c *Consumer) Consume(ctx context.Context) {
	zlog.Logger.Info().
		Str("topic", c.topic).
		Msg("starting consumer")

	for {
		// Exit if context is canceled (graceful shutdown).
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return
		}

		// Fetch a message from Kafka with retries.
		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.Client.Fetch(ctx)
			return fetchErr
		}, c.strategy)

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			// Log error and retry after a short backoff.
			zlog.Logger.Err(err).Msg("failed to fetch message")
			select {
			case <-ctx.Done():
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := c.taskHandler.Handle(ctx, msg); err != nil {
			// Leave the offset uncommitted so the task is redelivered.
			if ctx.Err() != nil {
				continue
			}
			zlog.Logger.Err(err).
				Str("message", string(msg.Value)).
				Msg("failed to dispatch image task")
		}

		// Commit even rejected messages: a malformed task will never parse.
		err = retry.Do(func() error {
			return c.Client.Commit(ctx, msg)
		}, c.strategy)
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to commit message after retries")
			continue
		}

		zlog.Logger.Debug().
			Int64("offset", msg.Offset).
			Msg("message handled")
	}
}
