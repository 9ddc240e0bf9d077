// Package publisher buffers outbound events in memory and flushes them to
// the broker on a fixed interval, absorbing broker backpressure without
// ever blocking the producers that enqueue events.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-crawler/internal/model"
)

// ErrBufferFull is returned by a Client whose local send buffer is exhausted.
// The publisher retries the same event after a back-off.
var ErrBufferFull = errors.New("publish buffer full")

const (
	DefaultInterval    = 60 * time.Second
	DefaultMaxAttempts = 10
	DefaultBackoff     = 5 * time.Second
)

// Client hands a serialized event to the broker.
type Client interface {
	Publish(topic string, value []byte) error
}

// ExhaustedFunc decides what happens to an event whose send attempts ran out.
type ExhaustedFunc func(p *Publisher, msg []byte)

// Drop abandons the event. It is the default exhaustion policy.
func Drop(p *Publisher, msg []byte) {
	zlog.Logger.Warn().
		Str("topic", p.topic).
		Int("bytes", len(msg)).
		Msg("dropping event after exhausting publish attempts")
}

// Requeue puts the event back on the queue so it joins the next batch.
func Requeue(p *Publisher, msg []byte) {
	p.push(msg)
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithInterval sets how long Run waits between flushes.
func WithInterval(d time.Duration) Option {
	return func(p *Publisher) { p.interval = d }
}

// WithMaxAttempts bounds how many times one event is offered to the client.
func WithMaxAttempts(n int) Option {
	return func(p *Publisher) { p.maxAttempts = n }
}

// WithBackoff sets the wait after the client reports a full buffer.
func WithBackoff(d time.Duration) Option {
	return func(p *Publisher) { p.backoff = d }
}

// WithOnExhausted replaces the exhaustion policy.
func WithOnExhausted(fn ExhaustedFunc) Option {
	return func(p *Publisher) { p.onExhausted = fn }
}

// WithRequeueOnExhaustion is shorthand for WithOnExhausted(Requeue).
func WithRequeueOnExhaustion() Option {
	return WithOnExhausted(Requeue)
}

// Publisher batches events for a single topic.
type Publisher struct {
	client      Client
	topic       string
	interval    time.Duration
	maxAttempts int
	backoff     time.Duration
	onExhausted ExhaustedFunc

	mu    sync.Mutex
	queue [][]byte
}

// New creates a Publisher for topic.
func New(client Client, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		client:      client,
		topic:       topic,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		onExhausted: Drop,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.onExhausted == nil {
		p.onExhausted = Drop
	}

	return p
}

// Topic returns the topic the publisher flushes to.
func (p *Publisher) Topic() string {
	return p.topic
}

// Enqueue serializes the event and appends it to the queue. An event that
// cannot be serialized is logged and dropped.
func (p *Publisher) Enqueue(event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		zlog.Logger.Warn().
			Err(err).
			Str("topic", p.topic).
			Str("identifier", event.GetIdentifier()).
			Msgf("failed to encode %T", event)
		return
	}

	p.push(data)
}

func (p *Publisher) push(msg []byte) {
	p.mu.Lock()
	p.queue = append(p.queue, msg)
	p.mu.Unlock()
}

// take swaps the queue out, leaving an empty one for concurrent enqueues.
func (p *Publisher) take() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	batch := p.queue
	p.queue = nil
	return batch
}

// Len returns the number of events waiting for the next flush.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.queue)
}

// Run flushes the queue every interval until ctx is cancelled or the client
// fails with an error other than ErrBufferFull.
func (p *Publisher) Run(ctx context.Context) error {
	zlog.Logger.Info().
		Str("topic", p.topic).
		Dur("interval", p.interval).
		Msg("starting publisher")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().
				Str("topic", p.topic).
				Int("pending", p.Len()).
				Msg("shutdown signal received, stopping publisher")
			return ctx.Err()
		case <-ticker.C:
		}

		if err := p.Flush(ctx); err != nil {
			return err
		}
	}
}

// Flush publishes one batch in enqueue order. Events enqueued while the
// flush is running are left for the next batch.
func (p *Publisher) Flush(ctx context.Context) error {
	batch := p.take()
	if len(batch) == 0 {
		return nil
	}

	zlog.Logger.Info().
		Str("topic", p.topic).
		Int("events", len(batch)).
		Msg("publishing events")

	start := time.Now()
	for i, msg := range batch {
		if err := p.send(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Keep the unsent tail for a later flush.
				for _, m := range batch[i:] {
					p.push(m)
				}
			}
			return fmt.Errorf("publish to %s: %w", p.topic, err)
		}
	}

	elapsed := time.Since(start).Seconds()
	rate := float64(len(batch))
	if elapsed > 0 {
		rate /= elapsed
	}
	zlog.Logger.Info().
		Str("topic", p.topic).
		Float64("publish_rate", rate).
		Msg("batch published")

	return nil
}

// send offers msg to the client until it is accepted, the attempts run out,
// or the client fails with an error other than ErrBufferFull.
func (p *Publisher) send(ctx context.Context, msg []byte) error {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := p.client.Publish(p.topic, msg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrBufferFull) {
			return err
		}

		zlog.Logger.Info().
			Str("topic", p.topic).
			Int("attempts", attempt).
			Msg("publisher backing off due to broker overload")

		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff):
		}
	}

	p.onExhausted(p, msg)
	return nil
}
