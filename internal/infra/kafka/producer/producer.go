package producer

import (
	"context"
	"sync"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-crawler/internal/config"
	"github.com/aliskhannn/image-crawler/internal/publisher"
)

const defaultBufferSize = 100000

// sender delivers one message to a topic.
type sender interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key, value []byte) error
	Close() error
}

type message struct {
	topic string
	value []byte
}

// Producer is a Kafka client with a bounded local buffer. Publish only
// enqueues into the buffer; a delivery goroutine started by Run drains it
// through one wbf producer per topic.
type Producer struct {
	brokers   []string
	strategy  retry.Strategy
	buffer    chan message
	newSender func(brokers []string, topic string) sender

	mu      sync.Mutex
	senders map[string]sender
	closed  bool
}

// New creates a new Producer.
// - cfg: Kafka configuration struct
// - s: retry strategy applied to every send
func New(cfg *config.Kafka, s retry.Strategy) *Producer {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}

	return &Producer{
		brokers:  cfg.Brokers,
		strategy: s,
		buffer:   make(chan message, size),
		newSender: func(brokers []string, topic string) sender {
			return wbfkafka.NewProducer(brokers, topic)
		},
		senders: make(map[string]sender),
	}
}

// Publish places value in the local buffer for topic. It returns
// publisher.ErrBufferFull when the buffer has no room.
func (p *Producer) Publish(topic string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return publisher.ErrBufferFull
	}

	select {
	case p.buffer <- message{topic: topic, value: value}:
		return nil
	default:
		return publisher.ErrBufferFull
	}
}

// Pending returns the number of buffered, undelivered messages.
func (p *Producer) Pending() int {
	return len(p.buffer)
}

// Run delivers buffered messages until ctx is cancelled, then drains
// whatever is left in the buffer before returning.
func (p *Producer) Run(ctx context.Context) error {
	zlog.Logger.Info().
		Int("buffer", cap(p.buffer)).
		Msg("starting kafka delivery loop")

	for {
		select {
		case <-ctx.Done():
			p.drain()
			return nil
		case msg := <-p.buffer:
			p.deliver(ctx, msg)
		}
	}
}

func (p *Producer) drain() {
	for {
		select {
		case msg := <-p.buffer:
			p.deliver(context.Background(), msg)
		default:
			return
		}
	}
}

func (p *Producer) deliver(ctx context.Context, msg message) {
	if err := p.sender(msg.topic).SendWithRetry(ctx, p.strategy, nil, msg.value); err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("topic", msg.topic).
			Msg("failed to deliver message")
	}
}

func (p *Producer) sender(topic string) sender {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.senders[topic]
	if !ok {
		s = p.newSender(p.brokers, topic)
		p.senders[topic] = s
	}

	return s
}

// Close rejects further publishes and closes every topic writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	var firstErr error
	for topic, s := range p.senders {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.senders, topic)
	}

	return firstErr
}
