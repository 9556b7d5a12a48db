package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrBufferFull is returned when the publisher inbox cannot take more events.
var ErrBufferFull = errors.New("event buffer full")

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("event publisher closed")

// KafkaPublisher writes envelopes to a Kafka topic from a background goroutine.
// Messages are keyed by correlation id so the events of one order keep their order.
type KafkaPublisher struct {
	w      *kafka.Writer
	logger *zap.Logger

	mu       sync.RWMutex
	closed   bool
	inbox    chan kafka.Message
	closeCh  chan struct{}
	stopOnce sync.Once
}

// NewKafkaPublisher creates a publisher and starts its delivery loop.
func NewKafkaPublisher(brokers []string, topic string, buf int, logger *zap.Logger) *KafkaPublisher {
	logger = logger.With(zap.String("topic", topic))
	p := &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.Error("failed to deliver events", zap.Int("count", len(messages)), zap.Error(err))
				}
			},
		},
		logger:  logger,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
	go p.run()
	logger.Info("kafka publisher started", zap.Strings("brokers", brokers))
	return p
}

func (p *KafkaPublisher) run() {
	defer close(p.closeCh)
	for m := range p.inbox {
		if err := p.w.WriteMessages(context.Background(), m); err != nil {
			p.logger.Error("failed to enqueue event", zap.ByteString("key", m.Key), zap.Error(err))
		}
	}
	if err := p.w.Close(); err != nil {
		p.logger.Error("failed to close kafka writer", zap.Error(err))
	}
}

// Publish enqueues the envelope without blocking.
func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", env.EventType, err)
	}
	msg := kafka.Message{
		Key:   []byte(env.CorrelationID),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events, flushes the inbox and waits for the writer to close.
func (p *KafkaPublisher) Close() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
	<-p.closeCh
	return nil
}

// Ensure KafkaPublisher implements Publisher
var _ Publisher = (*KafkaPublisher)(nil)
