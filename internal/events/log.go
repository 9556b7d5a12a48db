package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the structured log. Used when Kafka is not configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a publisher that logs at info level.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the envelope.
func (p *LogPublisher) Publish(ctx context.Context, env Envelope) error {
	p.logger.Info("event",
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.String("correlation_id", env.CorrelationID),
		zap.ByteString("payload", env.Payload),
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}

// Ensure LogPublisher implements Publisher
var _ Publisher = (*LogPublisher)(nil)
