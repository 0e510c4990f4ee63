package notification

import (
	"context"
	"log/slog"
)

// Sink delivers messages to users. Delivery is best effort: callers log a
// failure and carry on.
type Sink interface {
	Notify(ctx context.Context, m Message) error
}

// Publisher is the producer side of a message broker.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// KafkaSink publishes messages keyed by user id.
type KafkaSink struct {
	publisher Publisher
}

func NewKafkaSink(p Publisher) *KafkaSink {
	return &KafkaSink{publisher: p}
}

func (s *KafkaSink) Notify(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.publisher.Publish(ctx, m.UserID, m)
}

// LogSink writes messages to the log. Used when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "notification")}
}

func (s *LogSink) Notify(ctx context.Context, m Message) error {
	s.logger.InfoContext(ctx, "notify user",
		"message_id", m.ID, "user_id", m.UserID, "order_id", m.OrderID, "kind", m.Kind, "text", m.Text)
	return nil
}
