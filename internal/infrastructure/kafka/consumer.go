package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one record. Returning an error asks for a retry.
type MessageHandler func(ctx context.Context, key, value []byte) error

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 200 * time.Millisecond
)

// Consumer reads a topic as part of a consumer group. Offsets are committed
// only after the handler has run, so a crash before commit redelivers.
type Consumer struct {
	reader      *kafka.Reader
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{
		reader:      reader,
		logger:      logger.With("component", "kafka_consumer", "topic", topic, "group", groupID),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
}

// Consume fetches until ctx is cancelled. A failing record is retried with
// backoff up to maxAttempts and then committed so one poison message cannot
// stall the partition.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("fetch message", "error", err)
			continue
		}

		if err := c.handle(ctx, handler, msg); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("commit offset", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// handle runs handler with retries. It only returns an error when ctx ends.
func (c *Consumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return nil
		}
		if attempt >= c.maxAttempts {
			c.logger.Error("giving up on message",
				"partition", msg.Partition, "offset", msg.Offset, "attempts", attempt, "error", err)
			return nil
		}
		c.logger.Warn("handle message, retrying",
			"partition", msg.Partition, "offset", msg.Offset, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
