package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-reservation/internal/logger"
)

const (
	handlerAttempts = 3
	retryBackoff    = 500 * time.Millisecond
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. A returned error is retried a few times
// before the message is committed anyway.
type Handler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	reader  messageReader
	topic   string
	logger  *logger.Logger
	backoff time.Duration
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
	return NewConsumerWithReader(reader, topic, log)
}

func NewConsumerWithReader(r messageReader, topic string, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.Discard()
	}
	return &Consumer{reader: r, topic: topic, logger: log, backoff: retryBackoff}
}

// Start consumes until ctx is cancelled. Offsets are committed only after the
// handler has run, so a crash mid-message redelivers it.
func (c *Consumer) Start(ctx context.Context, handle Handler) error {
	c.logger.LogKafka("CONSUME", c.topic, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.LogKafka("CONSUME", c.topic, "consumer stopped")
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading from %s: %v", c.topic, err))
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		c.process(ctx, handle, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit offset %d on %s: %v", msg.Offset, c.topic, err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, handle Handler, msg kafka.Message) {
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		err := handle(ctx, msg)
		if err == nil {
			return
		}
		c.logger.Warn("KAFKA", fmt.Sprintf("Handler failed for %s offset %d (attempt %d/%d): %v",
			c.topic, msg.Offset, attempt, handlerAttempts, err))
		if attempt < handlerAttempts && !sleep(ctx, c.backoff) {
			return
		}
	}
	c.logger.Error("KAFKA", fmt.Sprintf("Giving up on %s offset %d key=%s", c.topic, msg.Offset, string(msg.Key)))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
