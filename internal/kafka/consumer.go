package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RegistrationHandler reacts to a new account. Errors are logged and the
// message is still committed; registration alerts are not worth a redelivery loop.
type RegistrationHandler func(ctx context.Context, ev models.UserRegisteredEvent) error

type Consumer struct {
	reader messageReader
	topic  string
	logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, topic: topic, logger: log}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle RegistrationHandler) error {
	c.logger.LogKafka("CONSUME", c.topic, "consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading from %s: %v", c.topic, err))
			return err
		}

		c.handle(ctx, msg, handle)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Failed to commit offset %d on %s: %v", msg.Offset, c.topic, err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handle RegistrationHandler) {
	var ev models.UserRegisteredEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.Warn("KAFKA", fmt.Sprintf("Skipping malformed message at offset %d: %v", msg.Offset, err))
		return
	}
	if ev.UserID == "" {
		c.logger.Warn("KAFKA", fmt.Sprintf("Skipping registration without user id at offset %d", msg.Offset))
		return
	}

	c.logger.LogKafka("RECEIVE", c.topic, fmt.Sprintf("user %s registered via %s", ev.UserID, ev.AuthProvider))
	if err := handle(ctx, ev); err != nil {
		c.logger.Error("KAFKA", fmt.Sprintf("Registration handler failed for user %s: %v", ev.UserID, err))
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
