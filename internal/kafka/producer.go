package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ms-enrollment/internal/config"
	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order lifecycle events. Messages are keyed by order id
// so every event of one order lands on the same partition.
type Producer struct {
	Writer messageWriter
	Topics config.TopicConfig
	Logger *logger.Logger
}

// NewProducer returns an async producer: PublishOrderEvent only queues the
// message and delivery failures surface in the log, so a slow broker never
// holds up an order request.
func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	p := &Producer{Topics: topics, Logger: log}
	p.Writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		Async:        true,
		Completion:   p.delivered,
	}
	return p
}

// delivered runs on the writer's goroutine once a batch is acknowledged or given up on.
func (p *Producer) delivered(msgs []kafka.Message, err error) {
	for _, m := range msgs {
		if err != nil {
			p.Logger.Error("KAFKA", fmt.Sprintf("Delivery to %s failed for order #%s: %v", m.Topic, m.Key, err))
			continue
		}
		p.Logger.LogKafka("DELIVERED", m.Topic, fmt.Sprintf("order #%s", m.Key))
	}
}

func (p *Producer) PublishOrderEvent(ctx context.Context, ev models.OrderEvent) error {
	topic, err := p.topicFor(ev.Type)
	if err != nil {
		return err
	}

	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(ev.OrderID, 10)),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.EventID)},
		},
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	p.Logger.LogKafka("QUEUED", topic, fmt.Sprintf("order #%d %s", ev.OrderID, ev.State))
	return nil
}

func (p *Producer) topicFor(eventType string) (string, error) {
	switch eventType {
	case models.OrderEventCreated:
		return p.Topics.OrderCreated, nil
	case models.OrderEventStateChanged:
		return p.Topics.OrderStateChanged, nil
	default:
		return "", fmt.Errorf("no topic for event type %q", eventType)
	}
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
