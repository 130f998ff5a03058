package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smartconnect/auth-service/pkg/logging"
)

const DefaultTopic = "auth_events"

type Event struct {
	Type     string    `json:"type"`
	UserID   string    `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Producer publishes audit events to Kafka. Publishing is fire-and-forget:
// a delivery failure is logged and never surfaces to the auth flow.
type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{
		Writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		logging.FromContext(ctx).Error("audit_marshal_failed", "type", e.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := kafka.Message{Key: []byte(e.UserID), Value: data}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		logging.FromContext(ctx).Error("audit_publish_failed", "type", e.Type, "error", err)
	}
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// Nop discards events. Used where no broker is wired, e.g. in tests.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
