package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

// PubSubSender publishes notifications as JSON to a Pub/Sub topic.
type PubSubSender struct {
	publisher publisher
	topic     string
}

// NewPubSubSender wires a Pub/Sub backed sender.
func NewPubSubSender(pub publisher, topic string) (*PubSubSender, error) {
	if pub == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	if topic == "" {
		return nil, fmt.Errorf("notification topic required")
	}
	return &PubSubSender{publisher: pub, topic: topic}, nil
}

func (s *PubSubSender) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	attrs := map[string]string{
		"type":     string(n.Type),
		"order_id": n.OrderID.String(),
		"priority": string(n.Priority),
	}
	_, err = s.publisher.Publish(ctx, s.topic, payload, attrs)
	return err
}

// LogSender writes notifications to the structured log. Used when no
// Pub/Sub project is configured (local runs).
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	if s.logg == nil {
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"notification_type": n.Type,
		"recipient_id":      n.RecipientID.String(),
		"order_id":          n.OrderID.String(),
		"priority":          n.Priority,
	})
	s.logg.Info(ctx, n.Title)
	return nil
}
