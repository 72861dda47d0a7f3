package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
)

// Publisher mirrors event envelopes to the events exchange.
type Publisher struct {
	conn   *Connection
	logger *logger.Logger
}

// NewPublisher creates a publisher over an established connection.
func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: log,
	}
}

// Publish mirrors one event. The routing key is the event name with ':'
// replaced by '.', so "order:new" lands under "order.new".
func (p *Publisher) Publish(ctx context.Context, event string, body any) error {
	if p.conn.IsClosed() {
		if err := p.conn.Reconnect(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	routingKey := strings.ReplaceAll(event, ":", ".")
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: 2, // persistent
		Timestamp:    time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.conn.Channel().PublishWithContext(
		ctx,
		EventsExchange,
		routingKey,
		false, // mandatory
		false, // immediate
		publishing,
	)
	if err != nil {
		p.logger.Error("message_publish_failed",
			fmt.Sprintf("Failed to publish message to exchange %s", EventsExchange),
			"", err, map[string]interface{}{
				"routing_key": routingKey,
			})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message_published",
		fmt.Sprintf("Published message to exchange %s", EventsExchange),
		"", map[string]interface{}{
			"routing_key":  routingKey,
			"message_size": len(payload),
		})

	return nil
}

// Close closes the publisher's connection.
func (p *Publisher) Close() error {
	return p.conn.Close()
}
