package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
)

// handleTimeout bounds how long a single mirrored event may be processed
// before it is nacked back to the queue.
const handleTimeout = 30 * time.Second

// EventHandler processes one mirrored event. The routing key is the event
// name with ':' replaced by '.'. A non-nil error requeues the delivery.
type EventHandler func(ctx context.Context, routingKey string, body []byte) error

// Consumer drains one of the mirror queues with manual acknowledgement.
type Consumer struct {
	conn     *Connection
	logger   *logger.Logger
	queue    string
	tag      string
	prefetch int
}

// NewConsumer creates a consumer for the named queue.
func NewConsumer(conn *Connection, log *logger.Logger, queue, tag string, prefetch int) *Consumer {
	return &Consumer{
		conn:     conn,
		logger:   log,
		queue:    queue,
		tag:      tag,
		prefetch: prefetch,
	}
}

// Consume blocks processing deliveries until ctx is cancelled or the
// channel is lost beyond recovery.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	if c.conn.IsClosed() {
		if err := c.conn.Reconnect(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	if err := c.conn.Channel().Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.conn.Channel().Consume(
		c.queue,
		c.tag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("consumer_started",
		fmt.Sprintf("Consuming mirrored events from queue %s", c.queue),
		"", map[string]interface{}{
			"queue":    c.queue,
			"consumer": c.tag,
			"prefetch": c.prefetch,
		})

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer_stopped", "Consumer stopped by context", "", nil)
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Error("consumer_channel_lost", "Delivery channel closed, reconnecting", "", nil, nil)
				if err := c.conn.Reconnect(); err != nil {
					return fmt.Errorf("failed to reconnect after channel loss: %w", err)
				}
				return c.Consume(ctx, handler)
			}
			c.process(ctx, d, handler)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp091.Delivery, handler EventHandler) {
	started := time.Now()

	handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	err := handler(handleCtx, d.RoutingKey, d.Body)
	if err != nil {
		c.logger.Error("event_handling_failed", "Failed to process mirrored event",
			"", err, map[string]interface{}{
				"queue":       c.queue,
				"routing_key": d.RoutingKey,
				"duration_ms": time.Since(started).Milliseconds(),
			})
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("event_nack_failed", "Failed to nack delivery", "", nackErr, nil)
		}
		return
	}

	c.logger.Debug("event_handled", "Processed mirrored event",
		"", map[string]interface{}{
			"queue":       c.queue,
			"routing_key": d.RoutingKey,
			"duration_ms": time.Since(started).Milliseconds(),
		})
	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("event_ack_failed", "Failed to ack delivery", "", ackErr, nil)
	}
}

// DecodeEvent unmarshals a mirrored event body into v.
func DecodeEvent(body []byte, v any) error {
	return json.Unmarshal(body, v)
}

// Close cancels the consumer registration and its connection.
func (c *Consumer) Close() error {
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Channel().Cancel(c.tag, false); err != nil {
			c.logger.Error("consumer_cancel_failed", "Failed to cancel consumer", "", err, nil)
		}
		return c.conn.Close()
	}
	return nil
}
