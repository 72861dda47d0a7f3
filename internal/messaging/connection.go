// Package messaging mirrors committed venue events to RabbitMQ so
// off-process consumers (printers, analytics, archival) can follow the
// event stream without connecting to the dispatcher.
package messaging

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/antonio12761/roxy-bar-sub000/internal/config"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
)

// EventsExchange is the topic exchange every mirrored event is published to.
// Routing keys are the event names with ':' replaced by '.'.
const EventsExchange = "venue_events"

// Connection wraps the RabbitMQ connection with retry and reconnection.
type Connection struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *logger.Logger
	url     string
}

// New connects to RabbitMQ and declares the event topology.
func New(cfg *config.Config, log *logger.Logger) (*Connection, error) {
	c := &Connection{
		logger: log,
		url:    cfg.RabbitMQURL(),
	}
	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return c, nil
}

func (c *Connection) connect() error {
	maxRetries := 5
	var err error

	for i := 0; i < maxRetries; i++ {
		c.conn, err = amqp091.Dial(c.url)
		if err == nil {
			c.channel, err = c.conn.Channel()
			if err == nil {
				if setupErr := c.setupTopology(); setupErr != nil {
					c.logger.Error("rabbitmq_setup_failed", "Failed to set up topology", "startup", setupErr, nil)
					c.close()
					err = setupErr
				} else {
					return nil
				}
			} else {
				c.conn.Close()
			}
		}

		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * 2 * time.Second
			c.logger.Error("rabbitmq_connection_failed",
				fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", waitTime),
				"startup", err, nil)
			time.Sleep(waitTime)
		}
	}

	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// setupTopology declares the events exchange and the durable queues bound
// to it.
func (c *Connection) setupTopology() error {
	err := c.channel.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", EventsExchange, err)
	}

	queues := []struct {
		name       string
		routingKey string
	}{
		{"events_archive", "#"},
		{"order_alerts", "order.*"},
		{"merge_alerts", "merge.*"},
	}

	for _, q := range queues {
		_, err = c.channel.QueueDeclare(
			q.name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			amqp091.Table{
				"x-message-ttl": 300000, // 5 minutes
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}

		err = c.channel.QueueBind(q.name, q.routingKey, EventsExchange, false, nil)
		if err != nil {
			return fmt.Errorf("failed to bind queue %s with routing key %s: %w", q.name, q.routingKey, err)
		}
	}

	return nil
}

// Channel returns the current channel.
func (c *Connection) Channel() *amqp091.Channel {
	return c.channel
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.close()
}

func (c *Connection) close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsClosed checks if the connection is closed.
func (c *Connection) IsClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

// Reconnect attempts to reconnect to RabbitMQ.
func (c *Connection) Reconnect() error {
	c.close()
	return c.connect()
}
