package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Client wraps one AMQP connection and channel. Channel operations are
// safe for concurrent use; the library serializes them internally.
type Client struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *logrus.Logger

	mu   sync.Mutex
	tags []string
}

// Dial connects to the broker and opens the shared channel.
func Dial(url string, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if uri, err := amqp.ParseURI(url); err == nil {
		logger.WithFields(logrus.Fields{"host": uri.Host, "vhost": uri.Vhost}).Info("connected to message broker")
	}
	go func() {
		if closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1)); closeErr != nil {
			logger.WithError(closeErr).Error("broker connection closed")
		}
	}()

	return &Client{conn: conn, ch: ch, logger: logger}, nil
}

// DeclareTopology declares the dispatch, retry and dead-letter queues plus
// the tenant callback exchange. Both binaries call it at startup; all
// declarations are idempotent.
//
// The dispatch queue dead-letters rejected messages into the dead queue.
// The retry queue holds messages for retryDelay and then dead-letters them
// back onto the dispatch queue, which is what schedules a retry.
func (c *Client) DeclareTopology(retryDelay time.Duration) error {
	dispatchArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadQueue,
	}
	if _, err := c.ch.QueueDeclare(DispatchQueue, true, false, false, false, dispatchArgs); err != nil {
		return fmt.Errorf("declare queue %s: %w", DispatchQueue, err)
	}

	retryArgs := amqp.Table{
		"x-message-ttl":             retryDelay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DispatchQueue,
	}
	if _, err := c.ch.QueueDeclare(RetryQueue, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("declare queue %s: %w", RetryQueue, err)
	}

	if _, err := c.ch.QueueDeclare(DeadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", DeadQueue, err)
	}

	if err := c.ch.ExchangeDeclare(CallbackExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", CallbackExchange, err)
	}
	return nil
}

// PublishTask publishes env to queueName on the default exchange as a
// persistent JSON message.
func (c *Client) PublishTask(ctx context.Context, queueName string, env *Envelope, headers amqp.Table) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", env.Task, err)
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	}
	if err := c.ch.PublishWithContext(ctx, "", queueName, false, false, publishing); err != nil {
		return fmt.Errorf("publish %s to %s: %w", env.Task, queueName, err)
	}
	return nil
}

// PublishTenantCallback routes env to a tenant callback queue through the
// callback exchange. The queue is declared and bound on every publish so
// tenants that have never consumed still accumulate their callbacks.
func (c *Client) PublishTenantCallback(ctx context.Context, queueName, routingKey string, env *Envelope) error {
	if _, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare tenant queue %s: %w", queueName, err)
	}
	if err := c.ch.QueueBind(queueName, routingKey, CallbackExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", queueName, CallbackExchange, err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", env.Task, err)
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    time.Now(),
		Body:         body,
	}
	if err := c.ch.PublishWithContext(ctx, CallbackExchange, routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("publish %s to %s: %w", env.Task, queueName, err)
	}
	return nil
}

// Consume starts a manual-ack consumer on queueName with the given
// prefetch window.
func (c *Client) Consume(queueName string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	tag := fmt.Sprintf("%s.%s", queueName, uuid.NewString()[:8])
	deliveries, err := c.ch.Consume(queueName, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queueName, err)
	}

	c.mu.Lock()
	c.tags = append(c.tags, tag)
	c.mu.Unlock()
	return deliveries, nil
}

// StopConsuming cancels all consumers started through Consume. In-flight
// deliveries drain before the delivery channels close.
func (c *Client) StopConsuming() {
	c.mu.Lock()
	tags := c.tags
	c.tags = nil
	c.mu.Unlock()

	for _, tag := range tags {
		if err := c.ch.Cancel(tag, false); err != nil {
			c.logger.WithError(err).WithField("consumer", tag).Warn("cancel consumer")
		}
	}
}

// IsConnected reports whether the underlying connection is still open.
func (c *Client) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Close shuts down the channel and connection.
func (c *Client) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
