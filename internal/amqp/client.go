// Package amqp publishes and consumes ledger-changed events over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "spendwise/internal/log"
)

// RoutingKey is the direct-exchange key every ledger event is published under.
const RoutingKey = "ledger.changed"

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second

	// A failed message is held this long, doubling per consecutive failure,
	// before it is requeued.
	redeliveryDelay    = 500 * time.Millisecond
	maxRedeliveryDelay = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *applog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// Handler processes one decoded message. A returned error requeues it.
type Handler func(ctx context.Context, msg *LedgerChangedMessage) error

// NewClient dials url and declares the exchange and durable queue.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       applog.FromContext(context.Background()).WithComponent(applog.ComponentAMQP),
	}

	c.mu.Lock()
	err := c.connectLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

func setup(ch *amqp091.Channel, exchangeName, queueName string) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if queueName == "" {
		return nil
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queueName, RoutingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// ensureChannel reconnects when the channel was lost.
func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.closeLocked()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	c.logger.Info("Reconnected to AMQP broker", "exchange", c.exchangeName)
	return c.channel, nil
}

// PublishLedgerChanged publishes msg as a persistent JSON message.
func (c *Client) PublishLedgerChanged(ctx context.Context, msg *LedgerChangedMessage) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish ledger event: %w", ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := c.ensureChannel()
	if err != nil {
		c.recordFailure()
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		pubCtx,
		c.exchangeName, // exchange
		RoutingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.MessageID,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.resetConnection()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.logger.InfoContext(ctx, "Published ledger event",
		applog.FieldMessageID, msg.MessageID,
		applog.FieldUserID, msg.UserID,
		applog.FieldExpenseID, msg.ExpenseID,
		"action", msg.Action,
		"exchange", c.exchangeName)
	return nil
}

// Consume processes messages from the client's durable queue until ctx is
// cancelled, reconnecting with backoff when the broker goes away.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	if c.queueName == "" {
		return errors.New("consume: client has no queue configured")
	}
	return c.consumeLoop(ctx, func(*amqp091.Channel) (string, error) { return c.queueName, nil }, handler)
}

// Subscribe is like Consume but reads from a private, exclusive queue so that
// every subscriber sees every event.
func (c *Client) Subscribe(ctx context.Context, handler Handler) error {
	declare := func(ch *amqp091.Channel) (string, error) {
		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			return "", fmt.Errorf("declare subscriber queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, RoutingKey, c.exchangeName, false, nil); err != nil {
			return "", fmt.Errorf("bind subscriber queue: %w", err)
		}
		return q.Name, nil
	}
	return c.consumeLoop(ctx, declare, handler)
}

func (c *Client) consumeLoop(ctx context.Context, queue func(*amqp091.Channel) (string, error), handler Handler) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, queue, handler, func() { attempt = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !isConnectionError(err) && !errors.Is(err, errDeliveriesClosed) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		c.logger.WarnContext(ctx, "AMQP consumer disconnected, retrying",
			applog.FieldError, err, "retry_in", wait.String())
		c.resetConnection()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

var errDeliveriesClosed = errors.New("delivery channel closed")

func (c *Client) consumeOnce(ctx context.Context, queue func(*amqp091.Channel) (string, error), handler Handler, connected func()) error {
	ch, err := c.ensureChannel()
	if err != nil {
		return err
	}
	name, err := queue(ch)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		name,  // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	connected()

	c.logger.InfoContext(ctx, "Started consuming ledger events", "queue", name)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}
			if err := settle(ctx, c.logger, delivery.Body, delivery, handler, retryDelay(failures)); err != nil {
				failures++
			} else {
				failures = 0
			}
		}
	}
}

// acknowledger is the subset of amqp091.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// settle decodes body, runs handler and acks or nacks accordingly. Malformed
// messages are dropped. Handler failures are requeued after delay, which
// keeps a failing downstream from being retried in a tight loop; the
// handler's error is returned so the caller can grow the delay.
func settle(ctx context.Context, logger *applog.Logger, body []byte, ack acknowledger, handler Handler, delay time.Duration) error {
	msg, err := LedgerChangedMessageFromJSON(body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to decode message", applog.FieldError, err)
		_ = ack.Nack(false, false)
		return nil
	}

	if err := handler(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to handle message, requeueing",
			applog.FieldError, err,
			applog.FieldMessageID, msg.MessageID,
			applog.FieldExpenseID, msg.ExpenseID,
			"retry_in", delay.String())
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
			timer.Stop()
		}
		_ = ack.Nack(false, true)
		return err
	}

	_ = ack.Ack(false)
	logger.DebugContext(ctx, "Processed ledger event",
		applog.FieldMessageID, msg.MessageID,
		applog.FieldExpenseID, msg.ExpenseID)
	return nil
}

// retryDelay is the hold before requeueing after failures consecutive
// handler errors.
func retryDelay(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	if failures >= 6 {
		return maxRedeliveryDelay
	}
	d := redeliveryDelay << failures
	if d > maxRedeliveryDelay {
		return maxRedeliveryDelay
	}
	return d
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()

	n := atomic.AddInt64(&c.failureCount, 1)
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			c.logger.Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

func (c *Client) resetConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Ping reports whether the broker connection is currently open.
func (c *Client) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"EOF",
		"broken pipe",
		"use of closed network connection",
		"channel/connection is not open",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
