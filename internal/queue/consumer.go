package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/audit"
)

// AuditStore persists audit events.
type AuditStore interface {
	Insert(ctx context.Context, e audit.Event) error
}

// AuditConsumer drains the audit queue into an AuditStore.
type AuditConsumer struct {
	url   string
	queue string
	store AuditStore
	log   *zap.Logger
}

func NewAuditConsumer(url, queue string, store AuditStore, log *zap.Logger) *AuditConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditConsumer{url: url, queue: queue, store: store, log: log.Named("audit-consumer")}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set qos failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *AuditConsumer) deliver(ctx context.Context, d amqp.Delivery) {
	requeue, err := c.handle(ctx, d.Body)
	if err != nil {
		c.log.Warn("handle audit message failed", zap.Bool("requeue", requeue), zap.Error(err))
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// handle stores one message. Undecodable messages are dropped; store
// failures are requeued.
func (c *AuditConsumer) handle(ctx context.Context, body []byte) (requeue bool, err error) {
	var e audit.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return false, fmt.Errorf("unmarshal: %w", err)
	}
	if e.ID == "" {
		return false, errors.New("audit event without id")
	}
	if err := c.store.Insert(ctx, e); err != nil {
		return true, fmt.Errorf("store: %w", err)
	}
	return false, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
