package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/audit"
	"github.com/iliyamo/pharmatrace/internal/config"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes JSON messages to durable queues over one long-lived
// connection. A closed channel is reopened on the next publish.
type Publisher struct {
	mu           sync.Mutex
	conn         *amqp.Connection
	ch           channel
	open         func() (channel, error)
	auditQueue   string
	custodyQueue string
	log          *zap.Logger
}

// NewPublisher dials the broker and declares both queues.
func NewPublisher(cfg config.AMQPConfig, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("queue: dial: %w", err)
	}
	p := &Publisher{
		conn:         conn,
		auditQueue:   cfg.AuditQueue,
		custodyQueue: cfg.CustodyQueue,
		log:          log.Named("queue"),
	}
	p.open = func() (channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("queue: channel open: %w", err)
		}
		for _, q := range []string{cfg.AuditQueue, cfg.CustodyQueue} {
			if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
				_ = ch.Close()
				return nil, fmt.Errorf("queue: declare %s: %w", q, err)
			}
		}
		return ch, nil
	}
	ch, err := p.open()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.ch = ch
	return p, nil
}

// Record publishes a security audit event. It implements audit.Sink.
func (p *Publisher) Record(ctx context.Context, e audit.Event) error {
	return p.publish(ctx, p.auditQueue, e)
}

// PublishCustody publishes a batch custody event.
func (p *Publisher) PublishCustody(ctx context.Context, e CustodyEvent) error {
	return p.publish(ctx, p.custodyQueue, e)
}

func (p *Publisher) publish(ctx context.Context, queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("queue: marshal: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		if p.open == nil {
			return errors.New("queue: publisher closed")
		}
		ch, err := p.open()
		if err != nil {
			p.log.Warn("reopen channel failed", zap.Error(err))
			return err
		}
		p.ch = ch
	}
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		p.log.Warn("publish failed", zap.String("queue", queue), zap.Error(err))
		_ = p.ch.Close()
		p.ch = nil
		return fmt.Errorf("queue: publish %s: %w", queue, err)
	}
	return nil
}

// Ping reports whether the broker connection is up.
func (p *Publisher) Ping(context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("queue: connection closed")
	}
	return nil
}

// Close closes the channel, then the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	p.open = nil
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

var _ audit.Sink = (*Publisher)(nil)
