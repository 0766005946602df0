package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Keys     []string
	Prefetch int
	// DLX, when set, dead-letters rejected messages into DLX/DLQ.
	DLX string
	DLQ string
	Tag string
}

type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  ConsumerConfig
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	c := &Consumer{conn: conn, ch: ch, cfg: cfg}
	if err := c.declare(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) declare() error {
	ch := c.ch
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	args := amqp.Table{}
	if c.cfg.DLX != "" {
		args["x-dead-letter-exchange"] = c.cfg.DLX
		if err := ch.ExchangeDeclare(c.cfg.DLX, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dlx: %w", err)
		}
		if _, err := ch.QueueDeclare(c.cfg.DLQ, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dlq: %w", err)
		}
		if err := ch.QueueBind(c.cfg.DLQ, "#", c.cfg.DLX, false, nil); err != nil {
			return fmt.Errorf("bind dlq: %w", err)
		}
	}

	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	c.cfg.Queue = q.Name
	for _, rk := range c.cfg.Keys {
		if err := ch.QueueBind(q.Name, rk, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", rk, err)
		}
	}

	if c.cfg.Prefetch <= 0 {
		c.cfg.Prefetch = 8
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Deliveries starts a manual-ack consumer on the queue.
func (c *Consumer) Deliveries(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
