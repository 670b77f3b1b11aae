// Package rabbitmq implements the bus contract on a RabbitMQ topic exchange. The routing key
// of every message is its topic name.
package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"productservice/internal/platform/bus"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "produits"
	ExchangeType = "topic"
	prefetch     = 16
)

// dial opens a connection and a channel and declares the exchange.
func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}
	return conn, ch, nil
}

type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url string) (*Publisher, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, msg bus.Message) error {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	return p.ch.PublishWithContext(ctx,
		ExchangeName, // exchange
		msg.Topic,    // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     msg.Headers["message-id"],
			CorrelationId: string(msg.Key),
			Timestamp:     time.Now(),
			Headers:       headers,
			Body:          msg.Value,
		},
	)
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}

// Consumer reads a durable queue bound to every subscribed topic and acks manually.
type Consumer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func NewConsumer(url, queue string, topics []string) (*Consumer, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("could not declare queue: %w", err)
	}

	for _, topic := range topics {
		if err := ch.QueueBind(q.Name, topic, ExchangeName, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("could not bind queue to %s: %w", topic, err)
		}
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("could not set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer tag
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("could not start consume: %w", err)
	}

	return &Consumer{conn: conn, ch: ch, deliveries: deliveries}, nil
}

func (c *Consumer) Fetch(ctx context.Context) (bus.Message, error) {
	select {
	case <-ctx.Done():
		return bus.Message{}, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			return bus.Message{}, bus.ErrClosed
		}
		return fromDelivery(d), nil
	}
}

func (c *Consumer) Ack(_ context.Context, msg bus.Message) error {
	tag, ok := msg.AckToken().(uint64)
	if !ok {
		return fmt.Errorf("message from %s was not fetched by this consumer", msg.Topic)
	}
	return c.ch.Ack(tag, false)
}

func (c *Consumer) Close() error {
	return c.conn.Close()
}

func fromDelivery(d amqp.Delivery) bus.Message {
	headers := make(map[string]string, len(d.Headers)+1)
	for k, v := range d.Headers {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case []byte:
			headers[k] = string(val)
		case int64:
			headers[k] = strconv.FormatInt(val, 10)
		default:
			headers[k] = fmt.Sprint(val)
		}
	}
	if _, ok := headers["message-id"]; !ok && d.MessageId != "" {
		headers["message-id"] = d.MessageId
	}
	return bus.Message{
		Topic:   d.RoutingKey,
		Key:     []byte(d.CorrelationId),
		Value:   d.Body,
		Headers: headers,
		Offset:  int64(d.DeliveryTag),
		Time:    d.Timestamp,
	}.WithAckToken(d.DeliveryTag)
}
