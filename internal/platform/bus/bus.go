// Package bus is the broker-neutral message contract shared by the Kafka and RabbitMQ drivers.
package bus

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBusUnavailable is returned when the broker cannot be reached.
	ErrBusUnavailable = errors.New("bus: unavailable")
	// ErrClosed is returned by Fetch once the consumer has been closed.
	ErrClosed = errors.New("bus: closed")
)

// Message is one record on the bus. Partition and Offset are zero for brokers without them.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Time      time.Time

	// ackToken is driver state needed to acknowledge the message.
	ackToken any
}

// WithAckToken returns a copy of m carrying driver acknowledgement state.
func (m Message) WithAckToken(token any) Message {
	m.ackToken = token
	return m
}

// AckToken returns the driver state stored by WithAckToken.
func (m Message) AckToken() any { return m.ackToken }

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Consumer delivers messages at least once. Ack marks a fetched message as processed.
type Consumer interface {
	Fetch(ctx context.Context) (Message, error)
	Ack(ctx context.Context, msg Message) error
	Close() error
}
