package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Writer is satisfied by the traced otelkafka writer.
type Writer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Reader is satisfied by *kafka.Reader in consumer-group mode with explicit commits.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
