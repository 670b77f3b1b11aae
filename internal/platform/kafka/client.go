package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"productservice/internal/platform/bus"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config describes how to reach the cluster.
type Config struct {
	Brokers      []string
	ClientID     string
	GroupID      string
	Topics       []string
	BatchTimeout time.Duration
	BatchSize    int
}

// Probe dials the brokers and succeeds as soon as one answers.
func Probe(ctx context.Context, brokers []string) error {
	var errs error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("dial %s: %w", broker, err))
			continue
		}
		return conn.Close()
	}
	if errs == nil {
		errs = errors.New("no brokers configured")
	}
	return errs
}

// Publisher writes bus messages through the traced writer. Messages carry their own topic.
type Publisher struct {
	writer Writer
}

func NewPublisher(cfg Config, tp trace.TracerProvider) (*Publisher, error) {
	// Hash keeps one product on one partition.
	baseWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		BatchSize:              cfg.BatchSize,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingSystemKey.String("kafka"),
				attribute.String("messaging.kafka.client_id", cfg.ClientID),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("traced kafka writer: %w", err)
	}
	return NewPublisherWithWriter(writer), nil
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(writer Writer) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, msg bus.Message) error {
	return p.writer.WriteMessage(ctx, toKafka(msg))
}

func (p *Publisher) Close() error { return p.writer.Close() }

// Consumer reads the subscribed topics as one consumer group and commits explicitly.
type Consumer struct {
	reader Reader
	closed atomic.Bool
}

func NewConsumer(cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		StartOffset:    kafka.LastOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return NewConsumerWithReader(reader)
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(reader Reader) *Consumer {
	return &Consumer{reader: reader}
}

func (c *Consumer) Fetch(ctx context.Context) (bus.Message, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if c.closed.Load() || errors.Is(err, io.EOF) {
			return bus.Message{}, bus.ErrClosed
		}
		return bus.Message{}, err
	}
	return fromKafka(m), nil
}

func (c *Consumer) Ack(ctx context.Context, msg bus.Message) error {
	m, ok := msg.AckToken().(kafka.Message)
	if !ok {
		return fmt.Errorf("message from %s was not fetched by this consumer", msg.Topic)
	}
	return c.reader.CommitMessages(ctx, m)
}

func (c *Consumer) Close() error {
	c.closed.Store(true)
	return c.reader.Close()
}

func toKafka(msg bus.Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}

func fromKafka(m kafka.Message) bus.Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	return bus.Message{
		Topic:     m.Topic,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   headers,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
	}.WithAckToken(m)
}
