package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"productservice/internal/platform/bus"
	"productservice/internal/platform/observability"
	"productservice/internal/product"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// State is the position of one message in its processing lifecycle.
type State string

const (
	StateReceived      State = "received"
	StateParsed        State = "parsed"
	StateRouted        State = "routed"
	StateHandled       State = "handled"
	StateHandlerFailed State = "handler-failed"
)

// StockService is the part of the stock engine driven by order events.
type StockService interface {
	Reserve(ctx context.Context, id string, quantity int, correlationID string) (product.StockMutation, error)
	Release(ctx context.Context, id string, quantity int, correlationID string) (product.StockMutation, error)
}

// Dispatcher drains a bus consumer and maps each message to stock operations. A failing or
// panicking message is logged and acknowledged; the loop always moves on.
type Dispatcher struct {
	consumer bus.Consumer
	stock    StockService
	dedupe   Deduper
	logger   *zap.Logger
	tracer   observability.Tracer
	metrics  *observability.Metrics

	minFetchBackoff time.Duration
	maxFetchBackoff time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher wires a dispatcher. dedupe, tracer and metrics may be nil.
func NewDispatcher(consumer bus.Consumer, stock StockService, dedupe Deduper, logger *zap.Logger, tracer observability.Tracer, metrics *observability.Metrics) *Dispatcher {
	if dedupe == nil {
		dedupe = NopDeduper{}
	}
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	return &Dispatcher{
		consumer:        consumer,
		stock:           stock,
		dedupe:          dedupe,
		logger:          logger.With(zap.String("component", "order-dispatcher")),
		tracer:          tracer,
		metrics:         metrics,
		minFetchBackoff: 500 * time.Millisecond,
		maxFetchBackoff: 10 * time.Second,
	}
}

// Start runs the loop in the background on its own context.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		d.Run(ctx)
	}()
}

// Stop stops fetching and waits for the message in progress, or for ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes until ctx is cancelled or the consumer is closed. Fetch errors are retried
// with exponential backoff.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Order dispatcher started. Waiting for messages...")

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = d.minFetchBackoff
	retry.MaxInterval = d.maxFetchBackoff
	retry.MaxElapsedTime = 0
	retry.Reset()

	for {
		msg, err := d.consumer.Fetch(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) || ctx.Err() != nil {
				d.logger.Info("Context done, exiting read loop.", zap.Error(err))
				break
			}
			wait := retry.NextBackOff()
			d.logger.Error("❌ Error reading from bus", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		// A message that has been fetched is finished even when shutdown begins.
		d.Handle(context.WithoutCancel(ctx), msg)
	}

	d.logger.Info("Order dispatcher finished.")
}

// Handle processes one message and acknowledges it. It returns the final state.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.Message) (state State) {
	ctx = extractTraceContext(ctx, msg.Headers)
	ctx, span := d.tracer.Start(ctx, msg.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingDestinationNameKey.String(msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	log := d.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	state = StateReceived
	defer func() {
		if r := recover(); r != nil {
			state = StateHandlerFailed
			log.Error("❌ Panic while handling message", zap.Any("panic", r), zap.Stack("stack"))
		}
		if err := d.consumer.Ack(ctx, msg); err != nil {
			log.Error("❌ Failed to acknowledge message", zap.Error(err))
		}
		if state == StateHandlerFailed {
			span.SetStatus(codes.Error, string(state))
		} else {
			span.SetStatus(codes.Ok, string(state))
		}
		d.metrics.Consumed(msg.Topic, string(state))
	}()

	log.Info("📨 Message received",
		zap.ByteString("key", msg.Key),
		zap.String("event_type", msg.Headers["event-type"]),
		zap.String("source", msg.Headers["source"]),
	)

	key := MessageKey(msg)
	claimed, err := d.dedupe.Claim(ctx, key)
	if err != nil {
		log.Warn("⚠️ Dedupe cache unavailable, processing anyway", zap.Error(err))
		claimed = true
	}
	if !claimed {
		log.Info("Duplicate message skipped", zap.String("message_key", key))
		return StateHandled
	}

	cmd, err := Decode(msg.Topic, msg.Value)
	if err != nil {
		span.RecordError(err)
		log.Error("❌ Invalid message payload", zap.Error(err), zap.ByteString("raw_value", msg.Value))
		return StateHandlerFailed
	}
	state = StateParsed
	span.SetAttributes(attribute.String("message.kind", string(cmd.Kind)))
	log = log.With(zap.String("kind", string(cmd.Kind)))
	state = StateRouted

	if err := d.route(ctx, log, cmd); err != nil {
		span.RecordError(err)
		log.Error("❌ Failed to handle message", zap.Error(err))
		return StateHandlerFailed
	}
	return StateHandled
}

func (d *Dispatcher) route(ctx context.Context, log *zap.Logger, cmd Command) error {
	switch cmd.Kind {
	case KindOrderCreated:
		log.Info("📥 Order created", zap.String("commande_id", cmd.Order.ID), zap.Int("items", len(cmd.Order.Items)))
		return d.applyEach(ctx, log, cmd.Order, d.stock.Reserve)
	case KindOrderDeleted:
		log.Info("📥 Order deleted", zap.String("commande_id", cmd.Order.ID), zap.Int("items", len(cmd.Order.Items)))
		return d.applyEach(ctx, log, cmd.Order, d.stock.Release)
	case KindOrderUpdated:
		// Quantity deltas are not carried by order updates yet.
		log.Info("📥 Order updated, nothing to apply", zap.String("commande_id", cmd.Order.ID))
	case KindClientCreated:
		log.Info("📥 Client created, nothing to apply", zap.String("client_id", cmd.ClientID))
	default:
		log.Info("ℹ️ Message not handled", zap.String("detail", cmd.Detail))
	}
	return nil
}

type stockOp func(ctx context.Context, id string, quantity int, correlationID string) (product.StockMutation, error)

// applyEach runs op for every line item independently. Business rejections are warnings;
// any other failure is returned once all items have been tried.
func (d *Dispatcher) applyEach(ctx context.Context, log *zap.Logger, order Order, op stockOp) error {
	var failed error
	for _, item := range order.Items {
		itemLog := log.With(
			zap.String("commande_id", order.ID),
			zap.String("product_id", item.ProductID),
			zap.Int("quantity", item.Quantity),
		)

		m, err := op(ctx, item.ProductID, item.Quantity, order.ID)
		switch {
		case err == nil:
			itemLog.Info("📦 Line item applied", zap.Int("new_stock", m.NewStock))
		case errors.Is(err, product.ErrInsufficientStock),
			errors.Is(err, product.ErrNotFound),
			errors.Is(err, product.ErrInvalidQuantity):
			itemLog.Warn("⚠️ Line item skipped", zap.Error(err))
		default:
			itemLog.Error("❌ Line item failed", zap.Error(err))
			failed = errors.Join(failed, fmt.Errorf("product %s: %w", item.ProductID, err))
		}
	}
	return failed
}

// extractTraceContext extracts OpenTelemetry trace context from message headers
func extractTraceContext(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
