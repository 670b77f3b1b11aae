package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"productservice/internal/platform/bus"
	"productservice/internal/platform/observability"
	"productservice/internal/product"

	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often a failed publication is attempted. Attempts below two
// means a single try.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func (r RetryPolicy) backOff() backoff.BackOff {
	if r.Attempts < 2 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Backoff), uint64(r.Attempts-1))
}

type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Retry     RetryPolicy
}

// Publisher is an asynchronous product.Notifier. Events are queued per key shard so the
// events of one product leave in the order they were produced. Queueing never blocks: a
// full shard drops the event.
type Publisher struct {
	bus     bus.Publisher
	logger  *zap.Logger
	metrics *observability.Metrics
	opts    Options

	shards []chan bus.Message
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool

	// base is cancelled when Close gives up waiting.
	base   context.Context
	cancel context.CancelFunc

	now   func() time.Time
	newID func() string
}

var _ product.Notifier = (*Publisher)(nil)

func NewPublisher(b bus.Publisher, logger *zap.Logger, metrics *observability.Metrics, opts Options) *Publisher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	shards := make([]chan bus.Message, opts.Workers)
	for i := range shards {
		shards[i] = make(chan bus.Message, opts.QueueSize)
	}
	base, cancel := context.WithCancel(context.Background())

	return &Publisher{
		bus:     b,
		logger:  logger.With(zap.String("component", "event-publisher")),
		metrics: metrics,
		opts:    opts,
		shards:  shards,
		base:    base,
		cancel:  cancel,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Start launches one worker per shard. It is a no-op after the first call.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i, shard := range p.shards {
		p.wg.Add(1)
		go p.work(i, shard)
	}
	p.logger.Info("Event publisher started", zap.Int("workers", len(p.shards)))
}

func (p *Publisher) ProductCreated(prod product.Product) {
	p.emit(createdEvent(prod, p.now()))
}

func (p *Publisher) ProductUpdated(before, after product.Product) {
	p.emit(updatedEvent(before, after, p.now()))
}

func (p *Publisher) ProductDeleted(prod product.Product) {
	p.emit(deletedEvent(prod, p.now()))
}

func (p *Publisher) StockMutated(m product.StockMutation) {
	p.emit(stockEvent(m, p.now()))
}

func (p *Publisher) emit(e event) {
	value, err := json.Marshal(e.payload)
	if err != nil {
		p.logger.Error("❌ Failed to serialize event",
			zap.Error(err),
			zap.String("event_type", e.eventType),
			zap.String("product_id", e.key),
		)
		return
	}

	now := p.now()
	for _, topic := range e.topics {
		p.enqueue(bus.Message{
			Topic:   topic,
			Key:     []byte(e.key),
			Value:   value,
			Headers: headers(e.eventType, p.newID(), now),
			Time:    now,
		})
	}
}

func (p *Publisher) enqueue(msg bus.Message) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.drop(msg, "publisher closed")
		return
	}

	shard := p.shards[xxhash.Sum64(msg.Key)%uint64(len(p.shards))]
	select {
	case shard <- msg:
	default:
		p.drop(msg, "publish queue full")
	}
}

func (p *Publisher) drop(msg bus.Message, reason string) {
	p.metrics.Dropped()
	p.logger.Warn("⚠️ Event dropped",
		zap.String("reason", reason),
		zap.String("topic", msg.Topic),
		zap.ByteString("key", msg.Key),
		zap.String("event_type", msg.Headers[HeaderEventType]),
	)
}

func (p *Publisher) work(id int, shard <-chan bus.Message) {
	defer p.wg.Done()
	for msg := range shard {
		if p.base.Err() != nil {
			p.drop(msg, "shutdown deadline exceeded")
			continue
		}
		p.publish(msg)
	}
	p.logger.Debug("Publisher worker stopped", zap.Int("worker", id))
}

func (p *Publisher) publish(msg bus.Message) {
	attempt := 0
	op := func() error {
		attempt++
		ctx, cancel := context.WithTimeout(p.base, p.opts.Timeout)
		defer cancel()
		return p.bus.Publish(ctx, msg)
	}

	err := backoff.Retry(op, backoff.WithContext(p.opts.Retry.backOff(), p.base))
	if err != nil {
		p.metrics.Published(msg.Topic, "error")
		p.logger.Error("❌ Failed to publish event",
			zap.Error(err),
			zap.String("topic", msg.Topic),
			zap.ByteString("key", msg.Key),
			zap.String("event_type", msg.Headers[HeaderEventType]),
			zap.Int("attempts", attempt),
		)
		return
	}

	p.metrics.Published(msg.Topic, "ok")
	p.logger.Info("📤 Sent event",
		zap.String("topic", msg.Topic),
		zap.ByteString("key", msg.Key),
		zap.String("event_type", msg.Headers[HeaderEventType]),
	)
}

// Close stops intake and waits for queued events to be published. When ctx ends first,
// in-flight publications are cancelled, the remaining events are dropped and ctx.Err()
// is returned.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	for _, shard := range p.shards {
		close(shard)
	}
	p.mu.Unlock()

	if !started {
		// Nothing will drain the shards.
		for _, shard := range p.shards {
			for msg := range shard {
				p.drop(msg, "publisher never started")
			}
		}
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Event publisher drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn("Event publisher drain cut short", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
