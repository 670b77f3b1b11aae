package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"productservice/internal/config"
	"productservice/internal/platform/bus"
	"productservice/internal/platform/observability"
	"productservice/internal/product"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeBus struct {
	mu       sync.Mutex
	sent     []bus.Message
	failures int
	calls    int
	delay    time.Duration
	closed   bool
}

func (b *fakeBus) Publish(ctx context.Context, msg bus.Message) error {
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failures > 0 {
		b.failures--
		return errors.New("broker unavailable")
	}
	b.sent = append(b.sent, msg)
	return nil
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBus) messages() []bus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bus.Message(nil), b.sent...)
}

func newPublisher(t *testing.T, b bus.Publisher, opts Options) (*Publisher, *observability.Metrics, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	p := NewPublisher(b, zap.New(core), metrics, opts)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return p, metrics, logs
}

func drain(t *testing.T, p *Publisher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
}

func widget() product.Product {
	return product.Product{ID: "p-1", Name: "Widget", Category: "tools", Price: 10, Stock: 2, Version: 2}
}

func TestStockMutationTopicsAndHeaders(t *testing.T) {
	b := &fakeBus{}
	p, metrics, _ := newPublisher(t, b, Options{Workers: 2, QueueSize: 8})
	p.Start()

	p.StockMutated(product.StockMutation{
		Product:       widget(),
		ProductID:     "p-1",
		OldStock:      5,
		NewStock:      2,
		Quantity:      3,
		Kind:          product.DeltaReserved,
		CorrelationID: "cmd-7",
	})
	drain(t, p)

	sent := b.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, config.ProductEventsTopic, sent[0].Topic)
	assert.Equal(t, config.ProductStockUpdatedTopic, sent[1].Topic)

	for _, msg := range sent {
		assert.Equal(t, []byte("p-1"), msg.Key)
		assert.Equal(t, EventProductStockUpdated, msg.Headers[HeaderEventType])
		assert.Equal(t, config.ServiceName, msg.Headers[HeaderSource])
		assert.Equal(t, strconv.FormatInt(p.now().UnixMilli(), 10), msg.Headers[HeaderTimestamp])
		assert.NotEmpty(t, msg.Headers[HeaderMessageID])

		var payload map[string]any
		require.NoError(t, json.Unmarshal(msg.Value, &payload))
		assert.Equal(t, "stock-modifie", payload["typeEvenement"])
		assert.Equal(t, "STOCK_UPDATE", payload["action"])
		assert.Equal(t, float64(5), payload["ancienStock"])
		assert.Equal(t, float64(2), payload["nouveauStock"])
		assert.Equal(t, float64(3), payload["quantiteReservee"])
		assert.Equal(t, "reserved", payload["typeMouvement"])
		assert.Equal(t, "cmd-7", payload["commandeId"])
		assert.Equal(t, "produits", payload["service"])
		assert.Equal(t, "2024-05-01T12:00:00.000Z", payload["timestamp"])
		assert.NotContains(t, payload, "quantiteRestauree")
	}
	assert.NotEqual(t, sent[0].Headers[HeaderMessageID], sent[1].Headers[HeaderMessageID])
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsPublished.WithLabelValues(config.ProductStockUpdatedTopic, "ok")))
}

func TestLifecycleEventTopics(t *testing.T) {
	b := &fakeBus{}
	p, _, _ := newPublisher(t, b, Options{Workers: 1, QueueSize: 8})
	p.Start()

	before := widget()
	after := before
	after.Name = "Gizmo"
	p.ProductCreated(before)
	p.ProductUpdated(before, after)
	p.ProductDeleted(after)
	drain(t, p)

	sent := b.messages()
	require.Len(t, sent, 4)
	type published struct{ topic, eventType string }
	got := make([]published, 0, len(sent))
	for _, msg := range sent {
		got = append(got, published{msg.Topic, msg.Headers[HeaderEventType]})
	}
	assert.Equal(t, []published{
		{config.ProductEventsTopic, EventProductCreated},
		{config.ProductCreatedTopic, EventProductCreated},
		{config.ProductEventsTopic, EventProductUpdated},
		{config.ProductEventsTopic, EventProductDeleted},
	}, got)

	var update Payload
	require.NoError(t, json.Unmarshal(sent[2].Value, &update))
	assert.Equal(t, "modifie", update.TypeEvenement)
	require.NotNil(t, update.AnciennesDonnees)
	assert.Equal(t, "Widget", update.AnciennesDonnees.Name)
	assert.Equal(t, "Gizmo", update.Produit.Name)
}

func TestFixedRetryPolicy(t *testing.T) {
	b := &fakeBus{failures: 2}
	p, metrics, _ := newPublisher(t, b, Options{
		Workers:   1,
		QueueSize: 4,
		Retry:     RetryPolicy{Attempts: 3, Backoff: time.Millisecond},
	})
	p.Start()

	p.ProductDeleted(widget())
	drain(t, p)

	assert.Len(t, b.messages(), 1)
	assert.Equal(t, 3, b.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsPublished.WithLabelValues(config.ProductEventsTopic, "ok")))
}

func TestNoRetryLogsFailure(t *testing.T) {
	b := &fakeBus{failures: 5}
	p, metrics, logs := newPublisher(t, b, Options{Workers: 1, QueueSize: 4})
	p.Start()

	p.ProductDeleted(widget())
	drain(t, p)

	assert.Empty(t, b.messages())
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsPublished.WithLabelValues(config.ProductEventsTopic, "error")))
	assert.Equal(t, 1, logs.FilterMessage("❌ Failed to publish event").Len())
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	b := &fakeBus{}
	p, metrics, logs := newPublisher(t, b, Options{Workers: 1, QueueSize: 1})

	// Workers are not started, so the single slot fills up.
	done := make(chan struct{})
	go func() {
		p.ProductDeleted(widget())
		p.ProductDeleted(widget())
		p.ProductDeleted(widget())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked")
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.EventsDropped))
	assert.Equal(t, 2, logs.FilterMessage("⚠️ Event dropped").Len())

	p.Start()
	drain(t, p)
	assert.Len(t, b.messages(), 1)
}

func TestCloseDrainsQueuedEventsInKeyOrder(t *testing.T) {
	b := &fakeBus{delay: time.Millisecond}
	p, _, _ := newPublisher(t, b, Options{Workers: 4, QueueSize: 64})
	p.Start()

	for i := 0; i < 10; i++ {
		p.StockMutated(product.StockMutation{Product: widget(), ProductID: "p-1", OldStock: i, NewStock: i + 1, Quantity: 1, Kind: product.DeltaReleased})
	}
	drain(t, p)

	var last = -1
	var count int
	for _, msg := range b.messages() {
		if msg.Topic != config.ProductStockUpdatedTopic {
			continue
		}
		var payload Payload
		require.NoError(t, json.Unmarshal(msg.Value, &payload))
		require.NotNil(t, payload.NouveauStock)
		assert.Greater(t, *payload.NouveauStock, last)
		last = *payload.NouveauStock
		count++
	}
	assert.Equal(t, 10, count)

	// Intake is closed after drain.
	p.ProductDeleted(widget())
	assert.Len(t, b.messages(), 20)
}

func TestCloseDeadlineCancelsPendingPublications(t *testing.T) {
	b := &fakeBus{delay: time.Hour}
	p, metrics, _ := newPublisher(t, b, Options{Workers: 1, QueueSize: 8, Timeout: time.Hour})
	p.Start()

	p.ProductDeleted(widget())
	p.ProductDeleted(widget())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, b.messages())
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.EventsDropped), float64(1))
}
