package kafka

import (
	"context"
	"io"
	"testing"

	"productservice/internal/platform/bus"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	written []kafka.Message
	closed  bool
}

func (w *fakeWriter) WriteMessage(_ context.Context, msg kafka.Message) error {
	w.written = append(w.written, msg)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeReader struct {
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestPublisherConvertsHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w)

	err := p.Publish(context.Background(), bus.Message{
		Topic:   "product-events",
		Key:     []byte("p-1"),
		Value:   []byte(`{}`),
		Headers: map[string]string{"event-type": "product-updated", "source": "produits-service"},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)

	got := w.written[0]
	assert.Equal(t, "product-events", got.Topic)
	assert.Equal(t, []byte("p-1"), got.Key)
	headers := map[string]string{}
	for _, h := range got.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "product-updated", headers["event-type"])
	assert.Equal(t, "produits-service", headers["source"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestConsumerFetchAndAck(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{
		Topic:     "commande-created",
		Partition: 2,
		Offset:    41,
		Value:     []byte(`{"_id":"c1"}`),
		Headers:   []kafka.Header{{Key: "message-id", Value: []byte("m-1")}},
	}}}
	c := NewConsumerWithReader(r)
	ctx := context.Background()

	msg, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "commande-created", msg.Topic)
	assert.Equal(t, 2, msg.Partition)
	assert.Equal(t, int64(41), msg.Offset)
	assert.Equal(t, "m-1", msg.Headers["message-id"])

	require.NoError(t, c.Ack(ctx, msg))
	require.Len(t, r.committed, 1)
	assert.Equal(t, int64(41), r.committed[0].Offset)

	_, err = c.Fetch(ctx)
	assert.ErrorIs(t, err, bus.ErrClosed)

	assert.Error(t, c.Ack(ctx, bus.Message{Topic: "x"}))
}
