package orders

import (
	"context"
	"testing"
	"time"

	"productservice/internal/config"
	"productservice/internal/platform/bus"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisDeduperClaimsOnce(t *testing.T) {
	mr, client := newRedis(t)
	d := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	ok, err := d.Claim(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Claim(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.Exists(dedupePrefix+"m-1"))
	mr.FastForward(2 * time.Minute)

	ok, err = d.Claim(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisDeduperUnavailable(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()

	_, err := NewRedisDeduper(client, time.Minute).Claim(context.Background(), "m-1")
	assert.Error(t, err)
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "m-7", MessageKey(bus.Message{Topic: "t", Headers: map[string]string{"message-id": "m-7"}}))
	assert.Equal(t, "t:3:99", MessageKey(bus.Message{Topic: "t", Partition: 3, Offset: 99}))
}

func TestRedeliveredMessageReservesOnce(t *testing.T) {
	_, client := newRedis(t)
	value := `{"_id":"c-1","produits":[{"produitId":"p1","quantite":2}]}`
	redelivered := fetchResult{msg: bus.Message{
		Topic:   config.OrderCreatedTopic,
		Value:   []byte(value),
		Headers: map[string]string{"message-id": "m-1"},
	}}
	h := newHarness(t, nil, NewRedisDeduper(client, time.Minute), redelivered, redelivered)
	h.seed(t, "p1", 5)

	h.d.Run(context.Background())

	assert.Equal(t, 3, h.stockOf(t, "p1"))
	assert.Len(t, h.consumer.acked, 2)
	assert.Equal(t, 1, h.logs.FilterMessage("Duplicate message skipped").Len())
}
