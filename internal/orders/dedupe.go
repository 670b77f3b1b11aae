package orders

import (
	"context"
	"fmt"
	"time"

	"productservice/internal/platform/bus"

	"github.com/redis/go-redis/v9"
)

const dedupePrefix = "produits:processed:"

// Deduper claims a message key. Claim reports false when the key was already claimed.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// NopDeduper claims every key.
type NopDeduper struct{}

func (NopDeduper) Claim(context.Context, string) (bool, error) { return true, nil }

// RedisDeduper records processed message keys with SET NX and a TTL.
type RedisDeduper struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisDeduper(client redis.Cmdable, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupePrefix+key, time.Now().UnixMilli(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// MessageKey identifies a delivery: the message-id header when present, otherwise its
// topic, partition and offset.
func MessageKey(msg bus.Message) string {
	if id := msg.Headers["message-id"]; id != "" {
		return id
	}
	return fmt.Sprintf("%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
}
