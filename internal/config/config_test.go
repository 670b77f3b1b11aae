package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":3001", cfg.HTTPAddr)
	assert.Equal(t, StoreMongo, cfg.StoreDriver)
	assert.Equal(t, BusKafka, cfg.BusDriver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "produits-service-group", cfg.KafkaGroupID)
	assert.Equal(t, RetryNone, cfg.PublishRetryPolicy)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.BusConnectBackoffBase)
	assert.False(t, cfg.DedupeEnabled())
	assert.False(t, cfg.OtelEnabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PUBLISH_RETRY_POLICY", "FIXED")
	t.Setenv("PUBLISH_RETRY_ATTEMPTS", "5")
	t.Setenv("PUBLISH_WORKERS", "not-a-number")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, RetryFixed, cfg.PublishRetryPolicy)
	assert.Equal(t, 5, cfg.PublishRetryAttempts)
	assert.Equal(t, 4, cfg.PublishWorkers)
	assert.True(t, cfg.DedupeEnabled())
}

func TestLoadConfigRequiredValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing jwt secret",
			env:  map[string]string{"STORE_DRIVER": "memory"},
			want: "JWT_SECRET",
		},
		{
			name: "mongo without uri",
			env:  map[string]string{"JWT_SECRET": "x"},
			want: "MONGO_URI",
		},
		{
			name: "postgres without dsn",
			env:  map[string]string{"JWT_SECRET": "x", "STORE_DRIVER": "postgres"},
			want: "DATABASE_URL",
		},
		{
			name: "rabbitmq without url",
			env:  map[string]string{"JWT_SECRET": "x", "STORE_DRIVER": "memory", "BUS_DRIVER": "rabbitmq"},
			want: "RABBITMQ_URL",
		},
		{
			name: "unknown retry policy",
			env:  map[string]string{"JWT_SECRET": "x", "STORE_DRIVER": "memory", "PUBLISH_RETRY_POLICY": "exponential"},
			want: "PUBLISH_RETRY_POLICY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			t.Setenv("MONGO_URI", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
