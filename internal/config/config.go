package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ServiceName    = "produits-service"
	ServiceVersion = "0.2.0"
	// EventService is the short service name carried inside event payloads.
	EventService = "produits"
)

// Topics produced by this service.
const (
	ProductEventsTopic       = "product-events"
	ProductStockUpdatedTopic = "product-stock-updated"
	ProductCreatedTopic      = "product-created"
	ProductUpdatedTopic      = "product-updated"
	ProductDeletedTopic      = "product-deleted"
)

// Topics consumed by this service.
const (
	OrderEventsTopic   = "commande-events"
	OrderCreatedTopic  = "commande-created"
	OrderUpdatedTopic  = "commande-updated"
	OrderDeletedTopic  = "commande-deleted"
	ClientEventsTopic  = "client-events"
	ClientCreatedTopic = "client-created"
)

// ConsumedTopics lists every topic the dispatcher subscribes to.
var ConsumedTopics = []string{
	OrderEventsTopic,
	OrderCreatedTopic,
	OrderUpdatedTopic,
	OrderDeletedTopic,
	ClientEventsTopic,
	ClientCreatedTopic,
}

const (
	BatchTimeout = 10 * time.Millisecond
	BatchSize    = 100
)

const (
	LogsPath      = "/otlp/v1/logs"
	TracesPath    = "/otlp/v1/traces"
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	BusKafka    = "kafka"
	BusRabbitMQ = "rabbitmq"

	RetryNone  = "none"
	RetryFixed = "fixed"
)

type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	JWTSecret       string

	StoreDriver     string
	MongoURI        string
	MongoDatabase   string
	PostgresDSN     string
	StockCASRetries int

	BusDriver             string
	KafkaBrokers          []string
	KafkaClientID         string
	KafkaGroupID          string
	RabbitMQURL           string
	BusConnectRetries     int
	BusConnectBackoffBase time.Duration

	RedisAddr string
	DedupeTTL time.Duration

	PublishWorkers       int
	PublishQueueSize     int
	PublishTimeout       time.Duration
	PublishRetryPolicy   string
	PublishRetryAttempts int
	PublishRetryBackoff  time.Duration

	OtelEndpoint   string
	OtelAuthHeader string
}

// OtelEnabled reports whether OTLP export is configured.
func (c *Config) OtelEnabled() bool { return c.OtelEndpoint != "" }

// DedupeEnabled reports whether processed-message deduplication is configured.
func (c *Config) DedupeEnabled() bool { return c.RedisAddr != "" }

func LoadConfig() (*Config, error) {
	config := &Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":3001"),
		ShutdownTimeout: seconds("SHUTDOWN_TIMEOUT_SECONDS", 15),
		JWTSecret:       os.Getenv("JWT_SECRET"),

		StoreDriver:     strings.ToLower(getenv("STORE_DRIVER", StoreMongo)),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   getenv("MONGO_DATABASE", "produits"),
		PostgresDSN:     os.Getenv("DATABASE_URL"),
		StockCASRetries: atoi("STOCK_CAS_RETRIES", 25),

		BusDriver:             strings.ToLower(getenv("BUS_DRIVER", BusKafka)),
		KafkaBrokers:          splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
		KafkaClientID:         getenv("KAFKA_CLIENT_ID", ServiceName),
		KafkaGroupID:          getenv("KAFKA_GROUP_ID", "produits-service-group"),
		RabbitMQURL:           os.Getenv("RABBITMQ_URL"),
		BusConnectRetries:     atoi("BUS_CONNECT_RETRIES", 10),
		BusConnectBackoffBase: millis("BUS_CONNECT_INITIAL_BACKOFF_MS", 300),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		DedupeTTL: seconds("DEDUPE_TTL_SECONDS", 86400),

		PublishWorkers:       atoi("PUBLISH_WORKERS", 4),
		PublishQueueSize:     atoi("PUBLISH_QUEUE_SIZE", 1024),
		PublishTimeout:       millis("PUBLISH_TIMEOUT_MS", 5000),
		PublishRetryPolicy:   strings.ToLower(getenv("PUBLISH_RETRY_POLICY", RetryNone)),
		PublishRetryAttempts: atoi("PUBLISH_RETRY_ATTEMPTS", 3),
		PublishRetryBackoff:  millis("PUBLISH_RETRY_BACKOFF_MS", 200),

		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
	}

	if config.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	switch config.StoreDriver {
	case StoreMongo:
		if config.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI environment variable is required")
		}
	case StorePostgres:
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", config.StoreDriver)
	}

	switch config.BusDriver {
	case BusKafka:
		if len(config.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BROKERS environment variable is required")
		}
	case BusRabbitMQ:
		if config.RabbitMQURL == "" {
			return nil, fmt.Errorf("RABBITMQ_URL environment variable is required")
		}
	default:
		return nil, fmt.Errorf("unsupported BUS_DRIVER %q", config.BusDriver)
	}

	switch config.PublishRetryPolicy {
	case RetryNone, RetryFixed:
	default:
		return nil, fmt.Errorf("unsupported PUBLISH_RETRY_POLICY %q", config.PublishRetryPolicy)
	}

	if config.OtelEndpoint != "" && config.OtelAuthHeader == "" {
		return nil, fmt.Errorf("OTEL_AUTH_HEADER environment variable is required when OTEL_ENDPOINT is set")
	}

	return config, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func millis(key string, def int) time.Duration {
	return time.Duration(atoi(key, def)) * time.Millisecond
}

func seconds(key string, def int) time.Duration {
	return time.Duration(atoi(key, def)) * time.Second
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
