package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"productservice/internal/config"
	"productservice/internal/events"
	"productservice/internal/httpapi"
	"productservice/internal/orders"
	"productservice/internal/platform/bus"
	"productservice/internal/platform/kafka"
	"productservice/internal/platform/observability"
	"productservice/internal/platform/rabbitmq"
	"productservice/internal/product"
	"productservice/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config   *config.Config
	logger   *zap.Logger
	tracer   observability.Tracer
	registry *prometheus.Registry
	metrics  *observability.Metrics

	store    storage.Store
	producer bus.Publisher
	consumer bus.Consumer
	redis    *redis.Client

	publisher  *events.Publisher
	service    *product.Service
	dispatcher *orders.Dispatcher
	server     *http.Server

	otelLogShutdown   func(context.Context) error
	otelTraceShutdown func(context.Context) error
}

// NewContainer creates and initializes all infrastructure components. Any failure after
// the store is connected releases what was already opened.
func NewContainer(ctx context.Context) (c *Container, err error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	c = &Container{config: cfg}
	defer func() {
		if err != nil {
			c.Shutdown(context.Background())
		}
	}()

	if err := c.setupLogger(); err != nil {
		return c, err
	}
	tp := c.setupObservability(ctx)
	c.setupMetrics()

	if c.store, err = storage.Open(ctx, cfg); err != nil {
		return c, fmt.Errorf("failed to connect %s store: %w", cfg.StoreDriver, err)
	}
	c.logger.Info("✅ Store connected", zap.String("driver", cfg.StoreDriver))

	if err := c.setupBus(ctx, tp); err != nil {
		return c, err
	}

	dedupe, err := c.setupDedupe(ctx)
	if err != nil {
		return c, err
	}

	c.publisher = events.NewPublisher(c.producer, c.logger, c.metrics, events.Options{
		Workers:   cfg.PublishWorkers,
		QueueSize: cfg.PublishQueueSize,
		Timeout:   cfg.PublishTimeout,
		Retry:     c.retryPolicy(),
	})
	c.service = product.NewService(c.store, c.publisher, c.logger, c.tracer, c.metrics, cfg.StockCASRetries)
	c.dispatcher = orders.NewDispatcher(c.consumer, c.service, dedupe, c.logger, c.tracer, c.metrics)

	api := httpapi.NewAPI(c.service, c.logger, c.metrics, cfg.JWTSecret, c.store.Ping)
	c.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return c, nil
}

// setupLogger installs a plain production logger until OpenTelemetry is configured.
func (c *Container) setupLogger() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

// setupObservability configures OpenTelemetry logging and tracing. Export failures are
// logged and the service keeps running without them.
func (c *Container) setupObservability(ctx context.Context) trace.TracerProvider {
	otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
	}
	c.otelLogShutdown = otelLogShutdown

	tp, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}
	c.otelTraceShutdown = otelTraceShutdown

	c.logger = observability.NewLogger(c.config.OtelEnabled())
	c.logger.Info("Logger initialized", zap.Bool("otel_bridge", c.config.OtelEnabled()))

	c.tracer = tp.Tracer(config.ServiceName)
	return tp
}

func (c *Container) setupMetrics() {
	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.metrics = observability.NewMetrics(c.registry)
}

// setupBus connects the producer and the consumer concurrently, each with its own retry
// budget.
func (c *Container) setupBus(ctx context.Context, tp trace.TracerProvider) error {
	cfg := c.config
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return bus.ConnectWithRetry(gctx, cfg.BusConnectRetries, cfg.BusConnectBackoffBase, func(ctx context.Context) error {
			p, err := c.newProducer(ctx, tp)
			if err != nil {
				c.logger.Warn("⚠️ Bus producer not ready", zap.String("driver", cfg.BusDriver), zap.Error(err))
				return err
			}
			c.producer = p
			return nil
		})
	})
	g.Go(func() error {
		return bus.ConnectWithRetry(gctx, cfg.BusConnectRetries, cfg.BusConnectBackoffBase, func(ctx context.Context) error {
			cons, err := c.newConsumer(ctx)
			if err != nil {
				c.logger.Warn("⚠️ Bus consumer not ready", zap.String("driver", cfg.BusDriver), zap.Error(err))
				return err
			}
			c.consumer = cons
			return nil
		})
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to connect %s bus: %w", cfg.BusDriver, err)
	}
	c.logger.Info("✅ Bus connected",
		zap.String("driver", cfg.BusDriver),
		zap.Strings("topics", config.ConsumedTopics),
	)
	return nil
}

func (c *Container) kafkaConfig() kafka.Config {
	return kafka.Config{
		Brokers:      c.config.KafkaBrokers,
		ClientID:     c.config.KafkaClientID,
		GroupID:      c.config.KafkaGroupID,
		Topics:       config.ConsumedTopics,
		BatchTimeout: config.BatchTimeout,
		BatchSize:    config.BatchSize,
	}
}

func (c *Container) newProducer(ctx context.Context, tp trace.TracerProvider) (bus.Publisher, error) {
	switch c.config.BusDriver {
	case config.BusRabbitMQ:
		return rabbitmq.NewPublisher(c.config.RabbitMQURL)
	default:
		if err := kafka.Probe(ctx, c.config.KafkaBrokers); err != nil {
			return nil, err
		}
		return kafka.NewPublisher(c.kafkaConfig(), tp)
	}
}

func (c *Container) newConsumer(ctx context.Context) (bus.Consumer, error) {
	switch c.config.BusDriver {
	case config.BusRabbitMQ:
		return rabbitmq.NewConsumer(c.config.RabbitMQURL, c.config.KafkaGroupID, config.ConsumedTopics)
	default:
		if err := kafka.Probe(ctx, c.config.KafkaBrokers); err != nil {
			return nil, err
		}
		return kafka.NewConsumer(c.kafkaConfig()), nil
	}
}

// setupDedupe connects Redis when REDIS_ADDR is set. Without it every message is handled.
func (c *Container) setupDedupe(ctx context.Context) (orders.Deduper, error) {
	if !c.config.DedupeEnabled() {
		return orders.NopDeduper{}, nil
	}
	c.redis = redis.NewClient(&redis.Options{Addr: c.config.RedisAddr})
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect redis at %s: %w", c.config.RedisAddr, err)
	}
	c.logger.Info("✅ Redis connected", zap.String("addr", c.config.RedisAddr))
	return orders.NewRedisDeduper(c.redis, c.config.DedupeTTL), nil
}

func (c *Container) retryPolicy() events.RetryPolicy {
	if c.config.PublishRetryPolicy != config.RetryFixed {
		return events.RetryPolicy{Attempts: 1}
	}
	return events.RetryPolicy{
		Attempts: c.config.PublishRetryAttempts,
		Backoff:  c.config.PublishRetryBackoff,
	}
}

// Shutdown releases components in reverse dependency order. It is safe on a partially
// built container.
func (c *Container) Shutdown(ctx context.Context) {
	if c.logger == nil {
		return
	}
	c.logger.Info("Shutting down infrastructure...")

	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Stop(ctx); err != nil {
			c.logger.Error("Failed to stop order dispatcher", zap.Error(err))
		}
	}
	if c.consumer != nil {
		if err := c.consumer.Close(); err != nil {
			c.logger.Error("Failed to close message consumer", zap.Error(err))
		}
	}

	if c.publisher != nil {
		if err := c.publisher.Close(ctx); err != nil {
			c.logger.Error("Failed to drain event publisher", zap.Error(err))
		}
	}
	if c.producer != nil {
		if err := c.producer.Close(); err != nil {
			c.logger.Error("Failed to close message producer", zap.Error(err))
		}
	}

	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if c.store != nil {
		if err := c.store.Close(ctx); err != nil {
			c.logger.Error("Failed to close store", zap.Error(err))
		}
	}

	if c.otelTraceShutdown != nil {
		if err := c.otelTraceShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel tracing", zap.Error(err))
		}
	}
	if c.otelLogShutdown != nil {
		if err := c.otelLogShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel logging", zap.Error(err))
		}
	}

	c.logger.Info("Infrastructure shutdown complete")
	if err := c.logger.Sync(); err != nil {
		// Can't log this error since logger might be closed
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}

// Getters for accessing infrastructure components
func (c *Container) Config() *config.Config         { return c.config }
func (c *Container) Logger() *zap.Logger            { return c.logger }
func (c *Container) Dispatcher() *orders.Dispatcher { return c.dispatcher }
func (c *Container) Publisher() *events.Publisher   { return c.publisher }
func (c *Container) Server() *http.Server           { return c.server }
