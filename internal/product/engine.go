package product

import (
	"context"
	"errors"
	"math"
	"time"

	"productservice/internal/platform/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultPage              = 1
	DefaultPageLimit         = 10
	DefaultLowStockThreshold = 10

	MaxPage      = math.MaxInt32
	MaxPageLimit = 100
)

// Service is the stock engine. Every mutation is a read, an in-memory change and a
// compare-and-set on the product version, retried on conflict.
type Service struct {
	repo       Repository
	notifier   Notifier
	logger     *zap.Logger
	tracer     observability.Tracer
	metrics    *observability.Metrics
	casRetries int

	now   func() time.Time
	newID func() string
}

// NewService creates the stock engine with explicit dependencies. notifier, tracer and
// metrics may be nil.
func NewService(repo Repository, notifier Notifier, logger *zap.Logger, tracer observability.Tracer, metrics *observability.Metrics, casRetries int) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if casRetries < 0 {
		casRetries = 0
	}
	return &Service{
		repo:       repo,
		notifier:   notifier,
		logger:     logger.With(zap.String("component", "stock-engine")),
		tracer:     tracer,
		metrics:    metrics,
		casRetries: casRetries,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Create validates the draft, stores a new product and announces it.
func (s *Service) Create(ctx context.Context, d Draft) (Product, error) {
	ctx, span := s.tracer.Start(ctx, "product.create")
	defer span.End()

	p, err := d.build(s.newID(), s.now())
	if err != nil {
		return Product{}, s.fail(span, "create", err)
	}
	span.SetAttributes(attribute.String("product.id", p.ID))

	if err := s.repo.Insert(ctx, p); err != nil {
		return Product{}, s.fail(span, "create", err)
	}

	s.metrics.Mutation("create", "ok")
	span.SetStatus(codes.Ok, "product created")
	s.logger.Info("✅ Product created", zap.String("product_id", p.ID), zap.Int("stock", p.Stock))
	s.notifier.ProductCreated(p)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

// Search matches query case-insensitively against name and description.
func (s *Service) Search(ctx context.Context, query string) ([]Product, error) {
	return s.repo.Search(ctx, query)
}

// Paginate returns the requested page; non-positive arguments fall back to the defaults and
// oversized ones are clamped to MaxPage and MaxPageLimit.
func (s *Service) Paginate(ctx context.Context, page, limit int) (Page, error) {
	if page < 1 {
		page = DefaultPage
	}
	page = min(page, MaxPage)
	if limit < 1 {
		limit = DefaultPageLimit
	}
	limit = min(limit, MaxPageLimit)
	products, total, err := s.repo.Paginate(ctx, (page-1)*limit, limit)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		Products:   products,
	}, nil
}

// LowStock lists products whose stock is at or below threshold.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]Product, error) {
	return s.repo.LowStock(ctx, threshold)
}

// SetStock overwrites the stock of a product.
func (s *Service) SetStock(ctx context.Context, id string, value int) (StockMutation, error) {
	ctx, span := s.tracer.Start(ctx, "product.set_stock")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id), attribute.Int("stock.value", value))

	if value < 0 || value > MaxStock {
		return StockMutation{}, s.fail(span, string(DeltaSet), invalidQuantity(value))
	}

	before, after, err := s.mutate(ctx, id, func(p *Product) error {
		p.Stock = value
		return nil
	})
	if err != nil {
		return StockMutation{}, s.fail(span, string(DeltaSet), err)
	}
	return s.stockMutated(span, before, after, value, DeltaSet, ""), nil
}

// Reserve decrements stock by quantity. It fails without writing when stock is short.
func (s *Service) Reserve(ctx context.Context, id string, quantity int, correlationID string) (StockMutation, error) {
	ctx, span := s.tracer.Start(ctx, "product.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", id),
		attribute.Int("stock.quantity", quantity),
		attribute.String("order.id", correlationID),
	)

	if quantity <= 0 {
		return StockMutation{}, s.fail(span, string(DeltaReserved), invalidQuantity(quantity))
	}

	before, after, err := s.mutate(ctx, id, func(p *Product) error {
		if p.Stock < quantity {
			return &InsufficientStockError{ProductID: id, Available: p.Stock, Requested: quantity}
		}
		p.Stock -= quantity
		return nil
	})
	if err != nil {
		return StockMutation{}, s.fail(span, string(DeltaReserved), err)
	}
	return s.stockMutated(span, before, after, quantity, DeltaReserved, correlationID), nil
}

// Release increments stock by quantity. Only MaxStock bounds the result.
func (s *Service) Release(ctx context.Context, id string, quantity int, correlationID string) (StockMutation, error) {
	ctx, span := s.tracer.Start(ctx, "product.release")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", id),
		attribute.Int("stock.quantity", quantity),
		attribute.String("order.id", correlationID),
	)

	if quantity <= 0 {
		return StockMutation{}, s.fail(span, string(DeltaReleased), invalidQuantity(quantity))
	}

	before, after, err := s.mutate(ctx, id, func(p *Product) error {
		if quantity > MaxStock-p.Stock {
			return invalidQuantity(quantity)
		}
		p.Stock += quantity
		return nil
	})
	if err != nil {
		return StockMutation{}, s.fail(span, string(DeltaReleased), err)
	}
	return s.stockMutated(span, before, after, quantity, DeltaReleased, correlationID), nil
}

// UpdateFields merges patch into the product and validates the result.
func (s *Service) UpdateFields(ctx context.Context, id string, patch Patch) (Product, error) {
	ctx, span := s.tracer.Start(ctx, "product.update")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	if patch.Empty() {
		verr := &ValidationError{}
		verr.add("body", "has no field to update")
		return Product{}, s.fail(span, "update", verr)
	}

	before, after, err := s.mutate(ctx, id, func(p *Product) error {
		patch.applyTo(p)
		return p.Validate()
	})
	if err != nil {
		return Product{}, s.fail(span, "update", err)
	}

	s.metrics.Mutation("update", "ok")
	span.SetStatus(codes.Ok, "product updated")
	s.logger.Info("✅ Product updated", zap.String("product_id", id), zap.Int64("version", after.Version))
	s.notifier.ProductUpdated(before, after)
	return after, nil
}

// Delete removes the product and returns its last stored state.
func (s *Service) Delete(ctx context.Context, id string) (Product, error) {
	ctx, span := s.tracer.Start(ctx, "product.delete")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	p, err := s.repo.Delete(ctx, id)
	if err != nil {
		return Product{}, s.fail(span, "delete", err)
	}

	s.metrics.Mutation("delete", "ok")
	span.SetStatus(codes.Ok, "product deleted")
	s.logger.Info("🗑️ Product deleted", zap.String("product_id", id))
	s.notifier.ProductDeleted(p)
	return p, nil
}

// mutate applies change to a fresh copy of the product and writes it back only if nobody
// else wrote in between. change returning an error aborts without writing.
func (s *Service) mutate(ctx context.Context, id string, change func(*Product) error) (before, after Product, err error) {
	for attempt := 0; attempt <= s.casRetries; attempt++ {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return Product{}, Product{}, err
		}

		next := current
		if err := change(&next); err != nil {
			return Product{}, Product{}, err
		}
		next.Version = current.Version + 1
		next.UpdatedAt = s.now()

		err = s.repo.Update(ctx, next, current.Version)
		if err == nil {
			return current, next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Product{}, Product{}, err
		}
		s.logger.Debug("Version conflict, retrying",
			zap.String("product_id", id),
			zap.Int("attempt", attempt+1),
		)
	}
	return Product{}, Product{}, ErrConflict
}

func (s *Service) stockMutated(span trace.Span, before, after Product, quantity int, kind DeltaKind, correlationID string) StockMutation {
	m := StockMutation{
		Product:       after,
		ProductID:     after.ID,
		OldStock:      before.Stock,
		NewStock:      after.Stock,
		Quantity:      quantity,
		Kind:          kind,
		CorrelationID: correlationID,
		OccurredAt:    after.UpdatedAt,
	}

	s.metrics.Mutation(string(kind), "ok")
	span.SetAttributes(
		attribute.Int("stock.old", m.OldStock),
		attribute.Int("stock.new", m.NewStock),
	)
	span.SetStatus(codes.Ok, "stock "+string(kind))
	s.logger.Info("📦 Stock mutated",
		zap.String("product_id", m.ProductID),
		zap.String("kind", string(kind)),
		zap.Int("old_stock", m.OldStock),
		zap.Int("new_stock", m.NewStock),
		zap.String("commande_id", correlationID),
	)
	s.notifier.StockMutated(m)
	return m
}

func (s *Service) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.metrics.Mutation(op, outcome(err))
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrValidation):
		return "rejected"
	default:
		return "error"
	}
}
