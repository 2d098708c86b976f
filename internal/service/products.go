package service

import (
	"context"
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/products"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/validation"
)

// ProductEventSink records a product event synchronously.
type ProductEventSink interface {
	Record(ctx context.Context, ev events.ProductEvent) error
}

// ProductService implements the product use cases. Mutations wait for the
// product event to be recorded and fail if it is not.
type ProductService struct {
	repo       products.Repository
	sink       ProductEventSink
	validate   *validatorv10.Validate
	adminEmail string
	logger     *zap.Logger
}

// NewProductService returns a ProductService. adminEmail is the actor
// recorded when a request carries none.
func NewProductService(repo products.Repository, sink ProductEventSink, adminEmail string, logger *zap.Logger) *ProductService {
	return &ProductService{
		repo:       repo,
		sink:       sink,
		validate:   validation.New(),
		adminEmail: adminEmail,
		logger:     logger,
	}
}

// Meta identifies who triggered a mutation.
type Meta struct {
	RequestID string
	Actor     string
}

func fromRequest(req validation.ProductRequest) products.Product {
	return products.Product{
		ProductName: req.ProductName,
		Code:        req.Code,
		Price:       req.Price,
		Model:       req.Model,
		ProductURL:  req.ProductURL,
	}
}

func (s *ProductService) ListProducts(ctx context.Context) ([]products.Product, error) {
	return s.repo.GetAll(ctx)
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*products.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateProduct stores a product under a new id and records PRODUCT_CREATED.
func (s *ProductService) CreateProduct(ctx context.Context, req validation.ProductRequest, meta Meta) (*products.Product, error) {
	if err := validation.Check(s.validate, req); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, fromRequest(req))
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, events.ProductCreated, *created, meta); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateProduct replaces an existing product and records PRODUCT_UPDATED.
// An unknown id fails with ErrNotFound and writes nothing.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, req validation.ProductRequest, meta Meta) (*products.Product, error) {
	if err := validation.Check(s.validate, req); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, id, fromRequest(req))
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, events.ProductUpdated, *updated, meta); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteProduct removes a product and records PRODUCT_DELETED from the
// removed record.
func (s *ProductService) DeleteProduct(ctx context.Context, id string, meta Meta) (*products.Product, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, events.ProductDeleted, *deleted, meta); err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *ProductService) record(ctx context.Context, t events.Type, p products.Product, meta Meta) error {
	actor := meta.Actor
	if actor == "" {
		actor = s.adminEmail
	}
	if err := s.sink.Record(ctx, events.NewProductEvent(t, p, actor, meta.RequestID)); err != nil {
		logging.Error(ctx, s.logger, "product event failed",
			zap.String("event_type", string(t)),
			zap.String("product_id", p.ID),
			zap.String("request_id", meta.RequestID),
			zap.Error(err),
		)
		return fmt.Errorf("product %s: %w", p.ID, err)
	}
	return nil
}
