// Package service implements the order and product use cases. Each
// mutation is followed by its domain event; the caller maps returned
// errors to its own status codes.
package service

import (
	"context"
	"fmt"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/bus"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/orders"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/products"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/validation"
)

// OrderRepository is the orders table.
type OrderRepository interface {
	Create(ctx context.Context, o orders.Order) (*orders.Order, error)
	Get(ctx context.Context, email, orderID string) (*orders.Order, error)
	ListByEmail(ctx context.Context, email string) ([]orders.Order, error)
	ListAll(ctx context.Context) ([]orders.Order, error)
	Delete(ctx context.Context, email, orderID string) (*orders.Order, error)
}

// ProductReader resolves the products referenced by an order.
type ProductReader interface {
	GetByIDs(ctx context.Context, ids []string) ([]products.Product, error)
}

// EventPublisher places events on the order-events topic.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.DomainEvent, correlationID string) (bus.Receipt, error)
}

// OrderService implements the order use cases.
type OrderService struct {
	orders    OrderRepository
	products  ProductReader
	publisher EventPublisher
	validate  *validatorv10.Validate
	logger    *zap.Logger
}

func NewOrderService(orderRepo OrderRepository, productReader ProductReader, publisher EventPublisher, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders:    orderRepo,
		products:  productReader,
		publisher: publisher,
		validate:  validation.New(),
		logger:    logger,
	}
}

// CreateOrder stores an order for the requested products and publishes
// ORDER_CREATED. Every product must exist; otherwise nothing is written
// and nothing is published.
func (s *OrderService) CreateOrder(ctx context.Context, req validation.CreateOrderRequest, requestID string) (*orders.Order, error) {
	if err := validation.Check(s.validate, req); err != nil {
		return nil, err
	}

	found, err := s.products.GetByIDs(ctx, req.ProductIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[string]products.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	if len(byID) != len(req.ProductIDs) {
		var missing []string
		for _, id := range req.ProductIDs {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, apperrors.NotFound("product", strings.Join(missing, ","))
	}

	order := orders.Order{
		Email:    req.Email,
		Shipping: orders.Shipping{Type: req.Shipping.Type, Carrier: req.Shipping.Carrier},
		Products: make([]orders.OrderProduct, 0, len(req.ProductIDs)),
	}
	var total float64
	for _, id := range req.ProductIDs {
		p := byID[id]
		order.Products = append(order.Products, orders.OrderProduct{Code: p.Code, Price: p.Price})
		total += p.Price
	}
	order.Billing = orders.Billing{Payment: req.Payment, TotalPrice: total}

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		return nil, err
	}
	logging.Info(ctx, s.logger, "order created",
		zap.String("order_id", created.OrderID),
		zap.String("request_id", requestID),
	)

	if err := s.publish(ctx, events.NewOrderEvent(events.OrderCreated, *created, requestID), requestID); err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteOrder removes an order and publishes ORDER_DELETED built from the
// removed record.
func (s *OrderService) DeleteOrder(ctx context.Context, key validation.OrderKey, requestID string) (*orders.Order, error) {
	if err := validation.Check(s.validate, key); err != nil {
		return nil, err
	}
	deleted, err := s.orders.Delete(ctx, key.Email, key.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, events.NewOrderEvent(events.OrderDeleted, *deleted, requestID), requestID); err != nil {
		return nil, err
	}
	return deleted, nil
}

// GetOrder resolves a query: email and id fetch one order, email alone
// lists that customer's orders, an empty query lists every order.
func (s *OrderService) GetOrder(ctx context.Context, q validation.OrderQuery) ([]orders.Order, error) {
	if err := validation.Check(s.validate, q); err != nil {
		return nil, err
	}
	switch {
	case q.Email != "" && q.OrderID != "":
		o, err := s.orders.Get(ctx, q.Email, q.OrderID)
		if err != nil {
			return nil, err
		}
		return []orders.Order{*o}, nil
	case q.Email != "":
		return s.orders.ListByEmail(ctx, q.Email)
	default:
		return s.orders.ListAll(ctx)
	}
}

// publish surfaces a failure to the caller. The mutation is already
// durable at this point; the publisher has logged and counted the loss.
func (s *OrderService) publish(ctx context.Context, ev events.DomainEvent, requestID string) error {
	if _, err := s.publisher.Publish(ctx, ev, requestID); err != nil {
		return fmt.Errorf("%s %s committed but not published: %w", ev.EntityKind(), ev.EntityID(), err)
	}
	return nil
}
