// Package events defines the domain events carried on the order-events bus
// and the envelope they travel in.
package events

import (
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/orders"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/products"
)

// Type is the event discriminant. It is also the bus routing attribute.
type Type string

const (
	OrderCreated   Type = "ORDER_CREATED"
	OrderDeleted   Type = "ORDER_DELETED"
	ProductCreated Type = "PRODUCT_CREATED"
	ProductUpdated Type = "PRODUCT_UPDATED"
	ProductDeleted Type = "PRODUCT_DELETED"
)

// Kind is the entity an event is about.
type Kind string

const (
	KindOrder   Kind = "order"
	KindProduct Kind = "product"
)

// Kind returns the entity kind the type belongs to. ok is false for unknown types.
func (t Type) Kind() (k Kind, ok bool) {
	switch t {
	case OrderCreated, OrderDeleted:
		return KindOrder, true
	case ProductCreated, ProductUpdated, ProductDeleted:
		return KindProduct, true
	}
	return "", false
}

// Types lists every known event type.
func Types() []Type {
	return []Type{OrderCreated, OrderDeleted, ProductCreated, ProductUpdated, ProductDeleted}
}

// DomainEvent is implemented only by OrderEvent and ProductEvent. Consumers
// type-switch on the concrete value.
type DomainEvent interface {
	EventType() Type
	EntityKind() Kind
	// EntityID is the order id for orders and the product code for products.
	EntityID() string
	ActorEmail() string
	CorrelationID() string

	domainEvent()
}

// OrderEvent describes an order mutation.
type OrderEvent struct {
	Type         Type            `json:"-"`
	Email        string          `json:"email"`
	OrderID      string          `json:"orderId"`
	Shipping     orders.Shipping `json:"shipping"`
	Billing      orders.Billing  `json:"billing"`
	ProductCodes []string        `json:"productCodes"`
	RequestID    string          `json:"requestId"`
}

func (e OrderEvent) EventType() Type       { return e.Type }
func (e OrderEvent) EntityKind() Kind      { return KindOrder }
func (e OrderEvent) EntityID() string      { return e.OrderID }
func (e OrderEvent) ActorEmail() string    { return e.Email }
func (e OrderEvent) CorrelationID() string { return e.RequestID }
func (OrderEvent) domainEvent()            {}

// ProductEvent describes a product mutation made by an administrator.
type ProductEvent struct {
	Type         Type    `json:"-"`
	Email        string  `json:"email"`
	ProductID    string  `json:"productId"`
	ProductCode  string  `json:"productCode"`
	ProductPrice float64 `json:"productPrice"`
	RequestID    string  `json:"requestId"`
}

func (e ProductEvent) EventType() Type       { return e.Type }
func (e ProductEvent) EntityKind() Kind      { return KindProduct }
func (e ProductEvent) EntityID() string      { return e.ProductCode }
func (e ProductEvent) ActorEmail() string    { return e.Email }
func (e ProductEvent) CorrelationID() string { return e.RequestID }
func (ProductEvent) domainEvent()            {}

// NewOrderEvent snapshots an order into an event of type t.
func NewOrderEvent(t Type, o orders.Order, requestID string) OrderEvent {
	return OrderEvent{
		Type:         t,
		Email:        o.Email,
		OrderID:      o.OrderID,
		Shipping:     o.Shipping,
		Billing:      o.Billing,
		ProductCodes: o.ProductCodes(),
		RequestID:    requestID,
	}
}

// NewProductEvent snapshots a product into an event of type t performed by actor.
func NewProductEvent(t Type, p products.Product, actor, requestID string) ProductEvent {
	return ProductEvent{
		Type:         t,
		Email:        actor,
		ProductID:    p.ID,
		ProductCode:  p.Code,
		ProductPrice: p.Price,
		RequestID:    requestID,
	}
}
