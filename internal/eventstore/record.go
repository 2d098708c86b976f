package eventstore

import (
	"fmt"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
)

// Info is the kind-specific part of a record. Order records fill the order
// fields, product records the product fields.
type Info struct {
	OrderID      string   `dynamodbav:"orderId,omitempty" json:"orderId,omitempty"`
	ProductCodes []string `dynamodbav:"productCodes,omitempty" json:"productCodes,omitempty"`
	MessageID    string   `dynamodbav:"messageId,omitempty" json:"messageId,omitempty"`
	ProductID    string   `dynamodbav:"productId,omitempty" json:"productId,omitempty"`
	Price        float64  `dynamodbav:"price,omitempty" json:"price,omitempty"`
}

// EventRecord is one line of the events table.
type EventRecord struct {
	PK        string      `dynamodbav:"pk" json:"pk"` // #<kind>_<id>
	SK        string      `dynamodbav:"sk" json:"sk"` // <eventType>#<millis>
	Email     string      `dynamodbav:"email" json:"email"`
	CreatedAt int64       `dynamodbav:"createdAt" json:"createdAt"` // epoch millis
	RequestID string      `dynamodbav:"requestId" json:"requestId"`
	EventType events.Type `dynamodbav:"eventType" json:"eventType"`
	Info      Info        `dynamodbav:"info" json:"info"`
	TTL       int64       `dynamodbav:"ttl" json:"ttl"` // epoch seconds
}

// PartitionKey builds the events table partition key of an entity.
func PartitionKey(kind events.Kind, id string) string {
	return "#" + string(kind) + "_" + id
}

// SortKey builds the sort key of an event appended at millis.
func SortKey(t events.Type, millis int64) string {
	return fmt.Sprintf("%s#%d", t, millis)
}

// FromEvent builds the unstamped record for ev. messageID is the bus
// delivery id and is only kept for order events.
func FromEvent(ev events.DomainEvent, messageID string) (EventRecord, error) {
	rec := EventRecord{
		PK:        PartitionKey(ev.EntityKind(), ev.EntityID()),
		Email:     ev.ActorEmail(),
		RequestID: ev.CorrelationID(),
		EventType: ev.EventType(),
	}
	switch e := ev.(type) {
	case events.OrderEvent:
		rec.Info = Info{OrderID: e.OrderID, ProductCodes: e.ProductCodes, MessageID: messageID}
	case events.ProductEvent:
		rec.Info = Info{ProductID: e.ProductID, Price: e.ProductPrice}
	default:
		return EventRecord{}, fmt.Errorf("unsupported event %T", ev)
	}
	return rec, nil
}
