package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/orders"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/products"
)

func sampleOrder() orders.Order {
	return orders.Order{
		Email:     "buyer@example.com",
		OrderID:   "o-1",
		CreatedAt: 1700000000000,
		Billing:   orders.Billing{Payment: orders.PaymentCreditCard, TotalPrice: 30},
		Shipping:  orders.Shipping{Type: orders.ShippingUrgent, Carrier: orders.CarrierSedex},
		Products:  []orders.OrderProduct{{Code: "A1", Price: 10}, {Code: "A2", Price: 20}},
	}
}

func sampleProduct() products.Product {
	return products.Product{ID: "p-1", ProductName: "Phone", Code: "A1", Price: 10.5, Model: "X", ProductURL: "https://img"}
}

func TestRoundTrip_EveryType(t *testing.T) {
	for _, typ := range Types() {
		t.Run(string(typ), func(t *testing.T) {
			var ev DomainEvent
			kind, _ := typ.Kind()
			if kind == KindOrder {
				ev = NewOrderEvent(typ, sampleOrder(), "req-1")
			} else {
				ev = NewProductEvent(typ, sampleProduct(), "admin@example.com", "req-1")
			}

			body, err := Marshal(ev)
			require.NoError(t, err)

			got, err := Unmarshal(body)
			require.NoError(t, err)
			assert.Equal(t, ev, got)
			assert.Equal(t, typ, got.EventType())
		})
	}
}

func TestNewOrderEvent_FlattensOrder(t *testing.T) {
	ev := NewOrderEvent(OrderCreated, sampleOrder(), "req-9")
	assert.Equal(t, []string{"A1", "A2"}, ev.ProductCodes)
	assert.Equal(t, "o-1", ev.EntityID())
	assert.Equal(t, KindOrder, ev.EntityKind())
	assert.Equal(t, "req-9", ev.CorrelationID())

	env, err := Encode(ev)
	require.NoError(t, err)
	assert.Equal(t, OrderCreated, env.EventType)
	assert.NotContains(t, env.Data, "ORDER_CREATED")
}

func TestProductEvent_EntityIDIsCode(t *testing.T) {
	ev := NewProductEvent(ProductUpdated, sampleProduct(), "admin@example.com", "")
	assert.Equal(t, "A1", ev.EntityID())
	assert.Equal(t, "admin@example.com", ev.ActorEmail())
}

func TestEncode_RejectsTypeKindMismatch(t *testing.T) {
	ev := NewOrderEvent(ProductCreated, sampleOrder(), "req")
	_, err := Encode(ev)
	assert.Error(t, err)

	_, err = Encode(NewOrderEvent("ORDER_SHIPPED", sampleOrder(), "req"))
	assert.Error(t, err)
}

func TestDecode_RejectsMismatchedPayload(t *testing.T) {
	orderEnv, err := Encode(NewOrderEvent(OrderCreated, sampleOrder(), "req"))
	require.NoError(t, err)

	productEnv, err := Encode(NewProductEvent(ProductCreated, sampleProduct(), "a@x", "req"))
	require.NoError(t, err)

	cases := map[string]Envelope{
		"order data under product type": {EventType: ProductDeleted, Data: orderEnv.Data},
		"product data under order type": {EventType: OrderCreated, Data: productEnv.Data},
		"unknown type":                  {EventType: "ORDER_SHIPPED", Data: orderEnv.Data},
		"not json":                      {EventType: OrderCreated, Data: "nope"},
		"missing ids":                   {EventType: OrderDeleted, Data: `{"email":"a@x"}`},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(env)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
			assert.ErrorIs(t, err, apperrors.ErrPermanent)
			assert.False(t, apperrors.Retryable(err))
		})
	}
}

func TestParseEnvelope(t *testing.T) {
	body, err := json.Marshal(map[string]string{"eventType": "ORDER_CREATED", "data": "{}"})
	require.NoError(t, err)
	env, err := ParseEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, OrderCreated, env.EventType)

	for _, bad := range []string{``, `{}`, `{"eventType":"ORDER_CREATED"}`, `{"eventType":"X","data":"{}","extra":1}`, `[1]`} {
		_, err := ParseEnvelope([]byte(bad))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, bad)
	}
}
