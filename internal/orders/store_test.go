package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws/dynamotest"
)

const tbl = "orders"

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable(tbl, "pk", "sk")
	s := NewStore(fake, tbl)
	s.nowFunc = func() time.Time { return fixedNow }
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("o-%d", n)
	}
	return s, fake
}

func sampleOrder(email string) Order {
	return Order{
		Email:    email,
		OrderID:  "client-supplied",
		Billing:  Billing{Payment: PaymentCash, TotalPrice: 30},
		Shipping: Shipping{Type: ShippingEconomic, Carrier: CarrierCorreios},
		Products: []OrderProduct{{Code: "A1", Price: 10}, {Code: "A2", Price: 20}},
	}
}

func TestCreate_StampsIDAndTimestamp(t *testing.T) {
	s, fake := newTestStore(t)

	created, err := s.Create(context.Background(), sampleOrder("a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "o-1", created.OrderID)
	assert.Equal(t, fixedNow.UnixMilli(), created.CreatedAt)
	assert.Equal(t, []string{"A1", "A2"}, created.ProductCodes())

	items := fake.Items(tbl)
	require.Len(t, items, 1)
	var stored Order
	require.NoError(t, attributevalue.UnmarshalMap(items[0], &stored))
	assert.Equal(t, *created, stored)
	assert.Equal(t, 30.0, stored.Billing.TotalPrice)
}

func TestGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	created, err := s.Create(ctx, sampleOrder("a@x.com"))
	require.NoError(t, err)

	got, err := s.Get(ctx, "a@x.com", created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = s.Get(ctx, "b@x.com", created.OrderID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListByEmailAndAll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, email := range []string{"a@x.com", "a@x.com", "b@x.com"} {
		_, err := s.Create(ctx, sampleOrder(email))
		require.NoError(t, err)
	}

	mine, err := s.ListByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, o := range mine {
		assert.Equal(t, "a@x.com", o.Email)
	}

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.ListByEmail(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDelete_ReturnsPriorRecordThenNotFound(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	created, err := s.Create(ctx, sampleOrder("a@x.com"))
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, "a@x.com", created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, created, deleted)
	assert.Empty(t, fake.Items(tbl))

	_, err = s.Delete(ctx, "a@x.com", created.OrderID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
