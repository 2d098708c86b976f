package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws/dynamotest"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/consumers"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/eventstore"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/products"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/validation"
)

const admin = "admin@shop.com"

type failingSink struct{ err error }

func (s failingSink) Record(ctx context.Context, ev events.ProductEvent) error { return s.err }

func newProductFixture(t *testing.T) (*ProductService, *dynamotest.Fake, *eventstore.Store) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("products", "id", "")
	fake.CreateTable("events", "pk", "sk")

	log := zap.NewNop()
	store := eventstore.NewStore(fake, "events", eventstore.DefaultTTL)
	client := consumers.NewProductEventClient(consumers.DirectInvoker{
		Recorder: consumers.NewProductEventRecorder(store, log),
	})
	return NewProductService(products.NewStore(fake, "products"), client, admin, log), fake, store
}

func mouse() validation.ProductRequest {
	return validation.ProductRequest{ID: "ignored", ProductName: "Mouse", Code: "A1", Price: 10, Model: "m"}
}

func TestProductLifecycle_RecordsEveryMutation(t *testing.T) {
	svc, _, store := newProductFixture(t)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, mouse(), Meta{RequestID: "r1", Actor: "ops@shop.com"})
	require.NoError(t, err)
	assert.NotEqual(t, "ignored", created.ID)

	update := mouse()
	update.Price = 12.5
	updated, err := svc.UpdateProduct(ctx, created.ID, update, Meta{RequestID: "r2"})
	require.NoError(t, err)
	assert.Equal(t, 12.5, updated.Price)

	got, err := svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 12.5, got.Price)

	_, err = svc.DeleteProduct(ctx, created.ID, Meta{RequestID: "r3"})
	require.NoError(t, err)

	recs, err := store.ListByEntity(ctx, events.KindProduct, "A1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	byType := map[events.Type]eventstore.EventRecord{}
	for _, r := range recs {
		byType[r.EventType] = r
	}
	assert.Equal(t, "ops@shop.com", byType[events.ProductCreated].Email)
	assert.Equal(t, admin, byType[events.ProductUpdated].Email)
	assert.Equal(t, 12.5, byType[events.ProductUpdated].Info.Price)
	assert.Equal(t, created.ID, byType[events.ProductDeleted].Info.ProductID)
	assert.Equal(t, "r3", byType[events.ProductDeleted].RequestID)

	list, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateProduct_UnknownIDRecordsNothing(t *testing.T) {
	svc, fake, _ := newProductFixture(t)

	_, err := svc.UpdateProduct(context.Background(), "nope", mouse(), Meta{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, fake.Items("products"))
	assert.Empty(t, fake.Items("events"))
}

func TestDeleteProduct_UnknownID(t *testing.T) {
	svc, fake, _ := newProductFixture(t)

	_, err := svc.DeleteProduct(context.Background(), "nope", Meta{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, fake.Items("events"))
}

func TestCreateProduct_Invalid(t *testing.T) {
	svc, fake, _ := newProductFixture(t)

	req := mouse()
	req.Price = 0
	_, err := svc.CreateProduct(context.Background(), req, Meta{})

	var ve *apperrors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "must be greater than 0", ve.Fields["price"])
	assert.Empty(t, fake.Items("products"))
}

func TestCreateProduct_SinkFailurePropagates(t *testing.T) {
	fake := dynamotest.New()
	fake.CreateTable("products", "id", "")
	boom := apperrors.Transient(errors.New("invoke failed"))
	svc := NewProductService(products.NewStore(fake, "products"), failingSink{err: boom}, admin, zap.NewNop())

	_, err := svc.CreateProduct(context.Background(), mouse(), Meta{RequestID: "r1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	// the product write is not rolled back
	assert.Len(t, fake.Items("products"), 1)
}
