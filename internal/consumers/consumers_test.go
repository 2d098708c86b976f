package consumers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	awsevents "github.com/aws/aws-lambda-go/events"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws/dynamotest"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/bus"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/eventstore"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/fanout"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/idempotency"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/orders"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/products"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/queue"
)

func newEventStore(t *testing.T) (*eventstore.Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("events", "pk", "sk")
	return eventstore.NewStore(fake, "events", 5*time.Minute), fake
}

func order() orders.Order {
	return orders.Order{
		Email:    "buyer@x.com",
		OrderID:  "o-1",
		Billing:  orders.Billing{Payment: orders.PaymentCash, TotalPrice: 30},
		Shipping: orders.Shipping{Type: orders.ShippingEconomic, Carrier: orders.CarrierCorreios},
		Products: []orders.OrderProduct{{Code: "A1", Price: 10}, {Code: "A2", Price: 20}},
	}
}

func notification(t *testing.T, ev events.DomainEvent, messageID string) fanout.Notification {
	t.Helper()
	body, err := events.Marshal(ev)
	require.NoError(t, err)
	return fanout.Notification{
		MessageID:  messageID,
		Message:    string(body),
		Attributes: map[string]string{bus.AttrEventType: string(ev.EventType())},
	}
}

func snsRecord(n fanout.Notification) awsevents.SNSEventRecord {
	attrs := map[string]interface{}{}
	for k, v := range n.Attributes {
		attrs[k] = map[string]interface{}{"Type": "String", "Value": v}
	}
	return awsevents.SNSEventRecord{SNS: awsevents.SNSEntity{
		MessageID:         n.MessageID,
		Message:           n.Message,
		MessageAttributes: attrs,
	}}
}

func TestAuditRecorder_SNSBatch(t *testing.T) {
	store, fake := newEventStore(t)
	h := SNSHandler(NewAuditRecorder(store, zap.NewNop()))

	created := notification(t, events.NewOrderEvent(events.OrderCreated, order(), "req-1"), "m-1")
	deleted := notification(t, events.NewOrderEvent(events.OrderDeleted, order(), "req-2"), "m-2")
	err := h(context.Background(), awsevents.SNSEvent{Records: []awsevents.SNSEventRecord{snsRecord(created), snsRecord(deleted)}})
	require.NoError(t, err)

	recs, err := store.ListByEntity(context.Background(), events.KindOrder, "o-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, events.OrderCreated, recs[0].EventType)
	assert.Equal(t, "m-1", recs[0].Info.MessageID)
	assert.Equal(t, []string{"A1", "A2"}, recs[0].Info.ProductCodes)
	assert.Equal(t, "req-2", recs[1].RequestID)
	assert.Equal(t, 2, fake.Calls["PutItem"])
}

func TestAuditRecorder_PartialFailureIsAttributed(t *testing.T) {
	store, _ := newEventStore(t)
	h := SNSHandler(NewAuditRecorder(store, zap.NewNop()))

	good := notification(t, events.NewOrderEvent(events.OrderCreated, order(), "req-1"), "m-good")
	bad := fanout.Notification{MessageID: "m-bad", Message: `{"eventType":"ORDER_CREATED","data":"{}"}`}
	err := h(context.Background(), awsevents.SNSEvent{Records: []awsevents.SNSEventRecord{snsRecord(bad), snsRecord(good)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m-bad")
	assert.NotContains(t, err.Error(), "m-good")
	assert.ErrorIs(t, err, events.ErrMalformedEnvelope)

	recs, err := store.ListByEntity(context.Background(), events.KindOrder, "o-1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestDecodeNotification_AttributeMismatch(t *testing.T) {
	n := notification(t, events.NewOrderEvent(events.OrderDeleted, order(), "r"), "m")
	n.Attributes[bus.AttrEventType] = string(events.OrderCreated)
	_, err := decodeNotification(n)
	assert.ErrorIs(t, err, apperrors.ErrPermanent)
}

func TestBilling(t *testing.T) {
	b := NewBilling(zap.NewNop())
	ctx := context.Background()

	assert.NoError(t, b.Deliver(ctx, notification(t, events.NewOrderEvent(events.OrderCreated, order(), "r"), "m")))

	err := b.Deliver(ctx, notification(t, events.NewOrderEvent(events.OrderDeleted, order(), "r"), "m"))
	assert.ErrorIs(t, err, apperrors.ErrPermanent)

	pe := events.NewProductEvent(events.ProductCreated, products.Product{ID: "p", Code: "C"}, "a@x", "r")
	err = b.Deliver(ctx, notification(t, pe, "m"))
	assert.ErrorIs(t, err, apperrors.ErrPermanent)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, to+"|"+subject)
	return "ses-" + to, nil
}

func newNotifier(t *testing.T) (*EmailNotifier, *fakeMailer, *idempotency.Store) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("idempotency", "idempotency_key", "")
	dedup := idempotency.NewStore(fake, "idempotency", 48*time.Hour)
	mailer := &fakeMailer{}
	return NewEmailNotifier(mailer, dedup, 0, zap.NewNop()), mailer, dedup
}

func queueMessage(t *testing.T, ev events.DomainEvent, id string, receives int) queue.Message {
	t.Helper()
	body, err := fanout.WrapForQueue(notification(t, ev, "sns-"+id))
	require.NoError(t, err)
	return queue.Message{ID: id, Body: body, ReceiveCount: receives}
}

func TestEmailNotifier_RedeliveryDoesNotResend(t *testing.T) {
	n, mailer, dedup := newNotifier(t)
	ctx := context.Background()
	ev := events.NewOrderEvent(events.OrderCreated, order(), "req-1")

	require.NoError(t, n.Handle(ctx, queueMessage(t, ev, "q-1", 1)))
	require.NoError(t, n.Handle(ctx, queueMessage(t, ev, "q-1", 2)))

	assert.Equal(t, []string{"buyer@x.com|Order o-1 received"}, mailer.sent)
	rec, err := dedup.Get(ctx, idempotency.Key("email", "o-1", "ORDER_CREATED"))
	require.NoError(t, err)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
	assert.Equal(t, "ses-buyer@x.com", rec.ResultRef)
}

func TestEmailNotifier_FailedSendIsRetried(t *testing.T) {
	n, mailer, _ := newNotifier(t)
	ctx := context.Background()
	ev := events.NewOrderEvent(events.OrderCreated, order(), "req-1")

	mailer.err = errors.New("ses throttled")
	err := n.Handle(ctx, queueMessage(t, ev, "q-1", 1))
	require.Error(t, err)
	assert.True(t, apperrors.Retryable(err))

	mailer.err = nil
	require.NoError(t, n.Handle(ctx, queueMessage(t, ev, "q-1", 2)))
	assert.Len(t, mailer.sent, 1)
}

func TestEmailNotifier_InProgressMarkerIsRetryable(t *testing.T) {
	n, mailer, dedup := newNotifier(t)
	ctx := context.Background()
	_, err := dedup.Claim(ctx, idempotency.Key("email", "o-1", "ORDER_CREATED"), "ORDER_CREATED")
	require.NoError(t, err)

	err = n.Handle(ctx, queueMessage(t, events.NewOrderEvent(events.OrderCreated, order(), "r"), "q-1", 1))
	assert.ErrorIs(t, err, apperrors.ErrTransient)
	assert.Empty(t, mailer.sent)
}

func TestEmailNotifier_RawBodyAndRejections(t *testing.T) {
	n, mailer, _ := newNotifier(t)
	ctx := context.Background()

	raw, err := events.Marshal(events.NewOrderEvent(events.OrderCreated, order(), "r"))
	require.NoError(t, err)
	require.NoError(t, n.Handle(ctx, queue.Message{ID: "q-raw", Body: string(raw), ReceiveCount: 1}))
	assert.Len(t, mailer.sent, 1)

	err = n.Handle(ctx, queue.Message{ID: "q-bad", Body: "not json", ReceiveCount: 1})
	assert.ErrorIs(t, err, apperrors.ErrPermanent)

	assert.NoError(t, n.Handle(ctx, queueMessage(t, events.NewOrderEvent(events.OrderDeleted, order(), "r"), "q-del", 1)))
	assert.Len(t, mailer.sent, 1)
}

func TestEmailNotifier_UnderBoundedRetryConsumer(t *testing.T) {
	n, mailer, _ := newNotifier(t)
	mailer.err = errors.New("ses down")
	q := queue.NewMemoryQueue("order-events", time.Minute, 0)
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return now })

	body, err := fanout.WrapForQueue(notification(t, events.NewOrderEvent(events.OrderCreated, order(), "r"), "sns-1"))
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), body))

	c := queue.NewConsumer(q, n, queue.Config{QueueName: "order-events", MaxReceives: 3, VisibilityDelay: 30 * time.Second}, nil, zap.NewNop())
	for i := 0; i < 5 && q.Len() > 0; i++ {
		_, err := c.Poll(context.Background())
		require.NoError(t, err)
		now = now.Add(time.Minute)
	}
	assert.Equal(t, 0, q.Len())
	assert.Len(t, q.DeadLetters(), 1)
	assert.Empty(t, mailer.sent)
}

// ctxDynamo rejects calls on a finished context the way the SDK does.
type ctxDynamo struct{ *dynamotest.Fake }

func (d ctxDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Fake.PutItem(ctx, in, optFns...)
}

func (d ctxDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Fake.GetItem(ctx, in, optFns...)
}

func (d ctxDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Fake.UpdateItem(ctx, in, optFns...)
}

// slowFirstMailer hangs on its first send until the caller gives up.
type slowFirstMailer struct {
	mu    sync.Mutex
	calls int
	sent  []string
}

func (m *slowFirstMailer) Send(ctx context.Context, to, subject, body string) (string, error) {
	m.mu.Lock()
	m.calls++
	first := m.calls == 1
	m.mu.Unlock()
	if first {
		<-ctx.Done()
		return "", ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return "ses-" + to, nil
}

func TestEmailNotifier_SendPastBudgetIsRetried(t *testing.T) {
	fake := dynamotest.New()
	fake.CreateTable("idempotency", "idempotency_key", "")
	dedup := idempotency.NewStore(ctxDynamo{fake}, "idempotency", 48*time.Hour)
	mailer := &slowFirstMailer{}
	n := NewEmailNotifier(mailer, dedup, time.Minute, zap.NewNop())
	key := idempotency.Key("email", "o-1", "ORDER_CREATED")

	q := queue.NewMemoryQueue("order-events", time.Minute, 0)
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return now })
	body, err := fanout.WrapForQueue(notification(t, events.NewOrderEvent(events.OrderCreated, order(), "r"), "sns-1"))
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), body))

	c := queue.NewConsumer(q, n, queue.Config{
		QueueName:       "order-events",
		MaxReceives:     3,
		VisibilityDelay: 30 * time.Second,
		UnitBudget:      50 * time.Millisecond,
	}, nil, zap.NewNop())

	out, err := c.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, queue.Requeued, out[0].Action)

	// the abandoned attempt still records its failure
	assert.Eventually(t, func() bool {
		rec, err := dedup.Get(context.Background(), key)
		return err == nil && rec != nil && rec.Status == idempotency.StatusFailed
	}, time.Second, 5*time.Millisecond)

	now = now.Add(time.Minute)
	out, err = c.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, queue.Acked, out[0].Action)

	assert.Empty(t, q.DeadLetters())
	assert.Equal(t, []string{"buyer@x.com"}, mailer.sent)
	rec, err := dedup.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
}

func TestEmailNotifier_StaleInProgressMarkerIsTakenOver(t *testing.T) {
	n, mailer, dedup := newNotifier(t)
	ctx := context.Background()
	key := idempotency.Key("email", "o-1", "ORDER_CREATED")
	// a delivery that claimed the marker and never came back
	_, err := dedup.Claim(ctx, key, "ORDER_CREATED")
	require.NoError(t, err)
	msg := queueMessage(t, events.NewOrderEvent(events.OrderCreated, order(), "r"), "q-1", 2)

	err = n.Handle(ctx, msg)
	assert.ErrorIs(t, err, apperrors.ErrTransient)
	assert.Empty(t, mailer.sent)

	n.nowFunc = func() time.Time { return time.Now().Add(DefaultMarkerLease + time.Second) }
	require.NoError(t, n.Handle(ctx, msg))
	assert.Len(t, mailer.sent, 1)

	rec, err := dedup.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
}

func TestProductEvents_DirectInvoke(t *testing.T) {
	store, _ := newEventStore(t)
	client := NewProductEventClient(DirectInvoker{Recorder: NewProductEventRecorder(store, zap.NewNop())})
	ctx := context.Background()

	pe := events.NewProductEvent(events.ProductCreated, products.Product{ID: "p-1", Code: "A1", Price: 10}, "admin@x.com", "req-1")
	require.NoError(t, client.Record(ctx, pe))

	recs, err := store.ListByEntity(ctx, events.KindProduct, "A1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "#product_A1", recs[0].PK)
	assert.Equal(t, eventstore.Info{ProductID: "p-1", Price: 10}, recs[0].Info)
	assert.Equal(t, "admin@x.com", recs[0].Email)
}

type failingInvoker struct{ out []byte }

func (f failingInvoker) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	if f.out == nil {
		return nil, errors.New("function error: Unhandled")
	}
	return f.out, nil
}

func TestProductEventClient_Failures(t *testing.T) {
	pe := events.NewProductEvent(events.ProductDeleted, products.Product{ID: "p-1", Code: "A1"}, "a@x", "r")

	assert.Error(t, NewProductEventClient(failingInvoker{}).Record(context.Background(), pe))
	assert.Error(t, NewProductEventClient(failingInvoker{out: []byte(`{"productEventCreated":false,"message":"nope"}`)}).Record(context.Background(), pe))
	assert.NoError(t, NewProductEventClient(failingInvoker{out: []byte(`{"productEventCreated":true,"message":"OK"}`)}).Record(context.Background(), pe))
}

func TestProductEventRecorder_RejectsOrderEvents(t *testing.T) {
	store, _ := newEventStore(t)
	r := NewProductEventRecorder(store, zap.NewNop())
	env, err := events.Encode(events.NewOrderEvent(events.OrderCreated, order(), "r"))
	require.NoError(t, err)
	_, err = r.Handle(context.Background(), env)
	assert.ErrorIs(t, err, apperrors.ErrPermanent)
}
