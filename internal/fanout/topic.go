package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
)

// Delivery is the outcome of handing one notification to one subscription.
type Delivery struct {
	Subscription string
	Err          error
}

// Topic is an in-process stand-in for the SNS topic used when running
// locally. It implements aws.SNSAPI. Publish returns once the message is
// accepted; copies are delivered in the background.
type Topic struct {
	arn    string
	logger *zap.Logger
	newID  func() string
	now    func() time.Time

	subs []Subscription // fixed at construction

	inflight sync.WaitGroup
}

// NewTopic creates a topic with the given subscriptions.
func NewTopic(arn string, logger *zap.Logger, subs ...Subscription) *Topic {
	return &Topic{
		arn:    arn,
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
		subs:   subs,
	}
}

// Publish accepts a message and fans it out asynchronously.
func (t *Topic) Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if in.Message == nil {
		return nil, errors.New("publish: empty message")
	}
	n := Notification{
		MessageID:  t.newID(),
		TopicARN:   t.arn,
		Message:    *in.Message,
		Attributes: make(map[string]string, len(in.MessageAttributes)),
		Timestamp:  t.now(),
	}
	for k, v := range in.MessageAttributes {
		if v.StringValue != nil {
			n.Attributes[k] = *v.StringValue
		}
	}

	dctx := context.WithoutCancel(ctx)
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		for _, d := range t.Fanout(dctx, n) {
			if d.Err != nil {
				logging.Error(dctx, t.logger, "subscription delivery failed",
					zap.String("subscription", d.Subscription),
					zap.String("message_id", n.MessageID),
					zap.Error(d.Err),
				)
			}
		}
	}()

	id := n.MessageID
	return &sns.PublishOutput{MessageId: &id}, nil
}

// Fanout delivers n to every accepting subscription in parallel and waits
// for all of them. One failing subscription does not affect the others.
func (t *Topic) Fanout(ctx context.Context, n Notification) []Delivery {
	subs := make([]Subscription, 0, len(t.subs))
	for _, s := range t.subs {
		if s.Accepts(n.Attributes) {
			subs = append(subs, s)
		}
	}

	out := make([]Delivery, len(subs))
	var g errgroup.Group
	for i, s := range subs {
		g.Go(func() error {
			out[i] = Delivery{Subscription: s.Name, Err: s.Target.Deliver(ctx, n)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Wait blocks until every background delivery has finished.
func (t *Topic) Wait() {
	t.inflight.Wait()
}
