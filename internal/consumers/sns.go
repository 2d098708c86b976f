// Package consumers holds the subscribers of the order-events topic and the
// synchronous product-event recorder.
package consumers

import (
	"context"
	"errors"
	"fmt"

	awsevents "github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/eventstore"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/fanout"
)

// Appender persists event records.
type Appender interface {
	Append(ctx context.Context, rec eventstore.EventRecord) (*eventstore.EventRecord, error)
}

// SNSHandler adapts a subscription target to an SNS-triggered Lambda. All
// records are delivered concurrently; the returned error joins the failed
// ones so the invocation is retried.
func SNSHandler(target fanout.Target) func(ctx context.Context, ev awsevents.SNSEvent) error {
	return func(ctx context.Context, ev awsevents.SNSEvent) error {
		errs := make([]error, len(ev.Records))
		var g errgroup.Group
		for i, rec := range ev.Records {
			g.Go(func() error {
				n := fanout.FromSNSRecord(rec)
				if err := target.Deliver(ctx, n); err != nil {
					errs[i] = fmt.Errorf("message %s: %w", n.MessageID, err)
				}
				return nil
			})
		}
		_ = g.Wait()
		return errors.Join(errs...)
	}
}

// decodeNotification decodes the event in n and checks it against the
// routing attribute when one is present.
func decodeNotification(n fanout.Notification) (events.DomainEvent, error) {
	ev, err := events.Unmarshal([]byte(n.Message))
	if err != nil {
		return nil, err
	}
	if attr := n.EventType(); attr != "" && attr != ev.EventType() {
		return nil, apperrors.Permanent(fmt.Errorf("%w: attribute %s, envelope %s", events.ErrMalformedEnvelope, attr, ev.EventType()))
	}
	return ev, nil
}
