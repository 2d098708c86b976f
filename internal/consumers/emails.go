package consumers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/fanout"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/idempotency"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/queue"
)

// Mailer sends one email and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// DedupStore holds one marker per side effect.
type DedupStore interface {
	Claim(ctx context.Context, key, eventType string) (bool, error)
	Reclaim(ctx context.Context, key string, attempt int) (bool, error)
	Takeover(ctx context.Context, key string, seen time.Time, attempt int) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, resultRef string) error
	MarkFailed(ctx context.Context, key, note string) error
}

const (
	// DefaultMarkerLease bounds how long an IN_PROGRESS marker blocks other
	// deliveries when its holder never reports back.
	DefaultMarkerLease = 10 * time.Second

	markerWriteTimeout = 5 * time.Second
)

// EmailNotifier sends the order confirmation email for ORDER_CREATED
// messages from the email queue. A dedup marker is claimed before sending
// so a redelivered message does not send twice.
type EmailNotifier struct {
	mailer  Mailer
	dedup   DedupStore
	lease   time.Duration
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewEmailNotifier returns an EmailNotifier. lease should exceed the queue's
// per-message budget; a non-positive lease falls back to DefaultMarkerLease.
func NewEmailNotifier(mailer Mailer, dedup DedupStore, lease time.Duration, logger *zap.Logger) *EmailNotifier {
	if lease <= 0 {
		lease = DefaultMarkerLease
	}
	return &EmailNotifier{mailer: mailer, dedup: dedup, lease: lease, logger: logger, nowFunc: time.Now}
}

// Handle implements queue.Handler. The body may be an SNS notification or
// the raw envelope.
func (e *EmailNotifier) Handle(ctx context.Context, m queue.Message) error {
	n, wrapped := fanout.UnwrapQueueBody(m.Body)
	if !wrapped {
		n.MessageID = m.ID
		n.Attributes = m.Attributes
	}
	ev, err := decodeNotification(n)
	if err != nil {
		return err
	}

	switch ev := ev.(type) {
	case events.OrderEvent:
		switch ev.Type {
		case events.OrderCreated:
			return e.sendConfirmation(ctx, m, ev)
		case events.OrderDeleted:
			logging.Warn(ctx, e.logger, "ignoring order event on email queue",
				zap.String("message_id", m.ID), zap.String("event_type", string(ev.Type)))
			return nil
		}
	case events.ProductEvent:
		return apperrors.Permanent(fmt.Errorf("emails: product event %s on order queue", ev.Type))
	}
	return apperrors.Permanent(fmt.Errorf("emails: unhandled event %s", ev.EventType()))
}

func (e *EmailNotifier) sendConfirmation(ctx context.Context, m queue.Message, ev events.OrderEvent) error {
	key := idempotency.Key("email", ev.OrderID, string(ev.Type))
	fields := []zap.Field{
		zap.String("message_id", m.ID),
		zap.String("order_id", ev.OrderID),
		zap.Int("receive_count", m.ReceiveCount),
	}

	proceed, err := e.acquire(ctx, key, ev)
	if err != nil || !proceed {
		if err == nil {
			logging.Info(ctx, e.logger, "confirmation already sent, skipping", fields...)
		}
		return err
	}

	subject, body := confirmationEmail(ev)
	ref, err := e.mailer.Send(ctx, ev.Email, subject, body)

	// The marker outcome must land even when the send used up the budget.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markerWriteTimeout)
	defer cancel()

	if err != nil {
		if markErr := e.dedup.MarkFailed(markCtx, key, err.Error()); markErr != nil {
			logging.Warn(ctx, e.logger, "failed to mark dedup marker failed", append(fields, zap.Error(markErr))...)
		}
		return apperrors.Transient(fmt.Errorf("send confirmation for %s: %w", ev.OrderID, err))
	}

	// The email is out; a redelivery would duplicate it, so a marker write
	// failure is logged and the message is still acknowledged.
	if err := e.dedup.MarkDone(markCtx, key, ref); err != nil {
		logging.Warn(ctx, e.logger, "failed to mark dedup marker done", append(fields, zap.Error(err))...)
	}
	logging.Info(ctx, e.logger, "confirmation email sent", append(fields, zap.String("email_ref", ref))...)
	return nil
}

// acquire reports whether this delivery owns the side effect.
func (e *EmailNotifier) acquire(ctx context.Context, key string, ev events.OrderEvent) (bool, error) {
	claimed, err := e.dedup.Claim(ctx, key, string(ev.Type))
	if err != nil || claimed {
		return claimed, err
	}

	rec, err := e.dedup.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if rec == nil {
		// expired between Claim and Get
		return false, apperrors.Transient(fmt.Errorf("dedup marker %s vanished", key))
	}
	switch rec.Status {
	case idempotency.StatusDone:
		return false, nil
	case idempotency.StatusFailed:
		ok, err := e.dedup.Reclaim(ctx, key, rec.Attempts+1)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, apperrors.Transient(fmt.Errorf("dedup marker %s taken by another delivery", key))
		}
		return true, nil
	case idempotency.StatusInProgress:
		if e.nowFunc().Sub(rec.UpdatedAt) < e.lease {
			return false, apperrors.Transient(fmt.Errorf("dedup marker %s in progress", key))
		}
		ok, err := e.dedup.Takeover(ctx, key, rec.UpdatedAt, rec.Attempts+1)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, apperrors.Transient(fmt.Errorf("dedup marker %s taken by another delivery", key))
		}
		logging.Warn(ctx, e.logger, "taking over stale dedup marker",
			zap.String("key", key), zap.Time("updated_at", rec.UpdatedAt))
		return true, nil
	}
	return false, apperrors.Permanent(fmt.Errorf("dedup marker %s has unknown status %q", key, rec.Status))
}

func confirmationEmail(ev events.OrderEvent) (subject, body string) {
	subject = "Order " + ev.OrderID + " received"
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\nWe received your order %s.\n", ev.OrderID)
	fmt.Fprintf(&b, "Products: %s\n", strings.Join(ev.ProductCodes, ", "))
	fmt.Fprintf(&b, "Total: %.2f (%s)\n", ev.Billing.TotalPrice, ev.Billing.Payment)
	fmt.Fprintf(&b, "Shipping: %s via %s\n", ev.Shipping.Type, ev.Shipping.Carrier)
	return subject, b.String()
}
