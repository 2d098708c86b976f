package consumers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/eventstore"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/fanout"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
)

// AuditRecorder writes every order event it receives to the event store.
type AuditRecorder struct {
	store  Appender
	logger *zap.Logger
}

func NewAuditRecorder(store Appender, logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{store: store, logger: logger}
}

// Deliver implements fanout.Target.
func (r *AuditRecorder) Deliver(ctx context.Context, n fanout.Notification) error {
	ev, err := decodeNotification(n)
	if err != nil {
		logging.Error(ctx, r.logger, "rejecting order event", zap.String("message_id", n.MessageID), zap.Error(err))
		return err
	}
	rec, err := eventstore.FromEvent(ev, n.MessageID)
	if err != nil {
		return apperrors.Permanent(err)
	}
	stored, err := r.store.Append(ctx, rec)
	if err != nil {
		return fmt.Errorf("record %s: %w", ev.EventType(), err)
	}
	logging.Info(ctx, r.logger, "order event recorded",
		zap.String("message_id", n.MessageID),
		zap.String("event_type", string(ev.EventType())),
		zap.String("pk", stored.PK),
		zap.String("sk", stored.SK),
	)
	return nil
}
