package consumers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/fanout"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
)

// Billing receives ORDER_CREATED events through a filtered subscription.
// Charging is out of scope; the consumer logs the billing snapshot.
type Billing struct {
	logger *zap.Logger
}

func NewBilling(logger *zap.Logger) *Billing {
	return &Billing{logger: logger}
}

// Deliver implements fanout.Target.
func (b *Billing) Deliver(ctx context.Context, n fanout.Notification) error {
	ev, err := decodeNotification(n)
	if err != nil {
		return err
	}
	switch ev := ev.(type) {
	case events.OrderEvent:
		switch ev.Type {
		case events.OrderCreated:
			logging.Info(ctx, b.logger, "billing order",
				zap.String("message_id", n.MessageID),
				zap.String("order_id", ev.OrderID),
				zap.String("email", ev.Email),
				zap.String("payment", ev.Billing.Payment),
				zap.Float64("total_price", ev.Billing.TotalPrice),
			)
			return nil
		case events.OrderDeleted:
			return apperrors.Permanent(fmt.Errorf("billing: unexpected %s outside subscription filter", ev.Type))
		}
	case events.ProductEvent:
		return apperrors.Permanent(fmt.Errorf("billing: product event %s on order topic", ev.Type))
	}
	return apperrors.Permanent(fmt.Errorf("billing: unhandled event %s", ev.EventType()))
}
