// Package bus places domain events on the order-events topic.
package bus

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
)

// Message attribute names. AttrEventType is what subscription filter
// policies match on.
const (
	AttrEventType     = "eventType"
	AttrCorrelationID = "correlationId"
)

var tracer = otel.Tracer("github.com/antoniobritto07/ecommerce-aws-cdk/internal/bus")

// Receipt identifies a published message. Used for logging only.
type Receipt struct {
	MessageID string
	EventType events.Type
}

// FailureRecorder records publish failures somewhere an alarm can see them.
type FailureRecorder interface {
	PublishFailed(ctx context.Context, eventType string) error
}

// Publisher publishes envelopes to an SNS topic.
type Publisher struct {
	client   aws.SNSAPI
	topicARN string
	metrics  FailureRecorder
	logger   *zap.Logger
}

// NewPublisher creates a Publisher for topicARN. metrics may be nil.
func NewPublisher(client aws.SNSAPI, topicARN string, metrics FailureRecorder, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, topicARN: topicARN, metrics: metrics, logger: logger}
}

// Publish wraps ev in an envelope and publishes it with the event type as a
// message attribute. It does not wait for any subscriber. A failure is
// logged, counted and returned as a transient error.
func (p *Publisher) Publish(ctx context.Context, ev events.DomainEvent, correlationID string) (Receipt, error) {
	body, err := events.Marshal(ev)
	if err != nil {
		return Receipt{}, err
	}
	eventType := ev.EventType()

	ctx, span := tracer.Start(ctx, "Bus.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("event.type", string(eventType)),
			attribute.String("event.entity_id", ev.EntityID()),
		),
	)
	defer span.End()

	attrs := map[string]snstypes.MessageAttributeValue{
		AttrEventType: {DataType: aws.String("String"), StringValue: aws.String(string(eventType))},
	}
	if correlationID != "" {
		attrs[AttrCorrelationID] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(correlationID)}
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          &p.topicARN,
		Message:           aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.recordFailure(ctx, ev, correlationID, err)
		return Receipt{}, apperrors.Transient(fmt.Errorf("publish %s: %w", eventType, err))
	}

	receipt := Receipt{EventType: eventType}
	if out.MessageId != nil {
		receipt.MessageID = *out.MessageId
	}
	logging.Info(ctx, p.logger, "event published",
		zap.String("event_type", string(eventType)),
		zap.String("message_id", receipt.MessageID),
		zap.String("request_id", correlationID),
	)
	return receipt, nil
}

func (p *Publisher) recordFailure(ctx context.Context, ev events.DomainEvent, correlationID string, cause error) {
	logging.Error(ctx, p.logger, "event publish failed, event lost for subscribers",
		zap.String("event_type", string(ev.EventType())),
		zap.String("entity_id", ev.EntityID()),
		zap.String("request_id", correlationID),
		zap.Error(cause),
	)
	if p.metrics == nil {
		return
	}
	if err := p.metrics.PublishFailed(ctx, string(ev.EventType())); err != nil {
		logging.Warn(ctx, p.logger, "failed to record publish failure metric", zap.Error(err))
	}
}
