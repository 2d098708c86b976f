package queue

import (
	"context"

	awsevents "github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
)

// FromSQSRecord converts a Lambda SQS record into a Message.
func FromSQSRecord(r awsevents.SQSMessage) Message {
	m := Message{
		ID:            r.MessageId,
		ReceiptHandle: r.ReceiptHandle,
		Body:          r.Body,
		ReceiveCount:  receiveCount(r.Attributes),
		Attributes:    make(map[string]string, len(r.MessageAttributes)),
	}
	for k, v := range r.MessageAttributes {
		if v.StringValue != nil {
			m.Attributes[k] = *v.StringValue
		}
	}
	return m
}

// HandleSQSEvent is the Lambda entry for an SQS event source with
// ReportBatchItemFailures enabled. Only failed messages are reported, so
// the rest of the batch is deleted. Retries and the move to the DLQ are
// left to the queue's redrive policy, except for permanent failures which
// are dead-lettered right away when a queue is configured.
func (c *Consumer) HandleSQSEvent(ctx context.Context, ev awsevents.SQSEvent) (awsevents.SQSEventResponse, error) {
	msgs := make([]Message, len(ev.Records))
	for i, r := range ev.Records {
		msgs[i] = FromSQSRecord(r)
	}
	errs := c.processAll(ctx, msgs)

	var resp awsevents.SQSEventResponse
	for i, m := range msgs {
		err := errs[i]
		if err == nil {
			continue
		}
		fields := []zap.Field{
			zap.String("message_id", m.ID),
			zap.Int("receive_count", m.ReceiveCount),
			zap.Error(err),
		}
		if !apperrors.Retryable(err) && c.queue != nil {
			if dlErr := c.queue.DeadLetter(ctx, m, err.Error()); dlErr == nil {
				logging.Error(ctx, c.logger, "permanent failure, message dead-lettered", fields...)
				c.recordDeadLetter(ctx)
				continue
			}
		}
		logging.Warn(ctx, c.logger, "message failed, left for redelivery", fields...)
		resp.BatchItemFailures = append(resp.BatchItemFailures, awsevents.SQSBatchItemFailure{ItemIdentifier: m.ID})
	}
	return resp, nil
}
