package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws"
)

// SQSQueue is a Queue over an SQS queue and its dead-letter queue.
type SQSQueue struct {
	client   aws.SQSAPI
	url      string
	dlqURL   string
	waitTime int32 // long poll seconds
}

// NewSQSQueue returns a queue bound to url that dead-letters into dlqURL.
func NewSQSQueue(client aws.SQSAPI, url, dlqURL string) *SQSQueue {
	return &SQSQueue{client: client, url: url, dlqURL: dlqURL, waitTime: 20}
}

// Send enqueues body on the primary queue.
func (q *SQSQueue) Send(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &q.url,
		MessageBody: &body,
	})
	if err != nil {
		return apperrors.Transient(fmt.Errorf("sqs send: %w", err))
	}
	return nil
}

// Receive long-polls for up to max messages.
func (q *SQSQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 || max > 10 {
		max = 10
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &q.url,
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     q.waitTime,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("sqs receive: %w", err))
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := Message{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
			ReceiveCount:  receiveCount(m.Attributes),
			Attributes:    make(map[string]string, len(m.MessageAttributes)),
		}
		for k, v := range m.MessageAttributes {
			if v.StringValue != nil {
				msg.Attributes[k] = *v.StringValue
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func receiveCount(attrs map[string]string) int {
	n, err := strconv.Atoi(attrs[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Ack deletes the message.
func (q *SQSQueue) Ack(ctx context.Context, m Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.url,
		ReceiptHandle: &m.ReceiptHandle,
	})
	if err != nil {
		return apperrors.Transient(fmt.Errorf("sqs delete %s: %w", m.ID, err))
	}
	return nil
}

// Requeue makes the message visible again after delay.
func (q *SQSQueue) Requeue(ctx context.Context, m Message, delay time.Duration) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &q.url,
		ReceiptHandle:     &m.ReceiptHandle,
		VisibilityTimeout: int32(delay / time.Second),
	})
	if err != nil {
		return apperrors.Transient(fmt.Errorf("sqs change visibility %s: %w", m.ID, err))
	}
	return nil
}

// DeadLetter copies the message to the DLQ, then deletes it from the
// primary queue. If the delete fails the message may be redelivered and
// dead-lettered again.
func (q *SQSQueue) DeadLetter(ctx context.Context, m Message, reason string) error {
	if reason == "" {
		reason = "unspecified"
	}
	attrs := map[string]sqstypes.MessageAttributeValue{
		AttrDeadLetterReason: {DataType: aws.String("String"), StringValue: aws.String(truncate(reason, 256))},
		AttrReceiveCount:     {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(m.ReceiveCount))},
	}
	for k, v := range m.Attributes {
		if len(attrs) >= 10 {
			break
		}
		if _, taken := attrs[k]; !taken {
			attrs[k] = sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
		}
	}
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          &q.dlqURL,
		MessageBody:       &m.Body,
		MessageAttributes: attrs,
	})
	if err != nil {
		return apperrors.Transient(fmt.Errorf("sqs dead-letter %s: %w", m.ID, err))
	}
	if m.ReceiptHandle == "" {
		return nil
	}
	return q.Ack(ctx, m)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
