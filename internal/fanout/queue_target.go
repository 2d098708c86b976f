package fanout

import "context"

// Sender enqueues a message body onto a durable queue.
type Sender interface {
	Send(ctx context.Context, body string) error
}

// QueueTarget delivers notifications to a queue the way SNS does for an SQS
// subscription without raw delivery.
func QueueTarget(q Sender) Target {
	return TargetFunc(func(ctx context.Context, n Notification) error {
		body, err := WrapForQueue(n)
		if err != nil {
			return err
		}
		return q.Send(ctx, body)
	})
}
