// Package queue consumes a durable queue with bounded redelivery: failed
// messages come back after a visibility delay until their receive count
// reaches the bound, then they are parked in a dead-letter queue.
package queue

import (
	"context"
	"time"
)

// Message is one received queue message.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          string
	// ReceiveCount includes the current receive, so it is 1 on first delivery.
	ReceiveCount int
	Attributes   map[string]string
}

// Queue is the durable queue contract. Ack, Requeue and DeadLetter are the
// terminal actions for a received message.
type Queue interface {
	Receive(ctx context.Context, max int) ([]Message, error)
	Ack(ctx context.Context, m Message) error
	Requeue(ctx context.Context, m Message, delay time.Duration) error
	DeadLetter(ctx context.Context, m Message, reason string) error
}

// Attribute names written on dead-lettered messages.
const (
	AttrDeadLetterReason = "deadLetterReason"
	AttrReceiveCount     = "sourceReceiveCount"
)
