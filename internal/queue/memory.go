package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDLQRetention is how long dead letters are kept.
const DefaultDLQRetention = 10 * 24 * time.Hour

// DeadLetter is a message parked in a dead-letter queue.
type DeadLetter struct {
	Message Message
	Reason  string
	At      time.Time
}

type memMessage struct {
	id        string
	body      string
	receives  int
	visibleAt time.Time
	handle    string
}

// MemoryQueue is an in-process Queue with SQS-like visibility semantics
// and its own dead-letter queue. Used for local runs and tests.
type MemoryQueue struct {
	mu sync.Mutex

	name       string
	visibility time.Duration // in-flight time after a receive
	retention  time.Duration // dead letter retention
	nowFunc    func() time.Time
	handles    int

	messages []*memMessage
	dead     []DeadLetter
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue(name string, visibility, retention time.Duration) *MemoryQueue {
	if retention <= 0 {
		retention = DefaultDLQRetention
	}
	return &MemoryQueue{
		name:       name,
		visibility: visibility,
		retention:  retention,
		nowFunc:    time.Now,
	}
}

// SetClock replaces the queue's time source.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nowFunc = now
}

// Name returns the queue name.
func (q *MemoryQueue) Name() string { return q.name }

// Send enqueues body, visible immediately.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, &memMessage{id: uuid.NewString(), body: body, visibleAt: q.nowFunc()})
	return nil
}

// Receive returns up to max visible messages and hides them for the
// visibility timeout.
func (q *MemoryQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.nowFunc()

	var out []Message
	for _, m := range q.messages {
		if max > 0 && len(out) >= max {
			break
		}
		if now.Before(m.visibleAt) {
			continue
		}
		m.receives++
		m.visibleAt = now.Add(q.visibility)
		q.handles++
		m.handle = m.id + "/" + strconv.Itoa(q.handles)
		out = append(out, Message{ID: m.id, ReceiptHandle: m.handle, Body: m.body, ReceiveCount: m.receives})
	}
	return out, nil
}

func (q *MemoryQueue) find(m Message) (int, error) {
	for i, mm := range q.messages {
		if mm.id != m.ID {
			continue
		}
		if mm.handle != m.ReceiptHandle {
			return -1, fmt.Errorf("queue %s: stale receipt handle for %s", q.name, m.ID)
		}
		return i, nil
	}
	return -1, fmt.Errorf("queue %s: message %s not in flight", q.name, m.ID)
}

// Ack removes the message.
func (q *MemoryQueue) Ack(ctx context.Context, m Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i, err := q.find(m)
	if err != nil {
		return err
	}
	q.messages = append(q.messages[:i], q.messages[i+1:]...)
	return nil
}

// Requeue makes the message visible again after delay.
func (q *MemoryQueue) Requeue(ctx context.Context, m Message, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i, err := q.find(m)
	if err != nil {
		return err
	}
	q.messages[i].visibleAt = q.nowFunc().Add(delay)
	return nil
}

// DeadLetter moves the message from the queue to its dead-letter queue.
func (q *MemoryQueue) DeadLetter(ctx context.Context, m Message, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i, err := q.find(m)
	if err != nil {
		return err
	}
	q.messages = append(q.messages[:i], q.messages[i+1:]...)
	q.dead = append(q.dead, DeadLetter{Message: m, Reason: reason, At: q.nowFunc()})
	return nil
}

// Len counts messages still on the primary queue, in flight or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// DeadLetters returns dead letters still inside the retention window and
// drops the expired ones.
func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.nowFunc()
	kept := q.dead[:0]
	for _, d := range q.dead {
		if now.Before(d.At.Add(q.retention)) {
			kept = append(kept, d)
		}
	}
	q.dead = kept
	out := make([]DeadLetter, len(kept))
	copy(out, kept)
	return out
}
