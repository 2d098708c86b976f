package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
)

var tracer = otel.Tracer("github.com/antoniobritto07/ecommerce-aws-cdk/internal/queue")

// Handler processes one message. It must be safe to call again for the
// same message.
type Handler interface {
	Handle(ctx context.Context, m Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, m Message) error

func (f HandlerFunc) Handle(ctx context.Context, m Message) error { return f(ctx, m) }

// DeadLetterRecorder counts dead-lettered messages for alarming.
type DeadLetterRecorder interface {
	DeadLettered(ctx context.Context, queueName string) error
}

// Action is the terminal action taken for a message.
type Action string

const (
	Acked        Action = "ACKED"
	Requeued     Action = "REQUEUED"
	DeadLettered Action = "DEAD_LETTERED"
)

// Outcome reports what happened to one message of a batch. Err is the
// processing error, or the settle error when the action itself failed.
type Outcome struct {
	MessageID string
	Action    Action
	Err       error
}

// Config bounds retries and execution time.
type Config struct {
	QueueName       string
	MaxReceives     int           // attempts before dead-lettering
	VisibilityDelay time.Duration // wait before a failed message is redelivered
	BatchSize       int
	UnitBudget      time.Duration // per message
	IdleBackoff     time.Duration // pause after a failed receive
}

func (c Config) withDefaults() Config {
	if c.MaxReceives <= 0 {
		c.MaxReceives = 3
	}
	if c.VisibilityDelay <= 0 {
		c.VisibilityDelay = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.UnitBudget <= 0 {
		c.UnitBudget = 2 * time.Second
	}
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = time.Second
	}
	return c
}

// Consumer drives a Handler over a Queue.
type Consumer struct {
	queue   Queue
	handler Handler
	cfg     Config
	metrics DeadLetterRecorder
	logger  *zap.Logger
}

// NewConsumer returns a consumer. metrics may be nil.
func NewConsumer(q Queue, h Handler, cfg Config, metrics DeadLetterRecorder, logger *zap.Logger) *Consumer {
	return &Consumer{queue: q, handler: h, cfg: cfg.withDefaults(), metrics: metrics, logger: logger}
}

// Run polls until ctx is cancelled. It pauses for IdleBackoff after an
// empty or failed receive.
func (c *Consumer) Run(ctx context.Context) error {
	logging.Info(ctx, c.logger, "queue consumer started", zap.String("queue", c.cfg.QueueName))
	for ctx.Err() == nil {
		out, err := c.Poll(ctx)
		if err != nil && ctx.Err() == nil {
			logging.Warn(ctx, c.logger, "receive failed", zap.String("queue", c.cfg.QueueName), zap.Error(err))
		}
		if err == nil && len(out) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(c.cfg.IdleBackoff):
		}
	}
	return nil
}

// Poll receives one batch and processes it. It returns the outcomes.
func (c *Consumer) Poll(ctx context.Context) ([]Outcome, error) {
	msgs, err := c.queue.Receive(ctx, c.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return c.ProcessBatch(ctx, msgs), nil
}

// ProcessBatch processes every message concurrently, waits for all of
// them, then settles each one: ack on success, requeue while attempts
// remain, dead-letter once the bound is reached or the failure is permanent.
func (c *Consumer) ProcessBatch(ctx context.Context, msgs []Message) []Outcome {
	errs := c.processAll(ctx, msgs)
	out := make([]Outcome, len(msgs))
	for i, m := range msgs {
		out[i] = c.settle(ctx, m, errs[i])
	}
	return out
}

func (c *Consumer) processAll(ctx context.Context, msgs []Message) []error {
	errs := make([]error, len(msgs))
	var g errgroup.Group
	for i, m := range msgs {
		g.Go(func() error {
			errs[i] = c.processOne(ctx, m)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// processOne runs the handler under the unit budget. A handler that
// overruns is reported as a timeout even if it ignores its context.
func (c *Consumer) processOne(ctx context.Context, m Message) error {
	ctx, span := tracer.Start(ctx, "Queue.Process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", m.ID),
			attribute.Int("messaging.receive_count", m.ReceiveCount),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UnitBudget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- c.handler.Handle(ctx, m)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = apperrors.Transient(fmt.Errorf("message %s exceeded %s budget: %w", m.ID, c.cfg.UnitBudget, ctx.Err()))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Consumer) exhausted(m Message, err error) bool {
	return !apperrors.Retryable(err) || m.ReceiveCount >= c.cfg.MaxReceives
}

func (c *Consumer) settle(ctx context.Context, m Message, procErr error) Outcome {
	fields := []zap.Field{
		zap.String("queue", c.cfg.QueueName),
		zap.String("message_id", m.ID),
		zap.Int("receive_count", m.ReceiveCount),
	}

	if procErr == nil {
		if err := c.queue.Ack(ctx, m); err != nil {
			logging.Warn(ctx, c.logger, "ack failed, message will be redelivered", append(fields, zap.Error(err))...)
			return Outcome{MessageID: m.ID, Action: Acked, Err: err}
		}
		return Outcome{MessageID: m.ID, Action: Acked}
	}

	if !c.exhausted(m, procErr) {
		logging.Warn(ctx, c.logger, "message failed, requeued", append(fields, zap.Error(procErr))...)
		if err := c.queue.Requeue(ctx, m, c.cfg.VisibilityDelay); err != nil {
			// the visibility timeout still returns it eventually
			logging.Warn(ctx, c.logger, "requeue failed", append(fields, zap.Error(err))...)
		}
		return Outcome{MessageID: m.ID, Action: Requeued, Err: procErr}
	}

	logging.Error(ctx, c.logger, "message dead-lettered", append(fields, zap.Error(procErr))...)
	if err := c.queue.DeadLetter(ctx, m, procErr.Error()); err != nil {
		logging.Error(ctx, c.logger, "dead-letter failed", append(fields, zap.Error(err))...)
		return Outcome{MessageID: m.ID, Action: DeadLettered, Err: errors.Join(procErr, err)}
	}
	c.recordDeadLetter(ctx)
	return Outcome{MessageID: m.ID, Action: DeadLettered, Err: procErr}
}

func (c *Consumer) recordDeadLetter(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	if err := c.metrics.DeadLettered(ctx, c.cfg.QueueName); err != nil {
		logging.Warn(ctx, c.logger, "failed to record dead-letter metric", zap.Error(err))
	}
}
