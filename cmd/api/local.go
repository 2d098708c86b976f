package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/config"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/consumers"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/eventstore"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/fanout"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/idempotency"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/queue"
)

// localPipeline runs the order-events consumers in-process: audit and
// billing receive topic deliveries directly, emails go through an
// in-memory queue with the same retry bound as SQS.
type localPipeline struct {
	topic   *fanout.Topic
	invoker consumers.Invoker
	done    sync.WaitGroup
}

func startLocalPipeline(ctx context.Context, clients *aws.AWSClients, cfg *config.Config, metrics *aws.FailureMetrics, logger *zap.Logger) *localPipeline {
	events := eventstore.NewStore(clients.DynamoDB, cfg.Tables.Events, cfg.Events.TTL)

	emailQueue := queue.NewMemoryQueue(fanout.SubscriptionEmails, cfg.Queue.VisibilityDelay, cfg.Queue.DLQRetention)
	notifier := consumers.NewEmailNotifier(
		aws.NewSESMailer(clients.SES, cfg.Email.From),
		idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Events.DedupTTL),
		2*cfg.Queue.UnitBudget,
		logger,
	)
	consumer := queue.NewConsumer(emailQueue, notifier, queue.Config{
		QueueName:       emailQueue.Name(),
		MaxReceives:     cfg.Queue.MaxReceives,
		VisibilityDelay: cfg.Queue.VisibilityDelay,
		BatchSize:       cfg.Queue.BatchSize,
		UnitBudget:      cfg.Queue.UnitBudget,
	}, metrics, logger)

	p := &localPipeline{
		topic: fanout.NewTopic(cfg.Bus.OrderEventsTopicARN, logger, fanout.OrderSubscriptions(
			consumers.NewAuditRecorder(events, logger),
			consumers.NewBilling(logger),
			fanout.QueueTarget(emailQueue),
		)...),
		invoker: consumers.DirectInvoker{Recorder: consumers.NewProductEventRecorder(events, logger)},
	}

	p.done.Add(1)
	go func() {
		defer p.done.Done()
		_ = consumer.Run(ctx)
	}()
	return p
}

// wait drains in-flight topic deliveries and waits for the email consumer
// to stop. ctx passed to startLocalPipeline must be cancelled first.
func (p *localPipeline) wait() {
	if p == nil {
		return
	}
	p.topic.Wait()
	p.done.Wait()
}
