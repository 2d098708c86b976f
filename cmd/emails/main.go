// Command emails consumes the order-events queue and sends order
// confirmations. It runs as an SQS-triggered Lambda with partial batch
// responses, or with QUEUE_POLL=true as a long-polling worker.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/config"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/consumers"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/fanout"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/idempotency"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.NewLogger(logging.Config{Level: cfg.LogLevel, Env: cfg.Env})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, err := aws.NewAWSClients(ctx, cfg.AWS.Region, cfg.AWS.EndpointOverride)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	notifier := consumers.NewEmailNotifier(
		aws.NewSESMailer(clients.SES, cfg.Email.From),
		idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Events.DedupTTL),
		2*cfg.Queue.UnitBudget,
		logger,
	)
	consumer := queue.NewConsumer(
		queue.NewSQSQueue(clients.SQS, cfg.Queue.URL, cfg.Queue.DLQURL),
		notifier,
		queue.Config{
			QueueName:       fanout.SubscriptionEmails,
			MaxReceives:     cfg.Queue.MaxReceives,
			VisibilityDelay: cfg.Queue.VisibilityDelay,
			BatchSize:       cfg.Queue.BatchSize,
			UnitBudget:      cfg.Queue.UnitBudget,
		},
		aws.NewFailureMetrics(clients.CloudWatch, cfg.Metrics.Namespace),
		logger,
	)

	if cfg.Queue.Poll {
		_ = consumer.Run(ctx)
		return
	}
	lambda.Start(consumer.HandleSQSEvent)
}
