// Command productevents is invoked synchronously by the products API and
// records each product event before answering.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/config"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/consumers"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/eventstore"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
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

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWS.Region, cfg.AWS.EndpointOverride)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	recorder := consumers.NewProductEventRecorder(
		eventstore.NewStore(clients.DynamoDB, cfg.Tables.Events, cfg.Events.TTL),
		logger,
	)
	lambda.Start(recorder.Handle)
}
