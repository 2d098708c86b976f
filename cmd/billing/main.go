// Command billing receives ORDER_CREATED from the order-events topic.
package main

import (
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/config"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/consumers"
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

	lambda.Start(consumers.SNSHandler(consumers.NewBilling(logger)))
}
