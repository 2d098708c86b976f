package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/bus"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/config"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/consumers"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/handlers"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/orders"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/products"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/service"
)

func productRepository(clients *aws.AWSClients, cfg *config.Config, logger *zap.Logger) products.Repository {
	store := products.NewStore(clients.DynamoDB, cfg.Tables.Products)
	if cfg.Redis.Addr == "" {
		return store
	}
	return products.NewCachedStore(store, redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr}), cfg.Products.CacheTTL, logger)
}

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
	metrics := aws.NewFailureMetrics(clients.CloudWatch, cfg.Metrics.Namespace)
	productRepo := productRepository(clients, cfg, logger)

	// Deployed: real topic and product-events function. Local: in-process
	// topic with every subscription wired, and a direct recorder call.
	var topic aws.SNSAPI = clients.SNS
	var invoker consumers.Invoker = aws.NewLambdaInvoker(clients.Lambda, cfg.Bus.ProductEventsFunctionName)
	var local *localPipeline
	if cfg.RunLocal {
		local = startLocalPipeline(ctx, clients, cfg, metrics, logger)
		topic, invoker = local.topic, local.invoker
	}

	publisher := bus.NewPublisher(topic, cfg.Bus.OrderEventsTopicARN, metrics, logger)
	orderSvc := service.NewOrderService(orders.NewStore(clients.DynamoDB, cfg.Tables.Orders), productRepo, publisher, logger)
	productSvc := service.NewProductService(productRepo, consumers.NewProductEventClient(invoker), cfg.Products.AdminEmail, logger)
	r := handlers.NewRouter(orderSvc, productSvc, logger)

	if !cfg.RunLocal {
		adapter := ginadapter.New(r)
		lambda.Start(adapter.ProxyWithContext)
		return
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("running local server", zap.String("addr", cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("local server failed", zap.Error(err))
	}
	stop()
	local.wait()
}
