// Package config loads process configuration from the environment, or from
// a YAML file named by CONFIG_PATH with environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `yaml:"env" env:"ENV" env-default:"dev"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	RunLocal bool   `yaml:"run_local" env:"RUN_LOCAL" env-default:"false"`
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR" env-default:":8080"`

	AWS      AWS      `yaml:"aws"`
	Tables   Tables   `yaml:"tables"`
	Bus      Bus      `yaml:"bus"`
	Queue    Queue    `yaml:"queue"`
	Events   Events   `yaml:"events"`
	Email    Email    `yaml:"email"`
	Redis    Redis    `yaml:"redis"`
	Products Products `yaml:"products"`
	Metrics  Metrics  `yaml:"metrics"`
}

type AWS struct {
	Region           string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	EndpointOverride string `yaml:"endpoint_override" env:"AWS_ENDPOINT_OVERRIDE"`
}

type Tables struct {
	Orders      string `yaml:"orders" env:"ORDERS_DDB" env-default:"orders"`
	Products    string `yaml:"products" env:"PRODUCTS_DDB" env-default:"products"`
	Events      string `yaml:"events" env:"EVENTS_DDB" env-default:"events"`
	Idempotency string `yaml:"idempotency" env:"IDEMPOTENCY_DDB" env-default:"idempotency"`
}

type Bus struct {
	OrderEventsTopicARN       string `yaml:"order_events_topic_arn" env:"ORDER_EVENTS_TOPIC_ARN"`
	ProductEventsFunctionName string `yaml:"product_events_function_name" env:"PRODUCT_EVENTS_FUNCTION_NAME"`
}

type Queue struct {
	URL             string        `yaml:"url" env:"ORDER_EVENTS_QUEUE_URL"`
	DLQURL          string        `yaml:"dlq_url" env:"ORDER_EVENTS_DLQ_URL"`
	MaxReceives     int           `yaml:"max_receives" env:"QUEUE_MAX_RECEIVES" env-default:"3"`
	VisibilityDelay time.Duration `yaml:"visibility_delay" env:"QUEUE_VISIBILITY_DELAY" env-default:"30s"`
	BatchSize       int           `yaml:"batch_size" env:"QUEUE_BATCH_SIZE" env-default:"10"`
	UnitBudget      time.Duration `yaml:"unit_budget" env:"UNIT_BUDGET" env-default:"2s"`
	DLQRetention    time.Duration `yaml:"dlq_retention" env:"DLQ_RETENTION" env-default:"240h"`
	// Poll selects long polling instead of the Lambda SQS trigger.
	Poll            bool          `yaml:"poll" env:"QUEUE_POLL" env-default:"false"`
}

type Events struct {
	TTL      time.Duration `yaml:"ttl" env:"EVENT_TTL" env-default:"5m"`
	DedupTTL time.Duration `yaml:"dedup_ttl" env:"DEDUP_TTL" env-default:"48h"`
}

type Email struct {
	From string `yaml:"from" env:"EMAIL_FROM"`
}

type Redis struct {
	// Addr empty disables the product cache.
	Addr string `yaml:"addr" env:"REDIS_ADDR"`
}

type Products struct {
	CacheTTL   time.Duration `yaml:"cache_ttl" env:"PRODUCT_CACHE_TTL" env-default:"10m"`
	AdminEmail string        `yaml:"admin_email" env:"PRODUCT_ADMIN_EMAIL" env-default:"admin@ecommerce.local"`
}

type Metrics struct {
	Namespace string `yaml:"namespace" env:"METRICS_NAMESPACE" env-default:"ECommerce/OrderEvents"`
}

// Load reads the configuration. When CONFIG_PATH is set the file is read
// first and environment variables override it.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Queue.MaxReceives < 1 {
		return fmt.Errorf("QUEUE_MAX_RECEIVES must be at least 1, got %d", c.Queue.MaxReceives)
	}
	if c.Events.TTL <= 0 {
		return fmt.Errorf("EVENT_TTL must be positive, got %s", c.Events.TTL)
	}
	return nil
}

// IsProd reports whether the production logger and settings apply.
func (c *Config) IsProd() bool {
	return c.Env == "prod"
}
