package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	AWSRegion                string `env:"AWS_REGION,default=us-east-1"`
	DynamoDBEndpoint         string `env:"DYNAMODB_ENDPOINT"`
	UsersTable               string `env:"USERS_TABLE,default=users"`
	CareCircleTable          string `env:"CARE_CIRCLE_TABLE,default=care-circle-members"`
	NotificationResultsTable string `env:"NOTIFICATION_RESULTS_TABLE,default=notification-results"`
	SESFromEmail             string `env:"SES_FROM_EMAIL,required=true"`
	SMSSenderID              string `env:"SMS_SENDER_ID"`
	PushWebhookURL           string `env:"PUSH_WEBHOOK_URL"`

	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	RateLimitPerSec         int `env:"RATE_LIMIT_PER_SEC,default=100"`
	WorkerConcurrency       int `env:"WORKER_CONCURRENCY,default=4"`
	BreakerFailureThreshold int `env:"BREAKER_FAILURE_THRESHOLD,default=5"`
	RetryScanIntervalSec    int `env:"RETRY_SCAN_INTERVAL_SEC,default=60"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	if c.RateLimitPerSec < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_SEC must be positive, got %d", c.RateLimitPerSec)
	}
	if c.BreakerFailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive, got %d", c.BreakerFailureThreshold)
	}
	if c.RetryScanIntervalSec < 1 {
		return fmt.Errorf("RETRY_SCAN_INTERVAL_SEC must be positive, got %d", c.RetryScanIntervalSec)
	}
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT out of range: %d", c.APIPort)
	}
	return nil
}

// RateLimitEnabled reports whether sends go through the shared Redis limiter.
func (c *Config) RateLimitEnabled() bool {
	return strings.TrimSpace(c.RedisURL) != ""
}

// PushGatewayEnabled reports whether push uses the webhook gateway instead of SNS SMS.
func (c *Config) PushGatewayEnabled() bool {
	return strings.TrimSpace(c.PushWebhookURL) != ""
}

func (c *Config) RetryScanInterval() time.Duration {
	return time.Duration(c.RetryScanIntervalSec) * time.Second
}
