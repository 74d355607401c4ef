package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/access"
	"github.com/kursadbilgin/carecircle-dispatch/internal/config"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	infraaws "github.com/kursadbilgin/carecircle-dispatch/internal/infra/aws"
	"github.com/kursadbilgin/carecircle-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/carecircle-dispatch/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/carecircle-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"github.com/kursadbilgin/carecircle-dispatch/internal/provider"
	"github.com/kursadbilgin/carecircle-dispatch/internal/queue"
	"github.com/kursadbilgin/carecircle-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/carecircle-dispatch/internal/repository"
	"github.com/kursadbilgin/carecircle-dispatch/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Container holds the wired components shared by the api, worker and lambda binaries.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	SQLDB    *sql.DB
	Redis    *redis.Client
	RabbitMQ *queue.RabbitMQ

	Users   repository.UserRepository
	Members repository.CareCircleRepository
	Results repository.NotificationResultRepository
	Audit   repository.AuditRepository

	Resolver     *access.Resolver
	Sender       *service.ProviderChannelSender
	Dispatcher   *service.Dispatcher
	Notifier     *service.CareCircleNotifier
	AlertService *service.AlertService

	closers []func() error
}

type Options struct {
	// RequireBroker fails Build when RABBITMQ_URL is empty.
	RequireBroker bool
}

func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	if err := c.build(ctx, opts); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, opts Options) error {
	cfg := c.Config

	clients, err := infraaws.NewClients(ctx, infraaws.Options{
		Region:           cfg.AWSRegion,
		DynamoDBEndpoint: cfg.DynamoDBEndpoint,
	})
	if err != nil {
		return err
	}
	c.Users = repository.NewDynamoUserRepo(clients.DynamoDB, cfg.UsersTable)
	c.Members = repository.NewDynamoCareCircleRepo(clients.DynamoDB, cfg.CareCircleTable)
	c.Results = repository.NewDynamoNotificationResultRepo(clients.DynamoDB, cfg.NotificationResultsTable)

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if c.SQLDB, err = db.DB(); err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	c.closers = append(c.closers, c.SQLDB.Close)
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	c.Audit = repository.NewGormAuditRepo(db)

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.RateLimitEnabled() {
		if c.Redis, err = infraredis.NewRedis(ctx, cfg.RedisURL); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		c.closers = append(c.closers, c.Redis.Close)

		channelLimiter, err := infraredis.NewChannelLimiter(c.Redis, infraredis.ChannelLimiterOptions{
			Default: int64(cfg.RateLimitPerSec),
			Window:  time.Second,
		})
		if err != nil {
			return err
		}
		limiter = channelLimiter
	} else {
		c.Logger.Warn("REDIS_URL not set, provider sends are not rate limited")
	}

	registry, err := c.providers(clients)
	if err != nil {
		return err
	}
	c.Sender = service.NewProviderChannelSender(registry, limiter, c.Logger.Named("sender"), c.Metrics)

	c.Resolver = access.NewResolver(c.Members, c.Audit, c.Logger.Named("access"), c.Metrics)

	if c.Dispatcher, err = service.NewDispatcher(c.Users, c.Results, c.Sender, c.Logger.Named("dispatcher"),
		service.WithDispatcherMetrics(c.Metrics),
	); err != nil {
		return err
	}
	if c.Notifier, err = service.NewCareCircleNotifier(c.Members, c.Users, c.Resolver, c.Dispatcher, c.Logger.Named("notifier")); err != nil {
		return err
	}

	var publisher queue.Publisher
	if cfg.RabbitMQURL != "" {
		if c.RabbitMQ, err = queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, c.Logger.Named("rabbitmq")); err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		c.closers = append(c.closers, c.RabbitMQ.Close)
		publisher = queue.NewRabbitMQPublisher(c.RabbitMQ)
	} else if opts.RequireBroker {
		return errors.New("RABBITMQ_URL is required")
	}
	c.AlertService, err = service.NewAlertService(publisher, c.Results, c.Logger.Named("alerts"))
	return err
}

// providers builds one breaker-wrapped provider per channel.
func (c *Container) providers(clients *infraaws.Clients) (provider.Registry, error) {
	cfg := c.Config
	settings := provider.DefaultBreakerSettings()
	settings.FailureThreshold = uint32(cfg.BreakerFailureThreshold)
	settings.OnStateChange = func(name string, _, to gobreaker.State) {
		c.Metrics.SetBreakerOpen(name, to == gobreaker.StateOpen)
	}
	breakerLogger := c.Logger.Named("breaker")

	sms, err := provider.NewSNSProvider(clients.SNS, cfg.SMSSenderID)
	if err != nil {
		return nil, err
	}
	email, err := provider.NewSESProvider(clients.SES, cfg.SESFromEmail)
	if err != nil {
		return nil, err
	}

	registry := provider.Registry{
		domain.ChannelSMS:   provider.NewBreakerProvider("sns-sms", sms, settings, breakerLogger),
		domain.ChannelEmail: provider.NewBreakerProvider("ses-email", email, settings, breakerLogger),
	}

	if cfg.PushGatewayEnabled() {
		push, err := provider.NewWebhookProvider(cfg.PushWebhookURL)
		if err != nil {
			return nil, err
		}
		registry[domain.ChannelPush] = provider.NewBreakerProvider("push-gateway", push, settings, breakerLogger)
	} else {
		registry[domain.ChannelPush] = provider.NewBreakerProvider("sns-push", sms, settings, breakerLogger)
	}
	return registry, nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
