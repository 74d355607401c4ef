package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/carecircle-dispatch/internal/app"
	"github.com/kursadbilgin/carecircle-dispatch/internal/config"
	"github.com/kursadbilgin/carecircle-dispatch/internal/handler"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"github.com/kursadbilgin/carecircle-dispatch/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("api", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer c.Close() //nolint:errcheck

	server := fiber.New(fiber.Config{
		AppName:      "carecircle-dispatch",
		ErrorHandler: transport.ErrorHandler(logger),
		// Covers the dispatch timeout plus one retry round.
		WriteTimeout: 2*time.Minute + 5*time.Second,
	})
	server.Use(transport.CorrelationID())
	server.Use(c.Metrics.HTTPMiddleware())

	checks := []handler.ReadinessCheck{handler.PostgresCheck(c.SQLDB)}
	if c.Redis != nil {
		checks = append(checks, handler.RedisCheck(c.Redis))
	}
	if c.RabbitMQ != nil {
		checks = append(checks, handler.RabbitMQCheck(c.RabbitMQ.Healthy))
	}
	handler.RegisterHealthRoutes(server, checks...)
	server.Get("/metrics", adaptor.HTTPHandler(c.Metrics.Handler()))

	if err := handler.RegisterAccessRoutes(server, c.Resolver); err != nil {
		logger.Fatal("failed to register access routes", zap.Error(err))
	}
	if err := handler.RegisterNotificationRoutes(server, c.Dispatcher, c.AlertService); err != nil {
		logger.Fatal("failed to register notification routes", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down api")
		if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("carecircle-dispatch api started", zap.Int("port", cfg.APIPort))
	if err := server.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Error("api server stopped", zap.Error(err))
	}
}
