package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/kursadbilgin/carecircle-dispatch/internal/app"
	"github.com/kursadbilgin/carecircle-dispatch/internal/config"
	"github.com/kursadbilgin/carecircle-dispatch/internal/handler"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("lambda", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	// Built once per cold start and reused across invocations.
	c, err := app.Build(context.Background(), cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer c.Close() //nolint:errcheck

	h, err := handler.NewAlertEventHandler(c.Notifier, logger.Named("events"))
	if err != nil {
		logger.Fatal("failed to create event handler", zap.Error(err))
	}

	lambda.Start(h.Handle)
}
