package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/app"
	"github.com/kursadbilgin/carecircle-dispatch/internal/config"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"github.com/kursadbilgin/carecircle-dispatch/internal/queue"
	"github.com/kursadbilgin/carecircle-dispatch/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	consumerPrefetch = 10
	retryScanLimit   = 100
	metricsPort      = 9090
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("worker", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, logger, app.Options{RequireBroker: true})
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer c.Close() //nolint:errcheck

	consumer := queue.NewRabbitMQConsumer(c.RabbitMQ, consumerPrefetch, logger.Named("consumer"))
	worker, err := service.NewAlertWorker(consumer, c.Notifier, cfg.WorkerConcurrency, logger.Named("worker"), c.Metrics)
	if err != nil {
		logger.Fatal("failed to create alert worker", zap.Error(err))
	}
	scanner, err := service.NewRetryScanner(c.Results, c.Sender, cfg.RetryScanInterval(), retryScanLimit, logger.Named("retry-scanner"), c.Metrics)
	if err != nil {
		logger.Fatal("failed to create retry scanner", zap.Error(err))
	}

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", metricsPort),
		Handler:           c.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(gctx) })
	g.Go(func() error { return scanner.Start(gctx) })
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	logger.Info("carecircle-dispatch worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Duration("retryScanInterval", cfg.RetryScanInterval()),
	)
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("worker stopped")
}
