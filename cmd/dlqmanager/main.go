// Package main runs the outbox dead-letter manager.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qiuhuiming/titan-track/database"
	"github.com/qiuhuiming/titan-track/internal/config"
	"github.com/qiuhuiming/titan-track/internal/logging"
	"github.com/qiuhuiming/titan-track/internal/outbox"
	httptransport "github.com/qiuhuiming/titan-track/internal/transport/http"
)

const defaultMetricsAddress = ":9103"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dlqmanager: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.PostgresURL, cfg.PostgresWaitTimeout)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger.Named("dlq"))

	metricsAddr := cfg.MetricsAddress
	if metricsAddr == "" {
		metricsAddr = defaultMetricsAddress
	}
	metricsCfg := httptransport.DefaultServerConfig(metricsAddr)
	metricsSrv := httptransport.NewServer(metricsCfg, promhttp.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Run(gctx, metricsSrv, metricsCfg.ShutdownTimeout, logger)
	})
	g.Go(func() error {
		logger.Info("dlq manager started",
			zap.Duration("interval", cfg.DLQPollInterval),
			zap.Int("max_retries", cfg.DLQMaxRetries),
			zap.Int("batch_size", cfg.DLQBatchSize),
		)
		if err := manager.Run(gctx, cfg.DLQPollInterval, cfg.DLQBatchSize); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("dlq manager stopped")
	return nil
}
