// Package main runs the sync event log consumer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qiuhuiming/titan-track/database"
	"github.com/qiuhuiming/titan-track/internal/config"
	"github.com/qiuhuiming/titan-track/internal/consumer"
	"github.com/qiuhuiming/titan-track/internal/logging"
	httptransport "github.com/qiuhuiming/titan-track/internal/transport/http"
)

const defaultMetricsAddress = ":9102"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
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

	handler := consumer.NewPersistenceHandler(pool)

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

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		topicLogger := logger.With(zap.String("topic", topic), zap.String("group", cfg.ConsumerGroupID))
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(topicLogger))

		g.Go(func() error {
			defer func() {
				if err := reader.Close(); err != nil {
					topicLogger.Warn("close kafka reader", zap.Error(err))
				}
			}()
			topicLogger.Info("consumer started")
			if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume %s: %w", topic, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("consumer stopped")
	return nil
}
