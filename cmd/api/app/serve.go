package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qiuhuiming/titan-track/database"
	"github.com/qiuhuiming/titan-track/internal/api"
	"github.com/qiuhuiming/titan-track/internal/auth"
	"github.com/qiuhuiming/titan-track/internal/config"
	"github.com/qiuhuiming/titan-track/internal/domain"
	"github.com/qiuhuiming/titan-track/internal/outbox"
	"github.com/qiuhuiming/titan-track/internal/persistence/memory"
	"github.com/qiuhuiming/titan-track/internal/persistence/postgres"
	httptransport "github.com/qiuhuiming/titan-track/internal/transport/http"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync API server",
		Long: `Start the HTTP API serving POST /v1/sync. With the postgres store and
OUTBOX_ENABLED=true the outbox dispatcher runs in the same process.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", "", "Address to listen on; overrides HTTP_ADDRESS")
	cmd.Flags().String("store", "", "Store driver (postgres, memory); overrides STORE_DRIVER")
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving (postgres store only)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, dispatcher, cleanup, err := buildStore(ctx, cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := domain.NewEngine(store, domain.WithLogger(logger.Named("engine")))

	keys := auth.NewKeySet(cfg.JWTSecret, cfg.JWKSURL, cfg.JWKSRefreshInterval)
	if cfg.JWKSURL != "" {
		if err := keys.Refresh(ctx); err != nil {
			logger.Warn("initial jwks fetch failed, retrying on first request", zap.String("jwks_url", cfg.JWKSURL), zap.Error(err))
		}
	}
	authMiddleware := auth.NewMiddleware(auth.Config{Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience, Keys: keys}, logger.Named("auth"))

	router := api.NewRouter(api.NewHandler(engine, logger.Named("api")), api.RouterConfig{
		Logger:         logger.Named("http"),
		Authenticate:   authMiddleware.Wrap,
		CORSOrigins:    cfg.CORSOrigins,
		ExposeMetrics:  cfg.MetricsAddress == "",
		RequestTimeout: 30 * time.Second,
	})

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Run(gctx, server, serverCfg.ShutdownTimeout, logger)
	})

	if cfg.MetricsAddress != "" {
		metricsCfg := httptransport.DefaultServerConfig(cfg.MetricsAddress)
		metricsSrv := httptransport.NewServer(metricsCfg, promhttp.Handler())
		g.Go(func() error {
			return httptransport.Run(gctx, metricsSrv, metricsCfg.ShutdownTimeout, logger)
		})
	}

	if dispatcher != nil {
		g.Go(func() error {
			dispatcher.Start(gctx)
			return nil
		})
	}

	logger.Info("sync api started",
		zap.String("address", cfg.HTTPAddress),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("outbox", dispatcher != nil),
	)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("sync api stopped")
	return nil
}

// buildStore wires the configured store. The postgres store also returns the outbox dispatcher
// when the outbox is enabled.
func buildStore(ctx context.Context, cmd *cobra.Command, cfg config.Config, logger *zap.Logger) (domain.Store, *outbox.Dispatcher, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil, func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg.PostgresURL, cfg.PostgresWaitTimeout)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if migrateFirst, _ := cmd.Flags().GetBool("migrate"); migrateFirst {
		if err := database.MigrateUp(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("migrations applied")
	}

	if !cfg.DispatchOutbox() {
		return postgres.NewStore(pool), nil, pool.Close, nil
	}

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, logger.Named("kafka"))
	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithLogger(logger.Named("outbox")))

	cleanup := func() {
		if err := producer.Close(); err != nil {
			logger.Warn("close kafka producer", zap.Error(err))
		}
		pool.Close()
	}
	return postgres.NewStore(pool), dispatcher, cleanup, nil
}
