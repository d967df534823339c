package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-importer/internal/api/http"
	"github.com/spec-kit/ticket-importer/internal/api/http/handlers"
	"github.com/spec-kit/ticket-importer/internal/auth"
	"github.com/spec-kit/ticket-importer/internal/config"
	"github.com/spec-kit/ticket-importer/internal/events"
	"github.com/spec-kit/ticket-importer/internal/glpi"
	"github.com/spec-kit/ticket-importer/internal/importer"
	"github.com/spec-kit/ticket-importer/internal/janitor"
	"github.com/spec-kit/ticket-importer/internal/observability"
	"github.com/spec-kit/ticket-importer/internal/persistence"
	"github.com/spec-kit/ticket-importer/internal/queue"
	"github.com/spec-kit/ticket-importer/internal/repository"
	"github.com/spec-kit/ticket-importer/internal/service"
	"github.com/spec-kit/ticket-importer/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redis.Close()

	dispatcher := events.NewInMemoryDispatcher()
	runs := repository.NewJobRunRepository(pg.PoolHandle())
	service.NewJobHistoryService(dispatcher, runs, logger).RegisterHandlers()

	states := queue.NewStateStore(redis.Client, cfg.Redis.StatePrefix, cfg.Redis.StateTTL())
	artifacts := importer.NewFileArtifactStore(cfg.Import.OutputDir)

	runner := importer.NewRunner(importer.RunnerConfig{
		Connect:   importer.GLPIConnector(glpi.NewSessionConfig(cfg.GLPI, logger)),
		Artifacts: artifacts,
		Options: importer.Options{
			SettleDelay:   cfg.Import.SettleDelay(),
			DefaultStatus: cfg.Import.DefaultStatus,
		},
		KillSessionOnEnd: cfg.Import.KillSessionOnEnd,
		Logger:           logger,
	})

	if cfg.Janitor.Enabled {
		sweeper := janitor.New(janitor.Config{
			Cron:             cfg.Janitor.Cron,
			UploadDir:        cfg.Import.UploadDir,
			UploadSuffix:     service.UploadSuffix,
			OutputDir:        artifacts.Dir(),
			Retention:        cfg.Janitor.Retention(),
			History:          runs,
			HistoryRetention: cfg.Janitor.HistoryRetention(),
			Logger:           logger,
		})
		stopJanitor, err := sweeper.Start(ctx)
		if err != nil {
			logger.Fatal("failed to start janitor", zap.Error(err))
		}
		defer stopJanitor()
	}

	metrics := observability.NewMetrics()
	if addr := cfg.WorkerMetricsAddr(); addr != "" {
		app := fiber.New(fiber.Config{AppName: cfg.App.Name + "-worker", DisableStartupMessage: true})
		httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
		httptransport.RegisterWorkerRoutes(app, httptransport.WorkerRouteConfig{
			Health:         handlers.NewHealthHandler(cfg.App.Name+"-worker", cfg.App.Version, pg, redis),
			Metrics:        handlers.NewMetricsHandler(metrics),
			AuthMiddleware: auth.NewAuthMiddleware(service.NewAuthService(cfg.Auth).TokenManager()),
		})
		go func() {
			if err := app.Listen(addr); err != nil {
				logger.Error("worker metrics listener stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
		defer func() {
			if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
				logger.Warn("metrics shutdown", zap.Error(err))
			}
		}()
	}

	w := worker.NewImportWorker(worker.Config{
		Source: queue.NewRedisQueue(redis.Client, cfg.Redis.QueueKey),
		Runner: runner,
		Reporters: func(jobID string) importer.ProgressReporter {
			return states.Reporter(jobID, logger)
		},
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		Concurrency: cfg.Import.WorkerCount,
		PopTimeout:  cfg.Redis.PopTimeout(),
	})
	w.Run(ctx)
	logger.Info("worker shut down")
}
