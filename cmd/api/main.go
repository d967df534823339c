package main

import (
	"context"
	"log"
	"os"
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
	"github.com/spec-kit/ticket-importer/internal/importer"
	"github.com/spec-kit/ticket-importer/internal/observability"
	"github.com/spec-kit/ticket-importer/internal/persistence"
	"github.com/spec-kit/ticket-importer/internal/queue"
	"github.com/spec-kit/ticket-importer/internal/repository"
	"github.com/spec-kit/ticket-importer/internal/service"
)

// multipart framing on top of the file itself
const uploadOverhead = 64 * 1024

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	runs := repository.NewJobRunRepository(pg.PoolHandle())
	service.NewJobHistoryService(dispatcher, runs, logger).RegisterHandlers()

	importService := service.NewImportService(service.ImportDependencies{
		Queue:      queue.NewRedisQueue(redis.Client, cfg.Redis.QueueKey),
		States:     queue.NewStateStore(redis.Client, cfg.Redis.StatePrefix, cfg.Redis.StateTTL()),
		Artifacts:  importer.NewFileArtifactStore(cfg.Import.OutputDir),
		History:    runs,
		Dispatcher: dispatcher,
		UploadDir:  cfg.Import.UploadDir,
		Logger:     logger,
	})
	authService := service.NewAuthService(cfg.Auth)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager())

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: cfg.App.MaxUploadBytes + uploadOverhead,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Imports:        handlers.NewImportsHandler(importService, cfg.App.MaxUploadBytes),
		Metrics:        handlers.NewMetricsHandler(metrics),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
