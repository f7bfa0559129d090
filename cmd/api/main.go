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

	httptransport "github.com/spec-kit/client-roster/internal/api/http"
	"github.com/spec-kit/client-roster/internal/api/http/handlers"
	"github.com/spec-kit/client-roster/internal/auth"
	"github.com/spec-kit/client-roster/internal/config"
	"github.com/spec-kit/client-roster/internal/events"
	"github.com/spec-kit/client-roster/internal/observability"
	"github.com/spec-kit/client-roster/internal/persistence"
	"github.com/spec-kit/client-roster/internal/repository"
	"github.com/spec-kit/client-roster/internal/service"
	"github.com/spec-kit/client-roster/internal/worker"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	pool := pg.PoolHandle()
	if pool == nil {
		logger.Fatal("POSTGRES_DSN is required")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	clientRepo := repository.NewClientRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	registry := service.NewSessionRegistry(service.RosterDependencies{
		ClientRepo:      clientRepo,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		MutationTimeout: cfg.Roster.MutationTimeout(),
	}, cfg.Roster.SessionIdleTimeout(), logger)

	// With Redis every instance, this one included, hears changes through the
	// channel; without it confirmed events go straight to local sessions.
	bridge := events.NewRedisBridge(redis.Handle(), cfg.Roster.ChangeChannel, logger)
	if bridge.Enabled() {
		bridge.Attach(dispatcher)
		go worker.StartChangeListener(ctx, bridge, registry, time.Second, logger)
	} else {
		registry.Attach(dispatcher)
	}
	go worker.NewRefreshWorker(registry, cfg.Roster.PollInterval(), logger).Run(ctx)

	userService := service.NewUserService(userRepo)
	reportService := service.NewReportService(clientRepo)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	dependencies := []handlers.Dependency{{Name: "postgres", Check: pg}}
	if bridge.Enabled() {
		dependencies = append(dependencies, handlers.Dependency{Name: "redis", Check: redis, Optional: true})
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies...),
		Clients:        handlers.NewClientsHandler(registry, userService, cfg.Roster.DefaultPageSize),
		Users:          handlers.NewUsersHandler(userService),
		Reports:        handlers.NewReportsHandler(reportService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, userRepo),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("stopped", zap.Any("metrics", metrics.Snapshot()))
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
