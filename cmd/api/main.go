package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/notification-dispatcher/internal/config"
	"github.com/kursadbilgin/notification-dispatcher/internal/handler"
	"github.com/kursadbilgin/notification-dispatcher/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-dispatcher/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-dispatcher/internal/infra/redis"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/retry"
	"github.com/kursadbilgin/notification-dispatcher/internal/service"
	"github.com/kursadbilgin/notification-dispatcher/internal/stats"
	"github.com/kursadbilgin/notification-dispatcher/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("notification-dispatcher: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime(),
	})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	logRepo := repository.NewGormNotificationLogRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	inAppRepo := repository.NewGormInAppRepo(db)

	pusher, err := infraredis.NewPusher(rdb)
	if err != nil {
		return err
	}

	senders, err := buildSenders(ctx, cfg, inAppRepo, pusher, logger)
	if err != nil {
		return err
	}
	registry, err := provider.NewRegistry(senders...)
	if err != nil {
		return fmt.Errorf("failed to build sender registry: %w", err)
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, nil)
	if err != nil {
		return err
	}

	policy, err := retry.New(cfg.RetryConfig())
	if err != nil {
		return err
	}

	pool, err := service.NewPool(cfg.AsyncCoreWorkers, cfg.AsyncMaxWorkers, cfg.AsyncQueueCapacity, logger)
	if err != nil {
		return err
	}

	aggregator := stats.NewAggregator(cfg.StatsBuffer, logger)

	dispatcher, err := service.NewDispatcher(registry, logRepo, policy, logger,
		service.WithAttemptRepository(attemptRepo),
		service.WithRateLimiter(limiter),
		service.WithTaskRunner(pool),
		service.WithStatsRecorder(aggregator),
		service.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	guard, err := infraredis.NewReplayGuard(rdb, cfg.ReplayCooldown())
	if err != nil {
		return err
	}

	recovery, err := service.NewRecoveryLoop(logRepo, dispatcher, guard, service.RecoveryConfig{
		Interval:    cfg.RecoveryInterval(),
		Limit:       cfg.RecoveryBatchLimit,
		Concurrency: cfg.RecoveryConcurrency,
		MaxAttempts: policy.MaxAttempts(),
	}, logger)
	if err != nil {
		return err
	}
	recovery.SetMetrics(metrics)

	inbox, err := service.NewInboxService(inAppRepo, pusher, logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, handler.PostgresCheck(sqlDB), handler.RedisCheck(rdb))
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterNotificationRoutes(app, dispatcher, recovery); err != nil {
		return err
	}
	if err := handler.RegisterInboxRoutes(app, inbox); err != nil {
		return err
	}
	if err := handler.RegisterStatsRoutes(app, aggregator); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		aggregator.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return recovery.Start(gctx)
	})
	g.Go(func() error {
		logger.Info("notification-dispatcher api started",
			zap.Int("port", cfg.APIPort),
			zap.Any("channels", registry.Channels()),
		)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout()); err != nil {
			logger.Error("http shutdown failed", zap.Error(err))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Error("async pool shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("notification-dispatcher stopped")
	return nil
}
