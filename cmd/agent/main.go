package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/seenotify/agent/internal/backend"
	"github.com/seenotify/agent/internal/classifier"
	"github.com/seenotify/agent/internal/config"
	"github.com/seenotify/agent/internal/handler"
	"github.com/seenotify/agent/internal/infra/postgresql"
	"github.com/seenotify/agent/internal/infra/postgresql/migrations"
	infraredis "github.com/seenotify/agent/internal/infra/redis"
	"github.com/seenotify/agent/internal/observability"
	"github.com/seenotify/agent/internal/queue"
	"github.com/seenotify/agent/internal/service"
	"github.com/seenotify/agent/internal/storage"
	"github.com/seenotify/agent/internal/store"
	"github.com/seenotify/agent/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	var blob storage.Blob
	var sqlDB *sql.DB
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("postgres initialization failed", zap.Error(err))
		}
		if err := migrations.Migrate(db); err != nil {
			logger.Fatal("database migrations failed", zap.Error(err))
		}
		sqlDB, err = db.DB()
		if err != nil {
			logger.Fatal("postgres underlying db init failed", zap.Error(err))
		}
		defer sqlDB.Close()

		blob, err = postgresql.NewPostgresBlob(db)
		if err != nil {
			logger.Fatal("postgres blob initialization failed", zap.Error(err))
		}
	default:
		blob, err = infraredis.NewRedisBlob(rdb, "")
		if err != nil {
			logger.Fatal("redis blob initialization failed", zap.Error(err))
		}
	}

	metrics := observability.NewMetrics()

	recordStore, err := store.New(blob, cfg.StoreCapacity, time.Duration(cfg.DedupWindowSec)*time.Second, logger)
	if err != nil {
		logger.Fatal("store initialization failed", zap.Error(err))
	}
	recordStore.SetMetrics(metrics)
	if err := recordStore.Load(ctx); err != nil {
		logger.Fatal("store load failed", zap.Error(err))
	}

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.ClassifyRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	spamClassifier, err := classifier.NewClient(cfg.ClassifierURL, time.Duration(cfg.ClassifyTimeoutSec)*time.Second)
	if err != nil {
		logger.Fatal("classifier initialization failed", zap.Error(err))
	}

	var forwarder service.Forwarder
	if cfg.BackendURL != "" {
		backendForwarder, err := backend.NewForwarder(cfg.BackendURL, logger)
		if err != nil {
			logger.Fatal("backend forwarder initialization failed", zap.Error(err))
		}
		backendForwarder.SetMetrics(metrics)
		forwarder = backendForwarder
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.ConsumerPrefetch, logger)
	consumer.SetMetrics(metrics)
	publisher := queue.NewRabbitMQPublisher(rabbit)

	classifyTimeout := time.Duration(cfg.ClassifyTimeoutSec) * time.Second
	pipeline, err := service.NewPipeline(recordStore, spamClassifier, forwarder, rateLimiter, classifyTimeout, logger)
	if err != nil {
		logger.Fatal("pipeline initialization failed", zap.Error(err))
	}
	pipeline.SetMetrics(metrics)

	reconcileInterval := time.Duration(cfg.ReconcileIntervalSec) * time.Second
	reconciler, err := service.NewReconciler(recordStore, spamClassifier, reconcileInterval, logger)
	if err != nil {
		logger.Fatal("reconciler initialization failed", zap.Error(err))
	}
	reconciler.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, rdb, sqlDB)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterNotificationRoutes(app, recordStore); err != nil {
		logger.Fatal("notification routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterEventRoutes(app, publisher); err != nil {
		logger.Fatal("event routes registration failed", zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("consumer started", zap.String("queue", queue.EventsQueueName))
		return consumer.Consume(groupCtx, pipeline.HandleEvent)
	})

	g.Go(func() error {
		logger.Info("reconciler started", zap.Duration("interval", reconcileInterval))
		return reconciler.Start(groupCtx)
	})

	g.Go(func() error {
		logger.Info("http server started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("agent stopped with error", zap.Error(err))
		return
	}

	logger.Info("agent stopped")
}
