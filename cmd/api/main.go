package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/queue-service/internal/api/http"
	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/clock"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/outbox"
	"github.com/spec-kit/queue-service/internal/persistence"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/repository/memory"
	"github.com/spec-kit/queue-service/internal/sequence"
	"github.com/spec-kit/queue-service/internal/service"
	"github.com/spec-kit/queue-service/internal/worker"
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

	pg, err := persistence.OpenPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var store repository.Store
	if pg.Enabled() {
		store = repository.NewPostgresStore(pg.Pool())
	} else {
		logger.Warn("using in-memory store; state is lost on restart")
		store = memory.NewStore()
	}

	readiness := map[string]handlers.Pinger{"store": store}

	var redis *persistence.Redis
	if cfg.Redis.Enabled {
		sequencerNeedsRedis := cfg.Queue.SequenceBackend == config.SequenceBackendRedis
		redis, err = persistence.OpenRedis(ctx, cfg.Redis, sequencerNeedsRedis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()
		readiness["redis"] = redis
	}

	var sequencer sequence.Allocator = sequence.NewStoreAllocator()
	if cfg.Queue.SequenceBackend == config.SequenceBackendRedis {
		sequencer = sequence.NewRedisAllocator(redis.Client, time.Duration(cfg.Queue.SequenceTTLHours)*time.Hour)
	}

	registry := prometheus.DefaultRegisterer
	metrics := observability.NewMetrics(registry)
	clk := clock.Real()

	deps := service.Dependencies{
		Store:           store,
		Sequencer:       sequencer,
		Clock:           clk,
		Logger:          logger,
		Metrics:         metrics,
		Retry:           cfg.Retry,
		Estimator:       cfg.Estimator,
		StorageTimeout:  cfg.Postgres.StorageTimeout(),
		DefaultLocation: cfg.Queue.Location(),
	}
	ticketService := service.NewTicketService(deps)
	sessionService := service.NewSessionService(deps)
	queueService := service.NewQueueService(deps)
	estimatorService := service.NewEstimatorService(deps)
	catalogService := service.NewCatalogService(deps)

	dispatcher := events.NewInMemoryDispatcher()
	publishers := events.MultiPublisher{dispatcher}
	if redis != nil {
		publishers = append(publishers, events.NewRedisPublisher(redis.Client, cfg.Events.Stream, cfg.Events.ChannelPrefix, cfg.Events.StreamMaxLen))
	}
	notificationService := service.NewNotificationService(dispatcher, logger)
	relay := outbox.NewRelay(store, publishers, clk, logger, metrics, cfg.Outbox)
	if err := worker.StartNotificationWorker(ctx, notificationService, relay); err != nil {
		logger.Fatal("failed to start outbox relay", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Queues:         handlers.NewQueuesHandler(queueService, ticketService, catalogService),
		Tickets:        handlers.NewTicketsHandler(ticketService, estimatorService, clk),
		Sessions:       handlers.NewSessionsHandler(sessionService, clk),
		Catalog:        handlers.NewCatalogHandler(catalogService),
		AuthMiddleware: authMiddleware,
		Gatherer:       prometheus.DefaultGatherer,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	relay.Stop()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
