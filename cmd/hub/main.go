package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/api"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/breaker"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/cache"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/config"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/database"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/event"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/metrics"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/monitor"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/queue"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository/memory"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/retry"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/router"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/routing"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/syncjob"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	migrateFirst := pflag.Bool("migrate", false, "apply pending migrations before serving")
	routesFile := pflag.String("routes", "", "routing table YAML, overrides ROUTES_FILE")
	noWorkers := pflag.Bool("api-only", false, "serve the HTTP API without background workers")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *routesFile != "" {
		cfg.RoutesFile = *routesFile
	}

	logger := config.NewLogger(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting integration hub",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreDriver),
		slog.String("breaker_store", cfg.BreakerStore),
		slog.String("queue", cfg.QueueDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		store  *repository.Store
		shared cache.Cache
		pinger database.Pinger
	)
	switch cfg.StoreDriver {
	case "postgres":
		if *migrateFirst {
			if err := database.MigrateUp(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}

		pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL, cfg.DatabaseMaxConns))
		if err != nil {
			return err
		}
		defer pool.Close()

		store = repository.NewPostgresStore(pool)
		shared = cache.NewPGCache(pool)
		pinger = pool
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		store = memory.NewStore()
		shared = cache.NewMemoryCache()
	}

	// Circuit breaker
	var circuitStore breaker.Store
	switch cfg.BreakerStore {
	case "redis":
		client, err := breaker.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		circuitStore = breaker.NewRedisStore(client)
	default:
		circuitStore = breaker.NewMemoryStore()
	}
	circuits := breaker.New(circuitStore, cfg.BreakerConfig(), logger)
	circuits.OnStateChange(func(service string, _, to breaker.State) {
		metrics.CircuitState.WithLabelValues(service).Set(metrics.CircuitStateValue(string(to)))
	})

	// Dispatch queue
	var dispatch queue.Queue
	switch cfg.QueueDriver {
	case "rabbitmq":
		dispatch, err = queue.NewRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQQueue, logger)
		if err != nil {
			return err
		}
	default:
		dispatch = queue.NewLocal(1024, logger)
	}
	defer dispatch.Close()

	table, err := routing.Load(cfg.RoutesFile)
	if err != nil {
		return err
	}

	// Pipeline
	events := event.NewService(store.Events, dispatch, logger)
	scheduler := retry.NewScheduler(store.RetryQueue, store.DeadLetters, store.Events, cfg.RetryPolicy(), logger)
	pipeline := router.New(router.Options{
		Events:      store.Events,
		Endpoints:   store.Endpoints,
		Deliveries:  store.Deliveries,
		Table:       table,
		Deliverer:   webhook.NewDeliverer(store.Deliveries, circuits, cfg.WebhookTimeout, logger),
		Retries:     scheduler,
		Concurrency: cfg.RouterDeliveryConcurrency,
		Logger:      logger,
	})
	scheduler.SetExecutor(pipeline)

	orchestrator := syncjob.NewOrchestrator(
		store.SyncJobs,
		syncjob.NewClient(cfg.SystemURLs, cfg.WebhookTimeout),
		events,
		syncjob.DefaultDefinitions(),
		cfg.SyncBatchSize,
		logger,
	)

	hubMonitor := monitor.New(monitor.Options{
		Events:      store.Events,
		RetryQueue:  store.RetryQueue,
		DeadLetters: store.DeadLetters,
		Deliveries:  store.Deliveries,
		Circuits:    circuits,
		Cache:       shared,
		Systems:     cfg.KnownSystems,
		Thresholds:  cfg.AlertThresholds(),
		Period:      cfg.MonitorPeriod,
		CacheTTL:    cfg.MonitorCacheTTL,
		Logger:      logger,
	})

	// Background workers
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg sync.WaitGroup
	runWorker := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(workerCtx)
			logger.Info("worker stopped", slog.String("worker", name))
		}()
	}

	if *noWorkers {
		logger.Warn("background workers disabled")
	} else {
		routerWorker := router.NewWorker(pipeline, store.Events, dispatch, cfg.RouterPollInterval, cfg.RouterStaleAfter, logger)
		retryWorker := retry.NewWorker(scheduler, cfg.RetrySweepInterval, cfg.RetrySweepLimit, logger)
		syncWorker := syncjob.NewWorker(orchestrator, cfg.SyncInterval, logger)
		monitorWorker := monitor.NewWorker(
			hubMonitor,
			monitor.NewNotifier(cfg.AlertWebhookURL, cfg.AlertCooldown, shared, logger),
			logger,
			cfg.MonitorInterval,
		)

		runWorker("router", routerWorker.Run)
		runWorker("retry", retryWorker.Run)
		runWorker("sync", syncWorker.Run)
		runWorker("monitor", monitorWorker.Start)
	}

	// HTTP API
	httpRouter := api.NewRouter(logger, &api.Dependencies{
		Store:           store,
		Events:          events,
		Scheduler:       scheduler,
		Breaker:         circuits,
		Monitor:         hubMonitor,
		Orchestrator:    orchestrator,
		Routes:          table,
		DB:              pinger,
		Queue:           dispatch,
		Systems:         cfg.KnownSystems,
		IntakeRateLimit: cfg.IntakeRateLimit,
	})
	httpRouter.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := httpRouter.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		serveErr = fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := httpRouter.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	cancelWorkers()
	workersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-time.After(10 * time.Second):
		logger.Warn("workers did not stop in time")
	}

	logger.Info("server stopped")
	return serveErr
}
