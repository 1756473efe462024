package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budgetPilot/app/echo-server/router"
	"budgetPilot/business/bandit"
	"budgetPilot/business/changequeue"
	"budgetPilot/business/decisionloop"
	"budgetPilot/business/fatigue"
	"budgetPilot/business/patterns"
	"budgetPilot/internal/middleware"
	"budgetPilot/internal/repository/notification"
	"budgetPilot/internal/repository/patternlog"
	"budgetPilot/internal/repository/platform"
	redisRepo "budgetPilot/internal/repository/redis"
	"budgetPilot/internal/rest"
	"budgetPilot/pkg/config"
	redisClient "budgetPilot/pkg/database/redis"
	"budgetPilot/pkg/logger"
	pkgotel "budgetPilot/pkg/otel"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting budget pilot", "version", cfg.App.Version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := pkgotel.InitTracer(ctx, pkgotel.Config{
		ServiceName:       cfg.App.Name,
		ServiceVersion:    cfg.App.Version,
		Environment:       cfg.App.Environment,
		CollectorEndpoint: cfg.Otel.CollectorEndpoint,
		SamplingRate:      cfg.Otel.SamplingRate,
	})
	if err != nil {
		logger.Fatal("Failed to init tracer", "error", err)
	}
	defer func() {
		if err := pkgotel.Shutdown(context.Background(), tp); err != nil {
			logger.Error("Tracer shutdown error", "error", err)
		}
	}()

	store, err := openStorage(cfg)
	if err != nil {
		logger.Fatal("Failed to open storage", "error", err)
	}
	defer store.close()

	// Init pattern index
	patternLog, err := patternlog.Open(patternlog.Config{
		Path:     cfg.Patterns.DBPath,
		InMemory: cfg.Patterns.DBPath == "",
	})
	if err != nil {
		logger.Fatal("Failed to open pattern log", "error", err)
	}
	defer patternLog.Close()

	index, err := patterns.NewIndex(patternLog, cfg.Patterns.CacheSize)
	if err != nil {
		logger.Fatal("Failed to create pattern index", "error", err)
	}
	if err := index.Load(ctx); err != nil {
		logger.Fatal("Failed to load patterns", "error", err)
	}

	// Init services
	banditService := bandit.NewService(store.arms, store.variants, store.tuning, index, nil, cfg.Tuning.Bandit)
	queue := changequeue.NewService(store.changes, cfg.Tuning.Queue)
	detector := fatigue.NewDetector(cfg.Tuning.Fatigue)

	// Init executor chain: platform call, applied-value guard, local sync
	var executor changequeue.Executor = platform.NewClient(platform.Config{
		BaseURL: cfg.Platform.BaseURL,
		APIKey:  cfg.Platform.APIKey,
		Timeout: cfg.Platform.Timeout,
	})
	rdb, err := redisClient.NewRedisClient(ctx, cfg.Redis, cfg.Tuning.Queue.Workers)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}
	if rdb != nil {
		defer redisClient.CloseRedisClient(rdb)
		executor = changequeue.NewDedupExecutor(executor, redisRepo.NewAppliedRepository(rdb), 0)
	} else {
		logger.Warn("REDIS_HOST not set, replays rely on platform idempotency only")
	}
	executor = decisionloop.NewVariantSyncExecutor(executor, store.variants)
	pool := changequeue.NewWorkerPool(queue, executor)

	refresh := notification.NewRefreshWebhook(notification.WebhookConfig{
		URL:               cfg.Refresh.WebhookURL,
		BasicAuthUsername: cfg.Refresh.WebhookUsername,
		BasicAuthPassword: cfg.Refresh.WebhookPassword,
	})

	loop := decisionloop.NewOrchestrator(decisionloop.Deps{
		Metrics:   store.metrics,
		Snapshots: store.snapshots,
		Variants:  store.variants,
		Allocator: banditService,
		Detector:  detector,
		Patterns:  index,
		Queue:     queue,
		Decisions: store.decisions,
		Notifier:  refresh,
	}, cfg.Tuning.Loop)

	// Init handler
	var mirror rest.BatchMirror
	if store.influx != nil {
		mirror = store.influx
	}
	ingestHandler := rest.NewIngestHandler(store.metrics, store.variants, mirror)
	changeHandler := rest.NewChangeHandler(queue)
	allocationHandler := rest.NewAllocationHandler(banditService, store.tuning, store.decisions, loop)
	patternHandler := rest.NewPatternHandler(index)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// HTTP error handler
	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(middleware.Trace())

	// Setup routes
	router.SetOpsRoutes(e)
	api := e.Group("/api/v1")
	router.SetIngestRoutes(api, ingestHandler)
	router.SetChangeRoutes(api, changeHandler)
	router.SetAllocationRoutes(api, allocationHandler)
	router.SetPatternRoutes(api, patternHandler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return pool.Run(gctx)
	})
	g.Go(func() error {
		return loop.Run(gctx)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}

	if err := index.Persist(context.Background()); err != nil {
		logger.Error("Final pattern persist failed", "error", err)
	}
	logger.Info("Server stopped")
}
