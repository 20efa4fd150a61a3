// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"notification-dispatch/internal/app"
	"notification-dispatch/internal/common/aws"
	"notification-dispatch/internal/common/camunda"
	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/database"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/observability"
	"notification-dispatch/internal/store"
	"notification-dispatch/pkg/registry"

	dm "notification-dispatch/internal/workers/notification/dispatch-message"
	pm "notification-dispatch/internal/workers/notification/publish-message"
	sdl "notification-dispatch/internal/workers/notification/search-delivery-logs"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(observability.Options{
		ServiceName:    cfg.Observability.ServiceName,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClient(cfg.Camunda)
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Dispatch.MigrateOnStart {
		if err := store.Migrate(ctx, pg.GetDB(), log); err != nil {
			zapLog.Fatal("migration failed", zap.Error(err))
		}
	}

	res := app.Resources{DB: pg.GetDB(), Observability: obs}
	checks := map[string]readinessCheck{
		"postgres": pg.Ping,
		"zeebe":    zeebe.HealthCheck,
	}

	// --- Redis (optional) ---
	if cfg.Database.Redis.Enabled {
		var rc *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rc.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()
		res.Redis = rc.GetClient()
		checks["redis"] = rc.Ping
		zapLog.Info("Redis connected successfully")
	}

	// --- Elasticsearch (optional) ---
	if cfg.Database.Elasticsearch.Enabled {
		var ec *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			ec, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return ec.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		res.Elasticsearch = ec.Client
		checks["elasticsearch"] = ec.Ping
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- SNS dispatch events (optional) ---
	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SNS.TopicARN)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		res.Events = snsClient
		zapLog.Info("SNS dispatch events enabled", zap.String("topicArn", cfg.Integrations.AWS.SNS.TopicARN))
	}

	engine := app.NewEngine(cfg, res, log)

	if engine.Indexer != nil {
		if err := engine.Indexer.EnsureIndex(ctx); err != nil {
			zapLog.Warn("search index not ready, delivery logs will not be searchable", zap.Error(err))
		}
	}

	if cfg.Dispatch.SeedOnStart {
		seeded, err := engine.Seed(ctx)
		if err != nil {
			zapLog.Fatal("seed failed", zap.Error(err))
		}
		zapLog.Info("demo data seeded",
			zap.Int64("categories", seeded.Categories),
			zap.Int64("users", seeded.Users),
			zap.Int64("channels", seeded.Channels),
		)
	}

	// --- Workers ---
	reg := registry.Default()
	workers := startWorkers(cfg, zeebe, engine, reg, log, zapLog)

	// --- Health & Metrics Server ---
	srv := newHealthServer(cfg.Observability.MetricsAddress, checks, zapLog)
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Observability.MetricsAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing telemetry", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorkers(
	cfg *config.Config,
	zeebe *camunda.Client,
	engine *app.Engine,
	reg *registry.ActivityRegistry,
	log logger.Logger,
	zapLog *zap.Logger,
) []*camunda.CamundaWorker {
	var started []*camunda.CamundaWorker
	start := func(taskType string, handler camunda.JobHandler) {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		w := camunda.NewWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
		}, handler, zapLog)
		w.Start()
		started = append(started, w)
	}

	if config.IsWorkerEnabled(cfg, pm.TaskType) {
		handler, err := pm.NewHandler(pm.HandlerOptions{
			Config:     pm.FromAppConfig(cfg),
			Messages:   engine.Store,
			Dispatcher: engine.Orchestrator,
			Registry:   reg,
			Logger:     log,
		})
		if err != nil {
			zapLog.Fatal("failed to create publish-message handler", zap.Error(err))
		}
		start(pm.TaskType, handler)
	}

	if config.IsWorkerEnabled(cfg, dm.TaskType) {
		handler, err := dm.NewHandler(dm.HandlerOptions{
			Config:     dm.FromAppConfig(cfg),
			Messages:   engine.Store,
			Dispatcher: engine.Orchestrator,
			Registry:   reg,
			Logger:     log,
		})
		if err != nil {
			zapLog.Fatal("failed to create dispatch-message handler", zap.Error(err))
		}
		start(dm.TaskType, handler)
	}

	if config.IsWorkerEnabled(cfg, sdl.TaskType) {
		handler, err := sdl.NewHandler(sdl.HandlerOptions{
			Config:   sdl.FromAppConfig(cfg),
			Searcher: engine.Searcher,
			Registry: reg,
			Logger:   log,
		})
		if err != nil {
			zapLog.Fatal("failed to create search-delivery-logs handler", zap.Error(err))
		}
		start(sdl.TaskType, handler)
	}

	zapLog.Info("workers registered", zap.Int("count", len(started)))
	return started
}
