// Courier API — HTTP API для аккаунтов, контактов, шаблонов и отправок.
//
// API:
//   - Создаёт send task'и и публикует send.requested
//   - Ждёт итог синхронных отправок (orchestrator слушает sends.completed)
//   - Финализирует bulk-рассылки
//   - Читает завершённые task'и через Redis-кэш
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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Courier/internal/api"
	"github.com/shaiso/Courier/internal/cache"
	"github.com/shaiso/Courier/internal/config"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/orchestrator"
	"github.com/shaiso/Courier/internal/repo"
	"github.com/shaiso/Courier/internal/telemetry"
)

var startTime = time.Now()

func main() {
	_ = godotenv.Load()

	logger := telemetry.SetupLogger("courier-api")
	logger.Info("starting courier-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	taskRepo := repo.NewTaskRepo(pool)
	bulkRepo := repo.NewBulkRepo(pool)

	handlerCfg := api.Config{
		Accounts:          repo.NewAccountRepo(pool),
		Contacts:          repo.NewContactRepo(pool),
		Tasks:             taskRepo,
		Bulks:             bulkRepo,
		Templates:         repo.NewTemplateRepo(pool),
		Messages:          repo.NewMessageLogRepo(pool),
		Policy:            cfg.Quota.Policy(),
		DefaultDailyLimit: cfg.Quota.DefaultDailyLimit,
		WaitTimeout:       cfg.API.WaitTimeout,
		Logger:            logger,
	}

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, tasks will be picked up by worker polling", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		handlerCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	// Redis
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		taskCache := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		if err := taskCache.Ping(ctx); err != nil {
			logger.Warn("Redis not available, task cache disabled", "error", err)
		} else {
			handlerCfg.Cache = taskCache
			logger.Info("Redis connected", "addr", cfg.Redis.Addr)
		}
	}

	// Orchestrator: итоги task'ов и финализация bulk'ов
	tracker := orchestrator.New(orchestrator.Config{
		Tasks:  taskRepo,
		Bulks:  bulkRepo,
		Conn:   mqConn,
		Logger: logger,
	})
	if err := tracker.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}
	defer tracker.Stop()
	handlerCfg.Tracker = tracker

	handler := api.NewHandler(handlerCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.API.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("courier-api stopped")
}
