// Courier Worker — исполняет send task'и.
//
// Worker:
//   - Берёт advisory lock: планирует ровно один процесс, остальные ждут
//   - Получает send.requested из RabbitMQ и подбирает PENDING task'и polling'ом
//   - Проводит task через lease, квоту, выбор контакта и отправку
//   - Публикует send.completed и кэширует итог в Redis
//   - Освобождает брошенные lease'ы по cron-расписанию
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Courier/internal/cache"
	"github.com/shaiso/Courier/internal/config"
	"github.com/shaiso/Courier/internal/driver"
	"github.com/shaiso/Courier/internal/lease"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/repo"
	"github.com/shaiso/Courier/internal/scheduler"
	"github.com/shaiso/Courier/internal/telemetry"
	"github.com/shaiso/Courier/internal/worker"
)

// standbyInterval — как часто резервный воркер пытается взять lock.
const standbyInterval = 5 * time.Second

var startTime = time.Now()

func main() {
	_ = godotenv.Load()

	logger := telemetry.SetupLogger("courier-worker")
	logger.Info("starting courier-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// HTTP mux: /healthz + /metrics, доступен и в standby
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Worker.Port
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

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

	// Единственный планирующий процесс
	lock := repo.NewLeaderLock(pool, repo.SchedulerLockKey)
	if !waitForLock(ctx, lock, logger) {
		logger.Info("courier-worker stopped in standby")
		return
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("failed to release scheduler lock", "error", err)
		}
	}()

	w, closeDeps, err := buildWorker(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error("failed to build worker", "error", err)
		os.Exit(1)
	}
	defer closeDeps()

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	w.Stop()
	logger.Info("courier-worker stopped")
}

// waitForLock ждёт advisory lock. Возвращает false, если ctx отменён раньше.
func waitForLock(ctx context.Context, lock *repo.LeaderLock, logger *slog.Logger) bool {
	ticker := time.NewTicker(standbyInterval)
	defer ticker.Stop()

	announced := false
	for {
		ok, err := lock.TryAcquire(ctx)
		switch {
		case err != nil:
			logger.Warn("failed to acquire scheduler lock", "error", err)
		case ok:
			logger.Info("scheduler lock acquired")
			return true
		case !announced:
			logger.Info("another worker holds the scheduler lock, waiting in standby")
			announced = true
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// buildWorker собирает scheduler, sweeper и worker поверх PostgreSQL,
// RabbitMQ и Redis. closeDeps закрывает соединения с брокером и кэшем.
func buildWorker(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*worker.Worker, func(), error) {
	var closers []func()
	closeDeps := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	accountRepo := repo.NewAccountRepo(pool)
	taskRepo := repo.NewTaskRepo(pool)

	leases := lease.NewManager(lease.Config{
		Store:      accountRepo,
		StaleAfter: cfg.Lease.StaleAfter,
		Logger:     logger,
	})

	var drv driver.Driver
	if cfg.Send.DriverURL != "" {
		drv = driver.NewRemote(driver.RemoteConfig{BaseURL: cfg.Send.DriverURL})
		logger.Info("using remote driver", "url", cfg.Send.DriverURL)
	} else {
		drv = driver.NewStatic()
		logger.Warn("DRIVER_URL not set, using static driver without contacts")
	}

	sched := scheduler.New(scheduler.Config{
		Accounts:       accountRepo,
		Contacts:       repo.NewContactRepo(pool),
		Messages:       repo.NewMessageLogRepo(pool),
		Templates:      repo.NewTemplateRepo(pool),
		Tasks:          taskRepo,
		Leases:         leases,
		Policy:         cfg.Quota.Policy(),
		Driver:         drv,
		Simulate:       cfg.Send.Simulate,
		Pool:           scheduler.ParsePoolPolicy(cfg.Send.Pool),
		DiscoveryLimit: cfg.Send.DiscoveryLimit,
		Logger:         logger,
	})

	sweeper, err := scheduler.NewSweeper(leases, cfg.Lease.SweepSchedule, logger)
	if err != nil {
		return nil, closeDeps, fmt.Errorf("lease sweeper: %w", err)
	}

	workerCfg := worker.Config{
		Tasks:         taskRepo,
		Runner:        sched,
		Sweeper:       sweeper,
		MaxConcurrent: cfg.Send.MaxConcurrent,
		PollInterval:  cfg.Worker.PollInterval,
		BatchSize:     cfg.Worker.BatchSize,
		Logger:        logger,
	}

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		closers = append(closers, func() { _ = mqConn.Close() })
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		workerCfg.Conn = mqConn
		workerCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	// Redis
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = rdb.Close() })

		taskCache := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		if err := taskCache.Ping(ctx); err != nil {
			logger.Warn("Redis not available, outcome cache disabled", "error", err)
		} else {
			workerCfg.Cache = taskCache
			logger.Info("Redis connected", "addr", cfg.Redis.Addr)
		}
	}

	logger.Info("worker configured",
		"simulate", cfg.Send.Simulate,
		"pool", cfg.Send.Pool,
		"max_concurrent", cfg.Send.MaxConcurrent,
		"sweep_schedule", cfg.Lease.SweepSchedule,
	)

	return worker.New(workerCfg), closeDeps, nil
}
