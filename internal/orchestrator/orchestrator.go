package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/mq"
)

// Default configuration values.
const (
	defaultPollInterval     = 10 * time.Second
	defaultWaitPollInterval = time.Second
	defaultBatchSize        = 100
)

// TaskStore — чтение send task'ов.
type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SendTask, error)
	ListByBulk(ctx context.Context, bulkID uuid.UUID) ([]domain.SendTask, error)
}

// BulkStore — bulk-рассылки.
type BulkStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Bulk, error)
	ListActive(ctx context.Context, limit int) ([]domain.Bulk, error)
	Update(ctx context.Context, b *domain.Bulk) error
}

// Orchestrator отслеживает завершение send task'ов на стороне API.
//
// Orchestrator:
//   - Получает события send.completed из очереди RabbitMQ (event-driven)
//   - Будит HTTP-запросы, ожидающие итога task (Wait)
//   - Финализирует bulk-рассылки, когда все их task'и завершены
//   - Периодически проверяет активные bulk'и в БД (polling fallback)
type Orchestrator struct {
	tasks TaskStore
	bulks BulkStore
	conn  *mq.Connection

	// Ожидающие итога task'а
	waiters *waiterSet

	// Финализация bulk выполняется по одной
	bulkMu sync.Mutex

	consumer *mq.Consumer

	// Configuration
	pollInterval     time.Duration
	waitPollInterval time.Duration
	batchSize        int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	Tasks TaskStore
	Bulks BulkStore

	// Conn — соединение с RabbitMQ. Без него итоги находятся только через polling.
	Conn *mq.Connection

	PollInterval     time.Duration // интервал polling bulk'ов (default: 10s)
	WaitPollInterval time.Duration // как часто Wait перечитывает task (default: 1s)
	BatchSize        int           // bulk'ов за один poll (default: 100)

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	waitPollInterval := cfg.WaitPollInterval
	if waitPollInterval <= 0 {
		waitPollInterval = defaultWaitPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		tasks:            cfg.Tasks,
		bulks:            cfg.Bulks,
		conn:             cfg.Conn,
		waiters:          newWaiterSet(),
		pollInterval:     pollInterval,
		waitPollInterval: waitPollInterval,
		batchSize:        batchSize,
		logger:           logger,
	}
}

// Start запускает Orchestrator.
//
// Запускает:
//   - Consumer для sends.completed (если есть соединение)
//   - Polling горутину для fallback
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"batch_size", o.batchSize,
	)

	if o.conn != nil {
		o.consumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueSendsCompleted),
			Handler:  o.handleSendCompleted,
			Prefetch: 10,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("completion consumer error", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	if o.consumer != nil {
		o.consumer.Stop()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped", "waiters", o.waiters.len())
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// pollLoop — цикл polling для fallback.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: bulk'и могли завершиться, пока API был выключен
	o.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

// poll проверяет активные bulk'и.
func (o *Orchestrator) poll(ctx context.Context) {
	bulks, err := o.bulks.ListActive(ctx, o.batchSize)
	if err != nil {
		o.logger.Error("failed to list active bulks", "error", err)
		return
	}

	if len(bulks) == 0 {
		return
	}

	o.logger.Debug("poll found active bulks", "count", len(bulks))

	for i := range bulks {
		if _, err := o.refreshBulk(ctx, bulks[i].ID); err != nil {
			o.logger.Error("failed to refresh bulk from poll",
				"bulk_id", bulks[i].ID,
				"error", err,
			)
		}
	}
}

// Waiters возвращает количество ожидающих запросов.
func (o *Orchestrator) Waiters() int {
	return o.waiters.len()
}
