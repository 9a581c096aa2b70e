package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/repo"
	"golang.org/x/sync/semaphore"
)

// Default configuration values.
const (
	defaultPollInterval  = 5 * time.Second
	defaultBatchSize     = 50
	defaultMaxConcurrent = 2
)

// TaskStore — хранилище send task'ов со стороны воркера.
type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SendTask, error)
	ListPending(ctx context.Context, limit int) ([]domain.SendTask, error)
	List(ctx context.Context, filter repo.TaskFilter) ([]domain.SendTask, error)
	Transition(ctx context.Context, task *domain.SendTask, from ...domain.TaskState) error
}

// Runner исполняет один task (scheduler.Scheduler).
type Runner interface {
	Run(ctx context.Context, task *domain.SendTask) error
}

// CompletionPublisher публикует send.completed.
type CompletionPublisher interface {
	PublishSendCompleted(ctx context.Context, payload mq.SendCompletedPayload) error
}

// OutcomeCache кэширует завершённые task'и.
type OutcomeCache interface {
	StoreTask(ctx context.Context, task *domain.SendTask) error
}

// Sweeper снимает stale lease'ы по расписанию.
type Sweeper interface {
	Start(ctx context.Context)
	Stop()
}

// Worker исполняет send task'и.
//
// Worker:
//   - получает запросы из очереди sends.requested (event-driven)
//   - периодически забирает PENDING task'и из БД (polling fallback)
//   - исполняет не больше MaxConcurrent task'ов одновременно
//   - публикует send.completed и кэширует итог
//
// В системе работает один активный Worker: main берёт advisory lock
// перед Start.
type Worker struct {
	tasks     TaskStore
	runner    Runner
	publisher CompletionPublisher
	cache     OutcomeCache
	sweeper   Sweeper
	conn      *mq.Connection

	consumer *mq.Consumer

	// Ограничение параллельных отправок и task'и в работе
	sem           *semaphore.Weighted
	maxConcurrent int
	inflight      map[uuid.UUID]struct{}
	inflightMu    sync.Mutex

	pollInterval time.Duration
	batchSize    int
	now          func() time.Time

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Tasks  TaskStore
	Runner Runner

	// Publisher и Cache опциональны.
	Publisher CompletionPublisher
	Cache     OutcomeCache

	// Sweeper — опционально; запускается вместе с Worker.
	Sweeper Sweeper

	// Conn — соединение с RabbitMQ. Без него Worker работает только через polling.
	Conn *mq.Connection

	MaxConcurrent int           // параллельные отправки (default: 2)
	PollInterval  time.Duration // интервал polling (default: 5s)
	BatchSize     int           // task'ов за один poll (default: 50)

	Now    func() time.Time
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		tasks:         cfg.Tasks,
		runner:        cfg.Runner,
		publisher:     cfg.Publisher,
		cache:         cfg.Cache,
		sweeper:       cfg.Sweeper,
		conn:          cfg.Conn,
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent: maxConcurrent,
		inflight:      make(map[uuid.UUID]struct{}),
		pollInterval:  pollInterval,
		batchSize:     batchSize,
		now:           now,
		logger:        logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - восстановление task'ов, брошенных прошлым процессом
//   - sweeper stale lease'ов
//   - Consumer для sends.requested (если есть соединение)
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"max_concurrent", w.maxConcurrent,
	)

	if err := w.recoverOrphans(ctx); err != nil {
		w.logger.Error("failed to recover orphaned tasks", "error", err)
	}

	if w.sweeper != nil {
		w.sweeper.Start(ctx)
	}

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:       string(mq.QueueSendsRequested),
			Handler:     w.handleSendRequested,
			Concurrency: w.maxConcurrent,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("send consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт task'и в работе.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	if w.sweeper != nil {
		w.sweeper.Stop()
	}

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: подхватываем task'и, созданные пока воркер был выключен
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll забирает пачку PENDING task'ов и исполняет их параллельно,
// не превышая MaxConcurrent. Возвращается, когда пачка обработана.
func (w *Worker) poll(ctx context.Context) {
	tasks, err := w.tasks.ListPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list pending tasks", "error", err)
		return
	}

	if len(tasks) == 0 {
		return
	}

	w.logger.Debug("poll found pending tasks", "count", len(tasks))

	var wg sync.WaitGroup
	for i := range tasks {
		id := tasks[i].ID

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.processTask(ctx, id); err != nil && !isSkip(err) {
				w.logger.Error("failed to process task from poll", "task_id", id, "error", err)
			}
		}()
	}
	wg.Wait()
}
