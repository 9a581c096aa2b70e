package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/lease"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/repo"
)

// orphanScanLimit — сколько брошенных task'ов каждого состояния разбирается при старте.
const orphanScanLimit = 1000

// handleSendRequested обрабатывает запрос из очереди sends.requested.
func (w *Worker) handleSendRequested(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.SendRequestedPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse send.requested payload", "error", err)
		return err
	}

	w.logger.Debug("received send.requested event",
		"task_id", payload.TaskID,
		"account_id", payload.AccountID,
	)

	if err := w.processTask(ctx, payload.TaskID); err != nil {
		// Ожидаемые ситуации — ack без повтора
		if isSkip(err) || errors.Is(err, lease.ErrAccountNotFound) {
			w.logger.Debug("task not processed", "task_id", payload.TaskID, "reason", err)
			return nil
		}
		w.logger.Error("failed to process task", "task_id", payload.TaskID, "error", err)
		return err
	}

	return nil
}

// processTask загружает task и исполняет его, если он ещё PENDING.
//
// Один task не исполняется дважды одновременно, даже если запрос пришёл
// и из очереди, и через polling.
func (w *Worker) processTask(ctx context.Context, taskID uuid.UUID) error {
	if !w.claim(taskID) {
		return ErrTaskInFlight
	}
	defer w.unclaim(taskID)

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return ErrWorkerStopped
	}
	defer w.sem.Release(1)

	// 1. Загружаем task из БД
	task, err := w.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return fmt.Errorf("get task: %w", err)
	}

	// 2. Проверяем состояние
	if task.State != domain.TaskStatePending {
		return ErrTaskNotPending
	}

	w.logger.Info("task started", "task_id", task.ID, "account_id", task.AccountID)

	// 3. Исполняем
	runErr := w.runner.Run(ctx, task)

	// 4. Публикуем итог
	if task.IsFinished() {
		w.complete(ctx, task)
	}

	if runErr != nil {
		return fmt.Errorf("run task: %w", runErr)
	}
	return nil
}

// complete публикует send.completed и кладёт task в кэш.
// Ошибки не возвращаются: task уже сохранён в БД, API подхватит его через polling.
func (w *Worker) complete(ctx context.Context, task *domain.SendTask) {
	ctx = context.WithoutCancel(ctx)

	if w.cache != nil {
		if err := w.cache.StoreTask(ctx, task); err != nil {
			w.logger.Warn("failed to cache task outcome", "task_id", task.ID, "error", err)
		}
	}

	if w.publisher == nil {
		w.logger.Debug("publisher not available, skipping send.completed publish", "task_id", task.ID)
		return
	}

	if err := w.publisher.PublishSendCompleted(ctx, mq.NewSendCompleted(task)); err != nil {
		w.logger.Warn("failed to publish send.completed",
			"task_id", task.ID,
			"error", err,
		)
	}
}

// recoverOrphans завершает task'и, застрявшие в промежуточных состояниях
// после аварийной остановки прошлого процесса.
//
// До DISPATCHED сообщение точно не отправлялось: task прерывается с CANCELLED.
// Для DISPATCHED исход отправки неизвестен: PERSISTENCE_ERROR.
// Lease аккаунта снимет sweeper, когда он устареет.
func (w *Worker) recoverOrphans(ctx context.Context) error {
	var errs []error
	recovered := 0

	for _, state := range []domain.TaskState{
		domain.TaskStateLeased,
		domain.TaskStateEligible,
		domain.TaskStateDispatched,
	} {
		tasks, err := w.tasks.List(ctx, repo.TaskFilter{State: state, Limit: orphanScanLimit})
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s tasks: %w", state, err))
			continue
		}

		for i := range tasks {
			task := &tasks[i]
			if state == domain.TaskStateDispatched {
				task.Abort(domain.ReasonPersistenceError, "worker restarted after dispatch, send outcome unknown", w.now())
			} else {
				task.Abort(domain.ReasonCancelled, "worker restarted before dispatch", w.now())
			}

			if err := w.tasks.Transition(ctx, task, state); err != nil {
				if errors.Is(err, repo.ErrInvalidState) {
					continue
				}
				errs = append(errs, fmt.Errorf("abort task %s: %w", task.ID, err))
				continue
			}

			w.logger.Warn("orphaned task aborted",
				"task_id", task.ID,
				"account_id", task.AccountID,
				"state", state,
				"reason", task.Reason,
			)
			w.complete(ctx, task)
			recovered++
		}
	}

	if recovered > 0 {
		w.logger.Info("orphaned tasks recovered", "count", recovered)
	}
	return errors.Join(errs...)
}

func (w *Worker) claim(id uuid.UUID) bool {
	w.inflightMu.Lock()
	defer w.inflightMu.Unlock()

	if _, ok := w.inflight[id]; ok {
		return false
	}
	w.inflight[id] = struct{}{}
	return true
}

func (w *Worker) unclaim(id uuid.UUID) {
	w.inflightMu.Lock()
	defer w.inflightMu.Unlock()
	delete(w.inflight, id)
}
