package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/repo"
	"github.com/shaiso/Courier/internal/telemetry"
)

// handleSendCompleted обрабатывает событие send.completed.
func (o *Orchestrator) handleSendCompleted(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.SendCompletedPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse send.completed payload", "error", err)
		return err
	}

	o.logger.Debug("received send.completed event",
		"task_id", payload.TaskID,
		"account_id", payload.AccountID,
		"state", payload.State,
		"reason", payload.Reason,
	)

	task, err := o.tasks.GetByID(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			o.logger.Warn("completed task not found", "task_id", payload.TaskID)
			return nil
		}
		return fmt.Errorf("get task: %w", err)
	}

	if err := o.Notify(ctx, task); err != nil {
		o.logger.Error("failed to process task completion",
			"task_id", payload.TaskID,
			"error", err,
		)
		return err
	}
	return nil
}

// Notify сообщает о завершении task: будит ожидающих и, если task
// входит в bulk, проверяет, не пора ли его финализировать.
// Незавершённые task'и игнорируются.
func (o *Orchestrator) Notify(ctx context.Context, task *domain.SendTask) error {
	if !task.IsFinished() {
		return nil
	}

	if n := o.waiters.notify(task); n > 0 {
		o.logger.Debug("task waiters notified", "task_id", task.ID, "waiters", n)
	}

	if task.BulkID == nil {
		return nil
	}
	if _, err := o.refreshBulk(ctx, *task.BulkID); err != nil {
		return fmt.Errorf("refresh bulk %s: %w", task.BulkID, err)
	}
	return nil
}

// Wait ждёт финального состояния task.
//
// Итог приходит через Notify; на случай потерянного события task
// перечитывается раз в WaitPollInterval. При отмене ctx возвращает
// последнее прочитанное состояние вместе с ошибкой ctx.
func (o *Orchestrator) Wait(ctx context.Context, id uuid.UUID) (*domain.SendTask, error) {
	if o.IsStopped() {
		return nil, ErrOrchestratorStopped
	}

	ch, done := o.waiters.add(id)
	defer done()

	ticker := time.NewTicker(o.waitPollInterval)
	defer ticker.Stop()

	for {
		task, err := o.tasks.GetByID(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("get task: %w", err)
		}
		if task.IsFinished() {
			return task, nil
		}

		select {
		case finished := <-ch:
			return &finished, nil
		case <-ticker.C:
		case <-ctx.Done():
			return task, ctx.Err()
		}
	}
}

// BulkProgress — bulk вместе со сводкой его task'ов.
type BulkProgress struct {
	Bulk    domain.Bulk        `json:"bulk"`
	Summary domain.BulkSummary `json:"summary"`
}

// Progress возвращает текущее состояние bulk и финализирует его,
// если все task'и уже завершены.
func (o *Orchestrator) Progress(ctx context.Context, bulkID uuid.UUID) (*BulkProgress, error) {
	return o.refreshBulk(ctx, bulkID)
}

// refreshBulk пересчитывает сводку bulk и переводит его в DONE/FAILED,
// когда незавершённых task'ов не осталось.
//
// Bulk в PENDING ещё наполняется task'ами и не финализируется.
func (o *Orchestrator) refreshBulk(ctx context.Context, bulkID uuid.UUID) (*BulkProgress, error) {
	o.bulkMu.Lock()
	defer o.bulkMu.Unlock()

	bulk, err := o.bulks.GetByID(ctx, bulkID)
	if err != nil {
		return nil, fmt.Errorf("get bulk: %w", err)
	}

	tasks, err := o.tasks.ListByBulk(ctx, bulkID)
	if err != nil {
		return nil, fmt.Errorf("list bulk tasks: %w", err)
	}

	summary := domain.Summarize(tasks)
	progress := &BulkProgress{Bulk: *bulk, Summary: summary}

	if bulk.Status != domain.BulkStatusRunning || !summary.IsComplete() || summary.Total < bulk.Total {
		return progress, nil
	}

	bulk.Finalize(summary)
	if err := o.bulks.Update(ctx, bulk); err != nil {
		return nil, fmt.Errorf("finalize bulk: %w", err)
	}

	telemetry.WithBulkID(o.logger, bulk.ID.String()).Info("bulk finished",
		"status", bulk.Status,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"rejected", summary.Rejected,
		"aborted", summary.Aborted,
	)

	progress.Bulk = *bulk
	return progress, nil
}
