package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Courier/internal/domain"
)

// TaskRepo — репозиторий send task'ов.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `
	id, account_id, message, template_id, bulk_id, state, reason, detail, result,
	contact_id, contact_jid, created_at, started_at, dispatched_at, finished_at
`

// TaskFilter — фильтр для списка task'ов.
type TaskFilter struct {
	AccountID string
	State     domain.TaskState
	Limit     int
}

// Create создаёт новый task.
func (r *TaskRepo) Create(ctx context.Context, task *domain.SendTask) error {
	query := `
		INSERT INTO send_tasks (id, account_id, message, template_id, bulk_id, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.AccountID,
		nullString(task.Message),
		nullUUID(task.TemplateID),
		nullUUID(task.BulkID),
		task.State,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// CreateBatch создаёт несколько task'ов в одной транзакции.
func (r *TaskRepo) CreateBatch(ctx context.Context, tasks []*domain.SendTask) error {
	batch := &pgx.Batch{}
	for _, task := range tasks {
		batch.Queue(`
			INSERT INTO send_tasks (id, account_id, message, template_id, bulk_id, state, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, task.ID, task.AccountID, nullString(task.Message), nullUUID(task.TemplateID),
			nullUUID(task.BulkID), task.State, task.CreatedAt)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert tasks: %w", err)
	}
	return tx.Commit(ctx)
}

// GetByID возвращает task по ID.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SendTask, error) {
	query := `SELECT ` + taskColumns + ` FROM send_tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// List возвращает task'и, новые первыми.
func (r *TaskRepo) List(ctx context.Context, filter TaskFilter) ([]domain.SendTask, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + taskColumns + `
		FROM send_tasks
		WHERE ($1 = '' OR account_id = $1)
		  AND ($2 = '' OR state = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, filter.AccountID, string(filter.State), limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListByBulk возвращает task'и bulk-рассылки.
func (r *TaskRepo) ListByBulk(ctx context.Context, bulkID uuid.UUID) ([]domain.SendTask, error) {
	query := `SELECT ` + taskColumns + ` FROM send_tasks WHERE bulk_id = $1 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query, bulkID)
	if err != nil {
		return nil, fmt.Errorf("list bulk tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListPending возвращает task'и в состоянии PENDING (старые первыми).
func (r *TaskRepo) ListPending(ctx context.Context, limit int) ([]domain.SendTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM send_tasks
		WHERE state = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	return collectTasks(rows)
}

// Transition сохраняет task, только если текущее состояние в БД входит в from.
//
// Так воркер и отмена через API не перезаписывают друг друга:
// проигравшая сторона получает ErrInvalidState.
func (r *TaskRepo) Transition(ctx context.Context, task *domain.SendTask, from ...domain.TaskState) error {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	query := `
		UPDATE send_tasks
		SET state = $2, reason = $3, detail = $4, result = $5, contact_id = $6,
		    contact_jid = $7, started_at = $8, dispatched_at = $9, finished_at = $10
		WHERE id = $1 AND state = ANY($11)
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.State,
		nullString(string(task.Reason)),
		nullString(task.Detail),
		nullString(string(task.Result)),
		nullString(task.ContactID),
		nullString(task.ContactJID),
		task.StartedAt,
		task.DispatchedAt,
		task.FinishedAt,
		states,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, task.ID); err != nil {
		return err
	}
	return ErrInvalidState
}

// --- Helpers ---

func scanTask(row pgx.Row) (*domain.SendTask, error) {
	var task domain.SendTask
	var message, reason, detail, result, contactID, contactJID *string

	err := row.Scan(
		&task.ID,
		&task.AccountID,
		&message,
		&task.TemplateID,
		&task.BulkID,
		&task.State,
		&reason,
		&detail,
		&result,
		&contactID,
		&contactJID,
		&task.CreatedAt,
		&task.StartedAt,
		&task.DispatchedAt,
		&task.FinishedAt,
	)
	if err := rowErr(err, "scan task"); err != nil {
		return nil, err
	}

	task.Message = deref(message)
	task.Reason = domain.Reason(deref(reason))
	task.Detail = deref(detail)
	task.Result = domain.MessageResult(deref(result))
	task.ContactID = deref(contactID)
	task.ContactJID = deref(contactJID)
	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]domain.SendTask, error) {
	defer rows.Close()

	var tasks []domain.SendTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}
