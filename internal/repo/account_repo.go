package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Courier/internal/domain"
)

// AccountRepo — репозиторий аккаунтов.
type AccountRepo struct {
	pool *pgxpool.Pool
}

// NewAccountRepo создаёт новый AccountRepo.
func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `
	account_id, profile_path, phone, enabled, status, daily_limit, today_sent,
	quota_day::text, last_used_time, last_error, consecutive_failures, in_use,
	lease_token, last_outcome_task_id, created_at, updated_at
`

// AccountFilter — фильтр для списка аккаунтов.
type AccountFilter struct {
	Status     domain.AccountStatus
	ActiveOnly bool
}

// Create регистрирует аккаунт.
func (r *AccountRepo) Create(ctx context.Context, acc *domain.Account) error {
	query := `
		INSERT INTO accounts (account_id, profile_path, phone, enabled, status, daily_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		acc.ID,
		acc.ProfilePath,
		nullString(acc.Phone),
		acc.Enabled,
		acc.Status,
		acc.DailyLimit,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID возвращает аккаунт по ID.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// List возвращает аккаунты, отсортированные по ID.
func (r *AccountRepo) List(ctx context.Context, filter AccountFilter) ([]domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE ($1 = '' OR status = $1)
		  AND (NOT $2 OR (enabled AND status = 'enabled'))
		ORDER BY account_id
	`
	rows, err := r.pool.Query(ctx, query, string(filter.Status), filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return collectAccounts(rows)
}

// ListInUse возвращает аккаунты с выставленным in_use.
func (r *AccountRepo) ListInUse(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE in_use ORDER BY account_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list in-use accounts: %w", err)
	}
	return collectAccounts(rows)
}

// UpdateAccount атомарно читает аккаунт, применяет fn и сохраняет результат.
//
// Строка блокируется SELECT ... FOR UPDATE до конца транзакции, поэтому
// конкурентные вызовы для одного аккаунта выполняются строго по очереди.
// Если fn вернул ошибку, транзакция откатывается и ошибка возвращается как есть.
func (r *AccountRepo) UpdateAccount(ctx context.Context, id string, fn func(acc *domain.Account) error) (*domain.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1 FOR UPDATE`
	acc, err := scanAccount(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := fn(acc); err != nil {
		return nil, err
	}

	update := `
		UPDATE accounts
		SET profile_path = $2, phone = $3, enabled = $4, status = $5, daily_limit = $6,
		    today_sent = $7, quota_day = $8::date, last_used_time = $9, last_error = $10,
		    consecutive_failures = $11, in_use = $12, lease_token = $13,
		    last_outcome_task_id = $14, updated_at = $15
		WHERE account_id = $1
	`
	_, err = tx.Exec(ctx, update,
		acc.ID,
		acc.ProfilePath,
		nullString(acc.Phone),
		acc.Enabled,
		acc.Status,
		acc.DailyLimit,
		acc.TodaySent,
		nullString(acc.QuotaDay),
		acc.LastUsedTime,
		nullString(acc.LastError),
		acc.ConsecutiveFailures,
		acc.InUse,
		acc.LeaseToken,
		acc.LastOutcomeTaskID,
		acc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return acc, nil
}

// Delete удаляет аккаунт. Занятый аккаунт удалить нельзя (ErrInvalidState).
func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE account_id = $1 AND NOT in_use`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var inUse bool
	err = r.pool.QueryRow(ctx, `SELECT in_use FROM accounts WHERE account_id = $1`, id).Scan(&inUse)
	if err := rowErr(err, "check account"); err != nil {
		return err
	}
	return ErrInvalidState
}

// --- Helpers ---

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var acc domain.Account
	var phone, quotaDay, lastError *string

	err := row.Scan(
		&acc.ID,
		&acc.ProfilePath,
		&phone,
		&acc.Enabled,
		&acc.Status,
		&acc.DailyLimit,
		&acc.TodaySent,
		&quotaDay,
		&acc.LastUsedTime,
		&lastError,
		&acc.ConsecutiveFailures,
		&acc.InUse,
		&acc.LeaseToken,
		&acc.LastOutcomeTaskID,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err := rowErr(err, "scan account"); err != nil {
		return nil, err
	}

	acc.Phone = deref(phone)
	acc.QuotaDay = deref(quotaDay)
	acc.LastError = deref(lastError)
	return &acc, nil
}

func collectAccounts(rows pgx.Rows) ([]domain.Account, error) {
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}
