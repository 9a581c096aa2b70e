package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Courier/internal/domain"
)

// MessageLogRepo — журнал отправок (только добавление).
type MessageLogRepo struct {
	pool *pgxpool.Pool
}

// NewMessageLogRepo создаёт новый MessageLogRepo.
func NewMessageLogRepo(pool *pgxpool.Pool) *MessageLogRepo {
	return &MessageLogRepo{pool: pool}
}

// MessageFilter — фильтр журнала.
type MessageFilter struct {
	AccountID string
	Limit     int
}

// Append добавляет запись. Повторная запись для того же task_id игнорируется
// (возвращает false).
func (r *MessageLogRepo) Append(ctx context.Context, entry *domain.MessageLogEntry) (bool, error) {
	query := `
		INSERT INTO message_log (task_id, account_id, contact_id, contact_jid, send_time,
		                         message, template_id, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id) DO NOTHING
		RETURNING id
	`
	rows, err := r.pool.Query(ctx, query,
		entry.TaskID,
		entry.AccountID,
		entry.ContactID,
		nullString(entry.ContactJID),
		entry.SentAt,
		entry.Message,
		nullUUID(entry.TemplateID),
		entry.Result,
		nullString(entry.Error),
	)
	if err != nil {
		return false, fmt.Errorf("insert message log: %w", err)
	}
	defer rows.Close()

	inserted := false
	for rows.Next() {
		if err := rows.Scan(&entry.ID); err != nil {
			return false, fmt.Errorf("scan message log id: %w", err)
		}
		inserted = true
	}
	return inserted, rows.Err()
}

// List возвращает записи журнала, новые первыми.
func (r *MessageLogRepo) List(ctx context.Context, filter MessageFilter) ([]domain.MessageLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, task_id, account_id, contact_id, contact_jid, send_time,
		       message, template_id, result, error
		FROM message_log
		WHERE ($1 = '' OR account_id = $1)
		ORDER BY send_time DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, filter.AccountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list message log: %w", err)
	}
	defer rows.Close()

	var entries []domain.MessageLogEntry
	for rows.Next() {
		var e domain.MessageLogEntry
		var jid, errText *string
		if err := rows.Scan(
			&e.ID,
			&e.TaskID,
			&e.AccountID,
			&e.ContactID,
			&jid,
			&e.SentAt,
			&e.Message,
			&e.TemplateID,
			&e.Result,
			&errText,
		); err != nil {
			return nil, fmt.Errorf("scan message log: %w", err)
		}
		e.ContactJID = deref(jid)
		e.Error = deref(errText)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
