package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Courier/internal/domain"
)

// ContactRepo — репозиторий контактов.
type ContactRepo struct {
	pool *pgxpool.Pool
}

// NewContactRepo создаёт новый ContactRepo.
func NewContactRepo(pool *pgxpool.Pool) *ContactRepo {
	return &ContactRepo{pool: pool}
}

const contactColumns = `contact_id, name, jid, status, last_contacted_at, metadata, created_at`

// ContactFilter — фильтр для списка контактов.
type ContactFilter struct {
	Status domain.ContactStatus
	Limit  int
	Offset int

	// WithJID — только контакты с известным адресом.
	WithJID bool
}

// UpsertBatch добавляет контакты или обновляет имя и metadata существующих.
// Статус существующего контакта не меняется. Возвращает число новых контактов.
func (r *ContactRepo) UpsertBatch(ctx context.Context, contacts []domain.Contact) (int, error) {
	if len(contacts) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for i := range contacts {
		c := &contacts[i]
		metadata, err := json.Marshal(orEmpty(c.Metadata))
		if err != nil {
			return 0, fmt.Errorf("marshal metadata: %w", err)
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		batch.Queue(`
			INSERT INTO contacts (contact_id, name, jid, status, metadata, created_at)
			VALUES ($1, $2, $3, 'new', $4, $5)
			ON CONFLICT (contact_id) DO UPDATE
			SET name = COALESCE(EXCLUDED.name, contacts.name),
			    metadata = contacts.metadata || EXCLUDED.metadata
			RETURNING (xmax = 0)
		`, c.ID, nullString(c.Name), nullString(c.JID), metadata, createdAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range contacts {
		var isNew bool
		if err := results.QueryRow().Scan(&isNew); err != nil {
			return inserted, fmt.Errorf("upsert contact: %w", err)
		}
		if isNew {
			inserted++
		}
	}
	return inserted, nil
}

// GetByID возвращает контакт по ID.
func (r *ContactRepo) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE contact_id = $1`
	return scanContact(r.pool.QueryRow(ctx, query, id))
}

// List возвращает контакты в порядке выбора selector'ом.
func (r *ContactRepo) List(ctx context.Context, filter ContactFilter) ([]domain.Contact, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE ($1 = '' OR status = $1)
		  AND (NOT $4 OR (jid IS NOT NULL AND jid <> ''))
		ORDER BY last_contacted_at ASC NULLS FIRST, contact_id ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, string(filter.Status), limit, filter.Offset, filter.WithJID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return collectContacts(rows)
}

// ListAvailable возвращает до limit контактов в статусе new, которым
// можно отправить сообщение (с известным jid).
func (r *ContactRepo) ListAvailable(ctx context.Context, limit int) ([]domain.Contact, error) {
	return r.List(ctx, ContactFilter{Status: domain.ContactStatusNew, Limit: limit, WithJID: true})
}

// ListByJIDs возвращает контакты с указанными адресами.
func (r *ContactRepo) ListByJIDs(ctx context.Context, jids []string) ([]domain.Contact, error) {
	if len(jids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE jid = ANY($1) ORDER BY contact_id`
	rows, err := r.pool.Query(ctx, query, jids)
	if err != nil {
		return nil, fmt.Errorf("list contacts by jid: %w", err)
	}
	return collectContacts(rows)
}

// MarkContacted переводит контакт из new в contacted.
// Повторный вызов ничего не меняет и возвращает false.
func (r *ContactRepo) MarkContacted(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE contacts
		SET status = 'contacted', last_contacted_at = $2
		WHERE contact_id = $1 AND status = 'new'
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark contacted: %w", err)
	}
	if result.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// MarkInvalid исключает контакт из рассылки.
func (r *ContactRepo) MarkInvalid(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `UPDATE contacts SET status = 'invalid' WHERE contact_id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark invalid: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func scanContact(row pgx.Row) (*domain.Contact, error) {
	var c domain.Contact
	var name, jid *string
	var metadata []byte

	err := row.Scan(
		&c.ID,
		&name,
		&jid,
		&c.Status,
		&c.LastContactedAt,
		&metadata,
		&c.CreatedAt,
	)
	if err := rowErr(err, "scan contact"); err != nil {
		return nil, err
	}

	c.Name = deref(name)
	c.JID = deref(jid)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &c, nil
}

func collectContacts(rows pgx.Rows) ([]domain.Contact, error) {
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
