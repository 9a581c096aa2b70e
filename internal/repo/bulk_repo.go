package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Courier/internal/domain"
)

// BulkRepo — репозиторий bulk-рассылок.
type BulkRepo struct {
	pool *pgxpool.Pool
}

// NewBulkRepo создаёт новый BulkRepo.
func NewBulkRepo(pool *pgxpool.Pool) *BulkRepo {
	return &BulkRepo{pool: pool}
}

const bulkColumns = `id, mode, message, template_id, status, total, error, created_at, started_at, finished_at`

// Create создаёт bulk.
func (r *BulkRepo) Create(ctx context.Context, b *domain.Bulk) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bulks (id, mode, message, template_id, status, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.Mode, nullString(b.Message), nullUUID(b.TemplateID), b.Status, b.Total, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bulk: %w", err)
	}
	return nil
}

// GetByID возвращает bulk по ID.
func (r *BulkRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bulk, error) {
	return scanBulk(r.pool.QueryRow(ctx, `SELECT `+bulkColumns+` FROM bulks WHERE id = $1`, id))
}

// List возвращает последние bulk-рассылки.
func (r *BulkRepo) List(ctx context.Context, limit int) ([]domain.Bulk, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+bulkColumns+` FROM bulks ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bulks: %w", err)
	}
	return collectBulks(rows)
}

// ListActive возвращает bulk-рассылки в статусе PENDING или RUNNING.
func (r *BulkRepo) ListActive(ctx context.Context, limit int) ([]domain.Bulk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bulkColumns+`
		FROM bulks
		WHERE status IN ('PENDING', 'RUNNING')
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list active bulks: %w", err)
	}
	return collectBulks(rows)
}

// Update сохраняет статус bulk.
func (r *BulkRepo) Update(ctx context.Context, b *domain.Bulk) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE bulks
		SET status = $2, total = $3, error = $4, started_at = $5, finished_at = $6
		WHERE id = $1
	`, b.ID, b.Status, b.Total, nullString(b.Error), b.StartedAt, b.FinishedAt)
	if err != nil {
		return fmt.Errorf("update bulk: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func scanBulk(row pgx.Row) (*domain.Bulk, error) {
	var b domain.Bulk
	var message, bulkErr *string

	err := row.Scan(
		&b.ID,
		&b.Mode,
		&message,
		&b.TemplateID,
		&b.Status,
		&b.Total,
		&bulkErr,
		&b.CreatedAt,
		&b.StartedAt,
		&b.FinishedAt,
	)
	if err := rowErr(err, "scan bulk"); err != nil {
		return nil, err
	}

	b.Message = deref(message)
	b.Error = deref(bulkErr)
	return &b, nil
}

func collectBulks(rows pgx.Rows) ([]domain.Bulk, error) {
	defer rows.Close()

	var bulks []domain.Bulk
	for rows.Next() {
		b, err := scanBulk(rows)
		if err != nil {
			return nil, err
		}
		bulks = append(bulks, *b)
	}
	return bulks, rows.Err()
}
