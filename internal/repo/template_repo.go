package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Courier/internal/domain"
)

// TemplateRepo — репозиторий шаблонов сообщений.
type TemplateRepo struct {
	pool *pgxpool.Pool
}

// NewTemplateRepo создаёт новый TemplateRepo.
func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

// Create создаёт шаблон. Имя должно быть уникальным.
func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO templates (id, name, body, created_at)
		VALUES ($1, $2, $3, $4)
	`, t.ID, t.Name, t.Body, t.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetByID возвращает шаблон по ID.
func (r *TemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	var t domain.Template
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, body, created_at FROM templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Body, &t.CreatedAt)
	if err := rowErr(err, "get template"); err != nil {
		return nil, err
	}
	return &t, nil
}

// List возвращает все шаблоны по имени.
func (r *TemplateRepo) List(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, body, created_at FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Body, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// Delete удаляет шаблон.
func (r *TemplateRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
