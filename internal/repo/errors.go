package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки хранилищ. API переводит их в 404, 409 и 422.
var (
	// ErrNotFound — аккаунт, контакт, task, bulk или шаблон не найден.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — аккаунт с таким ID или шаблон с таким именем уже есть.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — переход task'а из текущего состояния запрещён
	// или аккаунт занят lease'ом.
	ErrInvalidState = errors.New("invalid state")
)

// pgUniqueViolation — SQLSTATE нарушения уникального индекса.
const pgUniqueViolation = "23505"

// rowErr переводит pgx.ErrNoRows в ErrNotFound, остальное оборачивает op.
func rowErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
