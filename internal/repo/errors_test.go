package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestRowErr(t *testing.T) {
	if err := rowErr(nil, "scan task"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	if err := rowErr(pgx.ErrNoRows, "scan task"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	cause := errors.New("conn reset")
	err := rowErr(cause, "scan task")
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("driver error must not map to ErrNotFound")
	}
	if err.Error() != "scan task: conn reset" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := fmt.Errorf("insert account: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(dup) {
		t.Error("expected 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation is not a unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Error("plain error is not a unique violation")
	}
}
