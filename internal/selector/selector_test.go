package selector

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Courier/internal/domain"
)

func at(sec int) *time.Time {
	t := time.Unix(int64(sec), 0)
	return &t
}

func TestSelectTarget_EarliestContactedFirst(t *testing.T) {
	pool := []domain.Contact{
		{ID: "A", Status: domain.ContactStatusNew, LastContactedAt: at(5)},
		{ID: "B", Status: domain.ContactStatusNew, LastContactedAt: at(2)},
	}

	got, err := SelectTarget(pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "B" {
		t.Errorf("expected B, got %s", got.ID)
	}
}

func TestSelectTarget_NeverContactedFirst(t *testing.T) {
	pool := []domain.Contact{
		{ID: "A", Status: domain.ContactStatusNew, LastContactedAt: at(1)},
		{ID: "Z", Status: domain.ContactStatusNew},
	}

	got, err := SelectTarget(pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "Z" {
		t.Errorf("expected never-contacted Z, got %s", got.ID)
	}
}

func TestSelectTarget_TieBreakByID(t *testing.T) {
	pool := []domain.Contact{
		{ID: "c", Status: domain.ContactStatusNew},
		{ID: "a", Status: domain.ContactStatusNew},
		{ID: "b", Status: domain.ContactStatusNew},
	}

	got, err := SelectTarget(pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "a" {
		t.Errorf("expected a, got %s", got.ID)
	}
}

func TestSelectTarget_SkipsContactedAndInvalid(t *testing.T) {
	pool := []domain.Contact{
		{ID: "a", Status: domain.ContactStatusContacted},
		{ID: "b", Status: domain.ContactStatusInvalid},
		{ID: "c", Status: domain.ContactStatusNew, LastContactedAt: at(100)},
	}

	got, err := SelectTarget(pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "c" {
		t.Errorf("expected c, got %s", got.ID)
	}
}

func TestSelectTarget_Empty(t *testing.T) {
	if _, err := SelectTarget(nil); !errors.Is(err, ErrNoAvailableContact) {
		t.Fatalf("expected ErrNoAvailableContact, got %v", err)
	}

	pool := []domain.Contact{{ID: "a", Status: domain.ContactStatusContacted}}
	if _, err := SelectTarget(pool); !errors.Is(err, ErrNoAvailableContact) {
		t.Fatalf("expected ErrNoAvailableContact for exhausted pool, got %v", err)
	}
}

func TestSelectTarget_DoesNotMutatePool(t *testing.T) {
	pool := []domain.Contact{{ID: "a", Status: domain.ContactStatusNew}}

	got, err := SelectTarget(pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got.Status = domain.ContactStatusContacted

	if pool[0].Status != domain.ContactStatusNew {
		t.Error("SelectTarget must return a copy")
	}
}

func TestSelectTarget_Deterministic(t *testing.T) {
	pool := []domain.Contact{
		{ID: "d", Status: domain.ContactStatusNew, LastContactedAt: at(3)},
		{ID: "b", Status: domain.ContactStatusNew, LastContactedAt: at(3)},
		{ID: "x", Status: domain.ContactStatusNew, LastContactedAt: at(9)},
	}
	reversed := []domain.Contact{pool[2], pool[1], pool[0]}

	a, _ := SelectTarget(pool)
	b, _ := SelectTarget(reversed)
	if a.ID != b.ID || a.ID != "b" {
		t.Errorf("expected b for both orderings, got %s and %s", a.ID, b.ID)
	}
}

func TestOrder(t *testing.T) {
	pool := []domain.Contact{
		{ID: "late", Status: domain.ContactStatusNew, LastContactedAt: at(50)},
		{ID: "done", Status: domain.ContactStatusContacted},
		{ID: "fresh", Status: domain.ContactStatusNew},
		{ID: "early", Status: domain.ContactStatusNew, LastContactedAt: at(10)},
	}

	got := Order(pool)
	want := []string{"fresh", "early", "late"}
	if len(got) != len(want) {
		t.Fatalf("expected %d contacts, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i].ID)
		}
	}
}
