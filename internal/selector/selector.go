package selector

import (
	"cmp"
	"errors"
	"slices"

	"github.com/shaiso/Courier/internal/domain"
)

// ErrNoAvailableContact — в пуле нет контактов в статусе new.
var ErrNoAvailableContact = errors.New("no available contact")

// SelectTarget выбирает одного получателя из пула.
//
// Кандидаты — только контакты в статусе new. Порядок детерминированный:
// сначала никогда не контактированные, затем по last_contacted_at
// по возрастанию, при равенстве — по ID.
//
// Пул не изменяется; отметку contacted ставит scheduler после dispatch.
func SelectTarget(pool []domain.Contact) (*domain.Contact, error) {
	var best *domain.Contact
	for i := range pool {
		c := &pool[i]
		if !c.IsAvailable() {
			continue
		}
		if best == nil || Compare(c, best) < 0 {
			best = c
		}
	}

	if best == nil {
		return nil, ErrNoAvailableContact
	}

	selected := *best
	return &selected, nil
}

// Compare задаёт порядок выбора контактов.
func Compare(a, b *domain.Contact) int {
	switch {
	case a.LastContactedAt == nil && b.LastContactedAt != nil:
		return -1
	case a.LastContactedAt != nil && b.LastContactedAt == nil:
		return 1
	case a.LastContactedAt != nil && b.LastContactedAt != nil:
		if c := a.LastContactedAt.Compare(*b.LastContactedAt); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// Order возвращает доступные контакты в порядке выбора.
func Order(pool []domain.Contact) []domain.Contact {
	out := make([]domain.Contact, 0, len(pool))
	for _, c := range pool {
		if c.IsAvailable() {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.Contact) int {
		return Compare(&a, &b)
	})
	return out
}
