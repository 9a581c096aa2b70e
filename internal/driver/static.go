package driver

import (
	"context"
	"fmt"
	"iter"
	"sync"
)

// Sent — сообщение, принятое Static драйвером.
type Sent struct {
	Profile string
	JID     string
	Body    string
}

// Static — in-memory драйвер.
//
// Все профили видят один и тот же список контактов.
// Поведение настраивается полями до первого использования.
type Static struct {
	// Contacts — контакты, возвращаемые ListAvailableContacts.
	Contacts []Candidate

	// SessionErr — если задано, OpenSession возвращает эту ошибку.
	SessionErr error

	// SendErr — если задано, SendMessage возвращает ошибку для этого jid.
	// Пустая строка в ключе означает "для всех".
	SendErr map[string]error

	// OnSend вызывается перед отправкой (например, чтобы подождать в тесте).
	OnSend func(ctx context.Context, jid string)

	mu       sync.Mutex
	sent     []Sent
	sessions int
	open     int
}

// NewStatic создаёт драйвер с заданными контактами.
func NewStatic(contacts ...Candidate) *Static {
	return &Static{Contacts: contacts}
}

// OpenSession открывает сессию.
func (d *Static) OpenSession(ctx context.Context, profilePath string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.SessionErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSession, profilePath, d.SessionErr)
	}

	d.mu.Lock()
	d.sessions++
	d.open++
	d.mu.Unlock()

	return &staticSession{driver: d, profile: profilePath}, nil
}

// Sent возвращает копию списка отправленных сообщений.
func (d *Static) Sent() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Sent, len(d.sent))
	copy(out, d.sent)
	return out
}

// Sessions возвращает количество открытых за всё время сессий.
func (d *Static) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

// OpenSessions возвращает количество незакрытых сессий.
func (d *Static) OpenSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

type staticSession struct {
	driver  *Static
	profile string
	closed  bool
}

func (s *staticSession) ListAvailableContacts(ctx context.Context) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		for _, c := range s.driver.Contacts {
			if err := ctx.Err(); err != nil {
				yield(Candidate{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (s *staticSession) SendMessage(ctx context.Context, jid, body string) error {
	if s.driver.OnSend != nil {
		s.driver.OnSend(ctx, jid)
	}

	if err, ok := s.driver.SendErr[jid]; ok {
		return fmt.Errorf("%w: %s: %v", ErrSend, jid, err)
	}
	if err, ok := s.driver.SendErr[""]; ok {
		return fmt.Errorf("%w: %s: %v", ErrSend, jid, err)
	}

	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	s.driver.sent = append(s.driver.sent, Sent{Profile: s.profile, JID: jid, Body: body})
	return nil
}

func (s *staticSession) Close() error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.driver.open--
	}
	return nil
}
