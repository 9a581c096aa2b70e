// Package driver — граница с внешним драйвером автоматизации браузера.
//
// Scheduler не знает, как устроен драйвер: ему нужны только открытие
// сессии для профиля, перечисление доступных контактов и отправка
// сообщения. Реализации:
//   - Remote — HTTP-клиент к сервису автоматизации;
//   - Static — in-memory драйвер для тестов и локального запуска;
//   - DryRun — обёртка, которая ничего не отправляет (режим simulate).
package driver

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrSession — не удалось открыть сессию профиля (логин, браузер, профиль).
	ErrSession = errors.New("session error")

	// ErrSend — драйвер не смог отправить сообщение.
	ErrSend = errors.New("send error")
)

// Candidate — контакт, найденный в сессии.
type Candidate struct {
	JID  string `json:"jid"`
	Name string `json:"name,omitempty"`
}

// Driver открывает сессии для профилей браузера.
type Driver interface {
	// OpenSession открывает сессию для профиля. Ошибка оборачивает ErrSession.
	OpenSession(ctx context.Context, profilePath string) (Session, error)
}

// Session — открытая сессия одного профиля.
//
// Сессия не потокобезопасна: ею владеет один send task.
type Session interface {
	// ListAvailableContacts возвращает ленивую конечную последовательность
	// контактов. Повторный вызов начинает перечисление заново.
	ListAvailableContacts(ctx context.Context) iter.Seq2[Candidate, error]

	// SendMessage отправляет сообщение. Ошибка оборачивает ErrSend.
	SendMessage(ctx context.Context, jid, body string) error

	// Close закрывает сессию.
	Close() error
}
