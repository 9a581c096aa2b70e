package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageLogEntry — запись журнала отправок.
//
// Ровно одна запись на попытку отправки (ключ — TaskID).
// Записи неизменяемы после создания.
type MessageLogEntry struct {
	// ID — автоинкрементный идентификатор.
	ID int64 `json:"id"`

	// TaskID — send task, породивший запись.
	TaskID uuid.UUID `json:"task_id"`

	// AccountID — аккаунт-отправитель.
	AccountID string `json:"account_id"`

	// ContactID и ContactJID — получатель.
	ContactID  string `json:"contact_id"`
	ContactJID string `json:"contact_jid,omitempty"`

	// SentAt — время попытки.
	SentAt time.Time `json:"send_time"`

	// Message — отправленный текст (после рендеринга шаблона).
	Message string `json:"message"`

	// TemplateID — шаблон, если текст построен из него.
	TemplateID *uuid.UUID `json:"template_id,omitempty"`

	// Result — success, failure или simulated.
	Result MessageResult `json:"result"`

	// Error — текст ошибки драйвера для failure.
	Error string `json:"error,omitempty"`
}

// Template — именованный шаблон сообщения.
//
// Body рендерится через text/template с контактом в качестве данных:
// {{ .Name }}, {{ .JID }}, {{ default "друг" .Name }}.
type Template struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
