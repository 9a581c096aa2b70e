package domain

import (
	"time"

	"github.com/google/uuid"
)

// SendTask — одна единица работы "отправить сообщение от аккаунта X".
//
// Task создаётся API (одиночная отправка или часть bulk), исполняется
// воркером через scheduler.Scheduler и всегда заканчивается в одном из
// финальных состояний с кодом Reason и человекочитаемым Detail.
type SendTask struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// AccountID — аккаунт, от имени которого отправляется сообщение.
	AccountID string `json:"account_id"`

	// Message — текст сообщения (или шаблон, если задан TemplateID).
	Message string `json:"message,omitempty"`

	// TemplateID — шаблон сообщения (опционально).
	TemplateID *uuid.UUID `json:"template_id,omitempty"`

	// BulkID — bulk-рассылка, к которой относится task (опционально).
	BulkID *uuid.UUID `json:"bulk_id,omitempty"`

	// State — текущее состояние.
	State TaskState `json:"state"`

	// Reason — код исхода. Пустой, пока task не завершён.
	Reason Reason `json:"reason,omitempty"`

	// Detail — человекочитаемое описание исхода.
	Detail string `json:"detail,omitempty"`

	// Result — результат отправки, только для COMPLETED.
	Result MessageResult `json:"result,omitempty"`

	// ContactID и ContactJID — выбранный получатель (после выбора контакта).
	ContactID  string `json:"contact_id,omitempty"`
	ContactJID string `json:"contact_jid,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время взятия lease.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// DispatchedAt — время передачи драйверу.
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`

	// FinishedAt — время перехода в финальное состояние.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewSendTask создаёт task в состоянии PENDING.
func NewSendTask(accountID, message string, templateID *uuid.UUID) *SendTask {
	return &SendTask{
		ID:         uuid.New(),
		AccountID:  accountID,
		Message:    message,
		TemplateID: templateID,
		State:      TaskStatePending,
		CreatedAt:  time.Now(),
	}
}

// IsFinished возвращает true, если task в финальном состоянии.
func (t *SendTask) IsFinished() bool {
	return t.State.IsTerminal()
}

// CanCancel возвращает true, пока task не передан драйверу и не получил
// проверку квоты: отменять можно только PENDING и LEASED.
func (t *SendTask) CanCancel() bool {
	return t.State == TaskStatePending || t.State == TaskStateLeased
}

// Succeeded возвращает true, если task завершён успешной (или симулированной) отправкой.
func (t *SendTask) Succeeded() bool {
	return t.State == TaskStateCompleted && t.Result.IsSuccess()
}

// MarkLeased переводит task в LEASED.
func (t *SendTask) MarkLeased(now time.Time) {
	t.State = TaskStateLeased
	t.StartedAt = &now
}

// MarkEligible переводит task в ELIGIBLE.
func (t *SendTask) MarkEligible() {
	t.State = TaskStateEligible
}

// MarkDispatched фиксирует получателя и переводит task в DISPATCHED.
func (t *SendTask) MarkDispatched(contact *Contact, now time.Time) {
	t.State = TaskStateDispatched
	t.ContactID = contact.ID
	t.ContactJID = contact.JID
	t.DispatchedAt = &now
}

// Complete завершает task результатом драйвера.
func (t *SendTask) Complete(result MessageResult, reason Reason, detail string, now time.Time) {
	t.State = TaskStateCompleted
	t.Result = result
	t.finish(reason, detail, now)
}

// Reject завершает task отказом до отправки.
func (t *SendTask) Reject(reason Reason, detail string, now time.Time) {
	t.State = TaskStateRejected
	t.finish(reason, detail, now)
}

// Abort прерывает task (lease занят, отмена, фатальная ошибка).
func (t *SendTask) Abort(reason Reason, detail string, now time.Time) {
	t.State = TaskStateAborted
	t.finish(reason, detail, now)
}

func (t *SendTask) finish(reason Reason, detail string, now time.Time) {
	t.Reason = reason
	t.Detail = detail
	t.FinishedAt = &now
}
