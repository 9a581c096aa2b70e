package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bulk — массовая рассылка: группа send task'ов с одним текстом.
//
// Bulk создаётся API, task'и раздаются по аккаунтам согласно Mode.
// Orchestrator переводит bulk в DONE/FAILED, когда все task'и завершены.
type Bulk struct {
	// ID — уникальный идентификатор bulk.
	ID uuid.UUID `json:"id"`

	// Mode — per_account или round_robin.
	Mode BulkMode `json:"mode"`

	// Message — текст сообщения (или шаблон при TemplateID).
	Message string `json:"message,omitempty"`

	// TemplateID — шаблон сообщения (опционально).
	TemplateID *uuid.UUID `json:"template_id,omitempty"`

	// Status — текущий статус.
	Status BulkStatus `json:"status"`

	// Total — количество созданных task'ов.
	Total int `json:"total"`

	// Error — причина FAILED.
	Error string `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewBulk создаёт bulk в статусе PENDING.
func NewBulk(mode BulkMode, message string, templateID *uuid.UUID) *Bulk {
	return &Bulk{
		ID:         uuid.New(),
		Mode:       mode,
		Message:    message,
		TemplateID: templateID,
		Status:     BulkStatusPending,
		CreatedAt:  time.Now(),
	}
}

// MarkRunning переводит bulk в RUNNING.
func (b *Bulk) MarkRunning() {
	now := time.Now()
	b.Status = BulkStatusRunning
	b.StartedAt = &now
}

// Finalize завершает bulk по сводке его task'ов.
// DONE, если была хотя бы одна успешная отправка, иначе FAILED.
func (b *Bulk) Finalize(summary BulkSummary) {
	now := time.Now()
	b.FinishedAt = &now
	if summary.Succeeded > 0 {
		b.Status = BulkStatusDone
		b.Error = ""
		return
	}
	b.Status = BulkStatusFailed
	b.Error = "no successful sends"
}

// BulkSummary — сводка по task'ам bulk.
type BulkSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Rejected  int `json:"rejected"`
	Aborted   int `json:"aborted"`
}

// Summarize считает сводку по списку task'ов.
func Summarize(tasks []SendTask) BulkSummary {
	s := BulkSummary{Total: len(tasks)}
	for i := range tasks {
		t := &tasks[i]
		switch {
		case !t.IsFinished():
			s.Pending++
		case t.Succeeded():
			s.Succeeded++
		case t.State == TaskStateCompleted:
			s.Failed++
		case t.State == TaskStateRejected:
			s.Rejected++
		default:
			s.Aborted++
		}
	}
	return s
}

// IsComplete возвращает true, если незавершённых task'ов не осталось.
func (s BulkSummary) IsComplete() bool {
	return s.Pending == 0
}
