package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/orchestrator"
	"github.com/shaiso/Courier/internal/quota"
)

// Account DTOs

// CreateAccountRequest — запрос на регистрацию аккаунта.
type CreateAccountRequest struct {
	AccountID   string `json:"account_id"`
	ProfilePath string `json:"profile_path"`
	Phone       string `json:"phone,omitempty"`
	DailyLimit  *int   `json:"daily_limit,omitempty"`
}

// UpdateAccountRequest — запрос на изменение аккаунта.
type UpdateAccountRequest struct {
	ProfilePath *string `json:"profile_path,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	DailyLimit  *int    `json:"daily_limit,omitempty"`
}

// AccountResponse — ответ с аккаунтом.
type AccountResponse struct {
	ID                  string               `json:"account_id"`
	ProfilePath         string               `json:"profile_path"`
	Phone               string               `json:"phone,omitempty"`
	Enabled             bool                 `json:"enabled"`
	Status              domain.AccountStatus `json:"status"`
	DailyLimit          int                  `json:"daily_limit"`
	TodaySent           int                  `json:"today_sent"`
	RemainingToday      int                  `json:"remaining_today"`
	LastUsedTime        *time.Time           `json:"last_used_time,omitempty"`
	LastError           string               `json:"last_error,omitempty"`
	ConsecutiveFailures int                  `json:"consecutive_failures"`
	InUse               bool                 `json:"in_use"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// AccountFromDomain конвертирует domain.Account в AccountResponse.
// Счётчик за день считается с учётом смены дня.
func AccountFromDomain(a domain.Account, policy quota.Policy, now time.Time) AccountResponse {
	return AccountResponse{
		ID:                  a.ID,
		ProfilePath:         a.ProfilePath,
		Phone:               a.Phone,
		Enabled:             a.Enabled,
		Status:              a.Status,
		DailyLimit:          a.DailyLimit,
		TodaySent:           policy.EffectiveSent(&a, now),
		RemainingToday:      policy.Remaining(&a, now),
		LastUsedTime:        a.LastUsedTime,
		LastError:           a.LastError,
		ConsecutiveFailures: a.ConsecutiveFailures,
		InUse:               a.InUse,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

// Send DTOs

// SendRequest — запрос на отправку сообщения от аккаунта.
type SendRequest struct {
	Message    string     `json:"message,omitempty"`
	TemplateID *uuid.UUID `json:"template_id,omitempty"`
}

// TaskResponse — ответ с send task.
type TaskResponse struct {
	ID           uuid.UUID            `json:"task_id"`
	AccountID    string               `json:"account_id"`
	Message      string               `json:"message,omitempty"`
	TemplateID   *uuid.UUID           `json:"template_id,omitempty"`
	BulkID       *uuid.UUID           `json:"bulk_id,omitempty"`
	State        domain.TaskState     `json:"state"`
	Finished     bool                 `json:"finished"`
	Success      bool                 `json:"success"`
	Result       domain.MessageResult `json:"result,omitempty"`
	Reason       domain.Reason        `json:"reason,omitempty"`
	Detail       string               `json:"detail,omitempty"`
	ContactID    string               `json:"contact_id,omitempty"`
	ContactJID   string               `json:"contact_jid,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	DispatchedAt *time.Time           `json:"dispatched_at,omitempty"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
}

// TaskFromDomain конвертирует domain.SendTask в TaskResponse.
func TaskFromDomain(t domain.SendTask) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		AccountID:    t.AccountID,
		Message:      t.Message,
		TemplateID:   t.TemplateID,
		BulkID:       t.BulkID,
		State:        t.State,
		Finished:     t.IsFinished(),
		Success:      t.Succeeded(),
		Result:       t.Result,
		Reason:       t.Reason,
		Detail:       t.Detail,
		ContactID:    t.ContactID,
		ContactJID:   t.ContactJID,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		DispatchedAt: t.DispatchedAt,
		FinishedAt:   t.FinishedAt,
	}
}

// Bulk DTOs

// CreateBulkRequest — запрос на bulk-рассылку.
type CreateBulkRequest struct {
	Message    string          `json:"message,omitempty"`
	TemplateID *uuid.UUID      `json:"template_id,omitempty"`
	AccountIDs []string        `json:"account_ids,omitempty"`
	Mode       domain.BulkMode `json:"mode,omitempty"`
	Count      int             `json:"count,omitempty"`
}

// BulkResponse — ответ с bulk.
type BulkResponse struct {
	domain.Bulk
	Summary *domain.BulkSummary `json:"summary,omitempty"`
	TaskIDs []uuid.UUID         `json:"task_ids,omitempty"`
}

// BulkFromProgress конвертирует orchestrator.BulkProgress в BulkResponse.
func BulkFromProgress(p *orchestrator.BulkProgress) BulkResponse {
	summary := p.Summary
	return BulkResponse{Bulk: p.Bulk, Summary: &summary}
}

// Contact DTOs

// ContactInput — контакт для импорта.
type ContactInput struct {
	JID      string         `json:"jid,omitempty"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ImportContactsRequest — запрос на импорт контактов.
type ImportContactsRequest struct {
	Contacts []ContactInput `json:"contacts"`
}

// ImportContactsResponse — итог импорта.
type ImportContactsResponse struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Template DTOs

// CreateTemplateRequest — запрос на создание шаблона.
type CreateTemplateRequest struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// PreviewTemplateRequest — данные для предпросмотра шаблона.
type PreviewTemplateRequest struct {
	AccountID string       `json:"account_id,omitempty"`
	Contact   ContactInput `json:"contact"`
}

// PreviewTemplateResponse — отрендеренный текст.
type PreviewTemplateResponse struct {
	Message string `json:"message"`
}
