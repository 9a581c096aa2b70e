package domain

import (
	"time"

	"github.com/google/uuid"
)

// DayLayout — формат календарного дня для QuotaDay.
const DayLayout = "2006-01-02"

// Account — аккаунт мессенджера, привязанный к профилю браузера.
//
// Один профиль не может управляться двумя сессиями одновременно,
// поэтому любые отправки идут только под lease (см. пакет lease).
//
// Поля InUse, LeaseToken и (пока аккаунт занят) LastUsedTime
// пишет только lease.Manager.
type Account struct {
	// ID — уникальный идентификатор аккаунта.
	ID string `json:"account_id"`

	// ProfilePath — путь к сохранённому профилю браузера.
	ProfilePath string `json:"profile_path"`

	// Phone — номер телефона (опционально).
	Phone string `json:"phone,omitempty"`

	// Enabled — ручной флаг включения.
	Enabled bool `json:"enabled"`

	// Status — статус здоровья аккаунта.
	Status AccountStatus `json:"status"`

	// DailyLimit — сколько успешных отправок разрешено за календарный день.
	DailyLimit int `json:"daily_limit"`

	// TodaySent — успешные отправки за день QuotaDay.
	// Если QuotaDay не совпадает с текущим днём, счётчик считается нулевым.
	TodaySent int `json:"today_sent"`

	// QuotaDay — день (YYYY-MM-DD), к которому относится TodaySent.
	QuotaDay string `json:"quota_day,omitempty"`

	// LastUsedTime — время последнего использования.
	// Пока InUse=true, это время взятия lease.
	LastUsedTime *time.Time `json:"last_used_time,omitempty"`

	// LastError — последняя ошибка (или пометка о reclaim lease).
	LastError string `json:"last_error,omitempty"`

	// ConsecutiveFailures — неудачные отправки подряд.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// InUse — аккаунт занят send task'ом.
	InUse bool `json:"in_use"`

	// LeaseToken — токен текущего lease. Nil, если аккаунт свободен.
	LeaseToken *uuid.UUID `json:"-"`

	// LastOutcomeTaskID — task, чей результат последним учтён в счётчиках.
	// Нужен, чтобы повторная запись того же результата была no-op.
	LastOutcomeTaskID *uuid.UUID `json:"-"`

	// CreatedAt — время регистрации аккаунта.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount создаёт включённый аккаунт.
func NewAccount(id, profilePath, phone string, dailyLimit int) *Account {
	now := time.Now()
	return &Account{
		ID:          id,
		ProfilePath: profilePath,
		Phone:       phone,
		Enabled:     true,
		Status:      AccountStatusEnabled,
		DailyLimit:  dailyLimit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsActive возвращает true, если аккаунт включён и здоров.
func (a *Account) IsActive() bool {
	return a.Enabled && a.Status == AccountStatusEnabled
}

// LeaseStartedAt возвращает время взятия lease или nil, если аккаунт свободен.
func (a *Account) LeaseStartedAt() *time.Time {
	if !a.InUse {
		return nil
	}
	return a.LastUsedTime
}

// Enable включает аккаунт и сбрасывает счётчик неудач.
func (a *Account) Enable() {
	a.Enabled = true
	a.Status = AccountStatusEnabled
	a.ConsecutiveFailures = 0
	a.LastError = ""
	a.UpdatedAt = time.Now()
}

// Disable выключает аккаунт вручную.
func (a *Account) Disable() {
	a.Enabled = false
	a.Status = AccountStatusDisabled
	a.UpdatedAt = time.Now()
}
