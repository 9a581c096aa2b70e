package quota

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
)

// Ошибки проверки допуска.
var (
	// ErrAccountDisabled — аккаунт выключен или нездоров.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrQuotaExceeded — дневная квота исчерпана.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
)

// Default configuration values.
const (
	DefaultFailureCap = 3
	DefaultDailyLimit = 10
)

// Policy — параметры квот и здоровья аккаунтов.
type Policy struct {
	// FailureCap — после скольких неудач подряд аккаунт выключается.
	// 0 отключает auto-disable.
	FailureCap int

	// Location — часовой пояс, в котором считается календарный день.
	Location *time.Location
}

// DefaultPolicy возвращает политику по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		FailureCap: DefaultFailureCap,
		Location:   time.Local,
	}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Day возвращает календарный день момента now в часовом поясе политики.
func (p Policy) Day(now time.Time) string {
	return now.In(p.location()).Format(domain.DayLayout)
}

// EffectiveSent возвращает количество отправок за текущий день.
//
// Чистая функция от (QuotaDay, now): если сохранённый день не совпадает
// с текущим, счётчик считается нулевым. Сам сброс записывается вместе
// со следующей успешной отправкой.
func (p Policy) EffectiveSent(acc *domain.Account, now time.Time) int {
	if acc.QuotaDay != p.Day(now) {
		return 0
	}
	return acc.TodaySent
}

// Remaining возвращает, сколько отправок ещё доступно сегодня.
func (p Policy) Remaining(acc *domain.Account, now time.Time) int {
	return max(acc.DailyLimit-p.EffectiveSent(acc, now), 0)
}

// CheckEligible проверяет, может ли аккаунт отправить сообщение сейчас.
func (p Policy) CheckEligible(acc *domain.Account, now time.Time) error {
	if !acc.IsActive() {
		return fmt.Errorf("%w: status=%s enabled=%t", ErrAccountDisabled, acc.Status, acc.Enabled)
	}

	sent := p.EffectiveSent(acc, now)
	if sent >= acc.DailyLimit {
		return fmt.Errorf("%w: %d/%d sent on %s", ErrQuotaExceeded, sent, acc.DailyLimit, p.Day(now))
	}

	return nil
}

// Outcome — результат попытки отправки для учёта в счётчиках.
type Outcome struct {
	// TaskID — task, которому принадлежит результат. Повторная запись
	// с тем же TaskID ничего не меняет.
	TaskID uuid.UUID

	// Result — success, failure или simulated.
	Result domain.MessageResult

	// Error — текст ошибки для failure.
	Error string
}

// Effect — что изменилось в аккаунте после RecordOutcome.
type Effect struct {
	// Recorded — результат учтён (false для повторной записи).
	Recorded bool

	// Disabled — аккаунт выключен после этой неудачи.
	Disabled bool
}

// RecordOutcome применяет результат отправки к счётчикам аккаунта.
//
// Успех: today_sent+1 (кроме simulated), сброс consecutive_failures и last_error.
// Неудача: consecutive_failures+1, last_error; при достижении FailureCap
// аккаунт переходит в disabled.
//
// Поля lease (InUse, LeaseToken, время взятия lease) не трогает.
func (p Policy) RecordOutcome(acc *domain.Account, o Outcome, now time.Time) Effect {
	if o.TaskID != uuid.Nil && acc.LastOutcomeTaskID != nil && *acc.LastOutcomeTaskID == o.TaskID {
		return Effect{}
	}

	if o.TaskID != uuid.Nil {
		id := o.TaskID
		acc.LastOutcomeTaskID = &id
	}
	// Пока аккаунт под lease, LastUsedTime хранит время его взятия.
	if !acc.InUse {
		acc.LastUsedTime = &now
	}
	acc.UpdatedAt = now

	if o.Result.IsSuccess() {
		if o.Result == domain.MessageResultSuccess {
			today := p.Day(now)
			if acc.QuotaDay != today {
				acc.QuotaDay = today
				acc.TodaySent = 0
			}
			acc.TodaySent++
		}
		acc.ConsecutiveFailures = 0
		acc.LastError = ""
		return Effect{Recorded: true}
	}

	acc.ConsecutiveFailures++
	acc.LastError = o.Error

	effect := Effect{Recorded: true}
	if p.FailureCap > 0 && acc.ConsecutiveFailures >= p.FailureCap && acc.Status != domain.AccountStatusDisabled {
		acc.Status = domain.AccountStatusDisabled
		effect.Disabled = true
	}

	return effect
}
