package domain

// AccountStatus — статус здоровья аккаунта.
//
// Жизненный цикл:
//
//	enabled → disabled (auto-disable после FailureCap неудач подряд или вручную)
//	enabled → error    (профиль не открывается: нужен повторный логин)
//	disabled/error → enabled (только вручную, через API/CLI)
type AccountStatus string

const (
	// AccountStatusEnabled — аккаунт может отправлять сообщения.
	AccountStatusEnabled AccountStatus = "enabled"

	// AccountStatusDisabled — аккаунт выключен (вручную или автоматически).
	AccountStatusDisabled AccountStatus = "disabled"

	// AccountStatusError — профиль помечен неисправным (выставляется извне, scheduler его только читает).
	AccountStatusError AccountStatus = "error"
)

// ParseAccountStatus парсит строку в AccountStatus.
func ParseAccountStatus(s string) AccountStatus {
	switch s {
	case "enabled":
		return AccountStatusEnabled
	case "error":
		return AccountStatusError
	default:
		return AccountStatusDisabled
	}
}

// ContactStatus — статус контакта.
//
//	new → contacted (ровно один раз, при отправке)
//	new → invalid   (вручную)
type ContactStatus string

const (
	// ContactStatusNew — контакт ещё не получал сообщений.
	ContactStatusNew ContactStatus = "new"

	// ContactStatusContacted — контакту уже отправлялось сообщение (успешно или нет).
	ContactStatusContacted ContactStatus = "contacted"

	// ContactStatusInvalid — контакт исключён из рассылки.
	ContactStatusInvalid ContactStatus = "invalid"
)

// ParseContactStatus парсит строку в ContactStatus.
func ParseContactStatus(s string) ContactStatus {
	switch s {
	case "contacted":
		return ContactStatusContacted
	case "invalid":
		return ContactStatusInvalid
	default:
		return ContactStatusNew
	}
}

// MessageResult — результат попытки отправки.
type MessageResult string

const (
	MessageResultSuccess   MessageResult = "success"
	MessageResultFailure   MessageResult = "failure"
	MessageResultSimulated MessageResult = "simulated"
)

// IsSuccess возвращает true для success и simulated.
func (r MessageResult) IsSuccess() bool {
	return r == MessageResultSuccess || r == MessageResultSimulated
}

// TaskState — состояние send task.
//
// Жизненный цикл:
//
//	PENDING → LEASED → ELIGIBLE → DISPATCHED → COMPLETED (success | failure)
//	   ↘ ABORTED (lease busy, отмена)
//	            ↘ REJECTED (квота, аккаунт выключен, нет контактов)
type TaskState string

const (
	// TaskStatePending — task создан, ждёт воркера.
	TaskStatePending TaskState = "PENDING"

	// TaskStateLeased — воркер получил lease на аккаунт.
	TaskStateLeased TaskState = "LEASED"

	// TaskStateEligible — квота и здоровье аккаунта проверены.
	TaskStateEligible TaskState = "ELIGIBLE"

	// TaskStateDispatched — сообщение передано драйверу. Отмена больше невозможна.
	TaskStateDispatched TaskState = "DISPATCHED"

	// TaskStateCompleted — драйвер вернул результат (успех или ошибка).
	TaskStateCompleted TaskState = "COMPLETED"

	// TaskStateRejected — отказ до отправки (квота, аккаунт выключен, нет контактов).
	TaskStateRejected TaskState = "REJECTED"

	// TaskStateAborted — lease занят, task отменён или аккаунт не найден.
	TaskStateAborted TaskState = "ABORTED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateRejected, TaskStateAborted:
		return true
	default:
		return false
	}
}

// ParseTaskState парсит строку в TaskState.
func ParseTaskState(s string) TaskState {
	switch s {
	case "LEASED":
		return TaskStateLeased
	case "ELIGIBLE":
		return TaskStateEligible
	case "DISPATCHED":
		return TaskStateDispatched
	case "COMPLETED":
		return TaskStateCompleted
	case "REJECTED":
		return TaskStateRejected
	case "ABORTED":
		return TaskStateAborted
	default:
		return TaskStatePending
	}
}

// Reason — машиночитаемый код исхода task.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonSent               Reason = "SENT"
	ReasonSimulated          Reason = "SIMULATED"
	ReasonSendError          Reason = "SEND_ERROR"
	ReasonSessionError       Reason = "SESSION_ERROR"
	ReasonLeaseBusy          Reason = "LEASE_BUSY"
	ReasonCancelled          Reason = "CANCELLED"
	ReasonAccountDisabled    Reason = "ACCOUNT_DISABLED"
	ReasonQuotaExceeded      Reason = "QUOTA_EXCEEDED"
	ReasonNoAvailableContact Reason = "NO_AVAILABLE_CONTACT"
	ReasonAccountNotFound    Reason = "ACCOUNT_NOT_FOUND"
	ReasonPersistenceError   Reason = "PERSISTENCE_ERROR"
	ReasonInvalidMessage     Reason = "INVALID_MESSAGE"
)

// String возвращает строковое представление Reason.
func (r Reason) String() string {
	return string(r)
}

// BulkStatus — статус массовой рассылки.
//
//	PENDING → RUNNING → DONE (хотя бы одна успешная отправка)
//	                  ↘ FAILED
type BulkStatus string

const (
	BulkStatusPending BulkStatus = "PENDING"
	BulkStatusRunning BulkStatus = "RUNNING"
	BulkStatusDone    BulkStatus = "DONE"
	BulkStatusFailed  BulkStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s BulkStatus) IsTerminal() bool {
	return s == BulkStatusDone || s == BulkStatusFailed
}

// ParseBulkStatus парсит строку в BulkStatus.
func ParseBulkStatus(s string) BulkStatus {
	switch s {
	case "RUNNING":
		return BulkStatusRunning
	case "DONE":
		return BulkStatusDone
	case "FAILED":
		return BulkStatusFailed
	default:
		return BulkStatusPending
	}
}

// BulkMode — способ распределения bulk-рассылки по аккаунтам.
type BulkMode string

const (
	// BulkModePerAccount — по одному task на каждый выбранный аккаунт.
	BulkModePerAccount BulkMode = "per_account"

	// BulkModeRoundRobin — Count task'ов по кругу по включённым аккаунтам.
	BulkModeRoundRobin BulkMode = "round_robin"
)
