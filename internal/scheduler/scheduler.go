package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/driver"
	"github.com/shaiso/Courier/internal/lease"
	"github.com/shaiso/Courier/internal/quota"
	"github.com/shaiso/Courier/internal/render"
	"github.com/shaiso/Courier/internal/repo"
	"github.com/shaiso/Courier/internal/selector"
	"github.com/shaiso/Courier/internal/telemetry"
)

// ErrNotPending — Run вызван для task, который уже обрабатывался.
var ErrNotPending = errors.New("task is not pending")

// errStopped — task отменили между шагами, выполнение прекращено.
var errStopped = errors.New("task stopped")

// PoolPolicy — откуда берётся пул контактов для выбора получателя.
type PoolPolicy string

const (
	// PoolSession — контакты, найденные в сессии аккаунта (и сохранённые в хранилище).
	PoolSession PoolPolicy = "session"

	// PoolStore — все контакты хранилища в статусе new.
	PoolStore PoolPolicy = "store"
)

// ParsePoolPolicy парсит политику пула. Неизвестные значения дают PoolSession.
func ParsePoolPolicy(s string) PoolPolicy {
	if PoolPolicy(s) == PoolStore {
		return PoolStore
	}
	return PoolSession
}

// AccountStore — атомарное обновление аккаунта.
type AccountStore interface {
	UpdateAccount(ctx context.Context, id string, fn func(acc *domain.Account) error) (*domain.Account, error)
}

// ContactStore — контакты.
type ContactStore interface {
	UpsertBatch(ctx context.Context, contacts []domain.Contact) (int, error)
	ListByJIDs(ctx context.Context, jids []string) ([]domain.Contact, error)
	ListAvailable(ctx context.Context, limit int) ([]domain.Contact, error)
	MarkContacted(ctx context.Context, id string, at time.Time) (bool, error)
}

// MessageLog — журнал отправок.
type MessageLog interface {
	Append(ctx context.Context, entry *domain.MessageLogEntry) (bool, error)
}

// TemplateStore — шаблоны сообщений.
type TemplateStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error)
}

// TaskStore — хранилище send task'ов.
type TaskStore interface {
	Create(ctx context.Context, task *domain.SendTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SendTask, error)
	Transition(ctx context.Context, task *domain.SendTask, from ...domain.TaskState) error
}

// Scheduler — исполнитель send task'ов.
//
// Один вызов Run проводит task через весь жизненный цикл:
//
//	PENDING → LEASED → ELIGIBLE → DISPATCHED → COMPLETED
//	        ↘ ABORTED  ↘ REJECTED
//
// Run безопасно вызывать параллельно: взаимное исключение по аккаунту
// обеспечивает lease.Manager, а выбранный получатель резервируется
// до фиксации результата, чтобы task'и разных аккаунтов не писали
// одному контакту.
type Scheduler struct {
	accounts       AccountStore
	contacts       ContactStore
	messages       MessageLog
	templates      TemplateStore
	tasks          TaskStore
	leases         *lease.Manager
	policy         quota.Policy
	driver         driver.Driver
	simulate       bool
	pool           PoolPolicy
	discoveryLimit int
	now            func() time.Time
	logger         *slog.Logger

	mu       sync.Mutex
	reserved map[string]struct{}
}

// Config — конфигурация Scheduler.
type Config struct {
	Accounts  AccountStore
	Contacts  ContactStore
	Messages  MessageLog
	Templates TemplateStore // опционально, нужен для task'ов с шаблоном
	Tasks     TaskStore     // опционально, без него состояния не сохраняются
	Leases    *lease.Manager
	Policy    quota.Policy
	Driver    driver.Driver

	// Simulate — отправка без сетевого эффекта, результат simulated.
	Simulate bool

	// Pool — политика пула контактов (default: session).
	Pool PoolPolicy

	// DiscoveryLimit — сколько контактов читать из сессии (default: 500).
	DiscoveryLimit int

	Now    func() time.Time
	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	limit := cfg.DiscoveryLimit
	if limit <= 0 {
		limit = 500
	}

	pool := cfg.Pool
	if pool == "" {
		pool = PoolSession
	}

	drv := cfg.Driver
	if cfg.Simulate {
		drv = driver.NewDryRun(drv, logger)
	}

	return &Scheduler{
		accounts:       cfg.Accounts,
		contacts:       cfg.Contacts,
		messages:       cfg.Messages,
		templates:      cfg.Templates,
		tasks:          cfg.Tasks,
		leases:         cfg.Leases,
		policy:         cfg.Policy,
		driver:         drv,
		simulate:       cfg.Simulate,
		pool:           pool,
		discoveryLimit: limit,
		now:            now,
		logger:         logger,
		reserved:       make(map[string]struct{}),
	}
}

// Send создаёт task для аккаунта и сразу исполняет его.
func (s *Scheduler) Send(ctx context.Context, accountID, message string, templateID *uuid.UUID) (*domain.SendTask, error) {
	task := domain.NewSendTask(accountID, message, templateID)
	task.CreatedAt = s.now()

	if s.tasks != nil {
		if err := s.tasks.Create(ctx, task); err != nil {
			return nil, fmt.Errorf("create task: %w", err)
		}
	}

	err := s.Run(ctx, task)
	return task, err
}

// Run исполняет task.
//
// Task всегда заканчивается в финальном состоянии с кодом Reason.
// Ошибка возвращается только для фатальных случаев (аккаунт не найден,
// сбой хранилища); обычные отказы (LEASE_BUSY, QUOTA_EXCEEDED, ...)
// и неудачные отправки ошибкой не являются.
//
// После передачи драйверу отмена ctx больше не прерывает task:
// результат отправки всегда фиксируется.
func (s *Scheduler) Run(ctx context.Context, task *domain.SendTask) error {
	if task.State != domain.TaskStatePending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, task.ID, task.State)
	}

	logger := telemetry.WithAccountID(telemetry.WithTaskID(s.logger, task.ID.String()), task.AccountID)
	if task.BulkID != nil {
		logger = telemetry.WithBulkID(logger, task.BulkID.String())
	}
	ctx = telemetry.WithLogger(ctx, logger)

	defer func() {
		if task.IsFinished() {
			telemetry.TaskOutcomes.WithLabelValues(string(task.State), task.Reason.String()).Inc()
		}
	}()

	err := s.run(ctx, task)
	if errors.Is(err, errStopped) {
		logger.Info("task cancelled concurrently", "state", task.State)
		return nil
	}
	return err
}

func (s *Scheduler) run(ctx context.Context, task *domain.SendTask) error {
	logger := telemetry.FromContext(ctx)

	if ctx.Err() != nil {
		return s.abort(ctx, task, domain.ReasonCancelled, "cancelled before lease", nil)
	}

	// 1. Lease
	l, err := s.leases.Acquire(ctx, task.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, lease.ErrLeaseBusy):
			logger.Info("account busy, task aborted")
			return s.abort(ctx, task, domain.ReasonLeaseBusy, "account is leased by another task", nil)
		case errors.Is(err, lease.ErrAccountNotFound):
			return s.abort(ctx, task, domain.ReasonAccountNotFound, err.Error(), err)
		case ctx.Err() != nil:
			return s.abort(ctx, task, domain.ReasonCancelled, "cancelled while leasing", nil)
		default:
			return s.abort(ctx, task, domain.ReasonPersistenceError, err.Error(), err)
		}
	}

	release := sync.OnceValue(func() error {
		return s.leases.Release(context.WithoutCancel(ctx), l)
	})
	defer func() {
		if err := release(); err != nil {
			logger.Error("failed to release lease", "error", err)
		}
	}()

	task.MarkLeased(s.now())
	if err := s.advance(ctx, task, domain.TaskStatePending); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return s.abort(ctx, task, domain.ReasonCancelled, "cancelled after lease", nil)
	}

	// 2. Квота и здоровье
	if err := s.policy.CheckEligible(&l.Account, s.now()); err != nil {
		reason := domain.ReasonQuotaExceeded
		if errors.Is(err, quota.ErrAccountDisabled) {
			reason = domain.ReasonAccountDisabled
		}
		logger.Info("task rejected", "reason", reason, "detail", err.Error())
		return s.reject(ctx, task, reason, err.Error())
	}

	task.MarkEligible()
	if err := s.advance(ctx, task, domain.TaskStateLeased); err != nil {
		return err
	}

	// 3. Сессия профиля
	session, err := s.driver.OpenSession(ctx, l.Account.ProfilePath)
	if err != nil {
		if ctx.Err() != nil {
			return s.abort(ctx, task, domain.ReasonCancelled, "cancelled while opening session", nil)
		}
		return s.sessionFailed(ctx, task, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
	}()

	// 4. Выбор получателя
	pool, err := s.buildPool(ctx, task, session)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return s.abort(ctx, task, domain.ReasonCancelled, "cancelled during contact discovery", nil)
		case errors.Is(err, driver.ErrSession):
			return s.sessionFailed(ctx, task, err)
		default:
			return s.abort(ctx, task, domain.ReasonPersistenceError, err.Error(), err)
		}
	}

	poolSize := len(pool)
	contact, unreserve, err := s.reserveTarget(pool)
	if err != nil {
		logger.Info("task rejected", "reason", domain.ReasonNoAvailableContact, "pool", poolSize)
		return s.reject(ctx, task, domain.ReasonNoAvailableContact, err.Error())
	}
	defer unreserve()

	body, err := s.message(ctx, task, contact)
	if err != nil {
		if errors.Is(err, errInvalidMessage) {
			logger.Info("task rejected", "reason", domain.ReasonInvalidMessage, "detail", err.Error())
			return s.reject(ctx, task, domain.ReasonInvalidMessage, err.Error())
		}
		return s.abort(ctx, task, domain.ReasonPersistenceError, err.Error(), err)
	}

	// Последняя точка, где task ещё можно прервать.
	if ctx.Err() != nil {
		return s.abort(ctx, task, domain.ReasonCancelled, "cancelled before dispatch", nil)
	}

	task.MarkDispatched(contact, s.now())
	if err := s.advance(ctx, task, domain.TaskStateEligible); err != nil {
		return err
	}

	// 5. Отправка. Дальше ctx не прерывает task.
	dctx := context.WithoutCancel(ctx)
	result, sendErr := s.dispatch(dctx, session, contact, body)

	// 6. Фиксация результата: контакт, журнал, счётчики, lease.
	commitErr := s.commit(dctx, task, l, contact, body, result, sendErr, release)

	reason, detail := domain.ReasonSent, "message sent to "+contactLabel(contact)
	switch result {
	case domain.MessageResultSimulated:
		reason, detail = domain.ReasonSimulated, "simulated send to "+contactLabel(contact)
	case domain.MessageResultFailure:
		reason, detail = domain.ReasonSendError, sendErr.Error()
		logger.Warn("send failed", "contact_id", contact.ID, "error", sendErr)
	}

	task.Complete(result, reason, detail, s.now())
	if err := s.save(dctx, task, domain.TaskStateDispatched); err != nil {
		commitErr = errors.Join(commitErr, fmt.Errorf("save task: %w", err))
	}

	if commitErr != nil {
		logger.Error("failed to commit send outcome", "error", commitErr)
		return commitErr
	}

	logger.Info("task completed", "result", result, "contact_id", contact.ID)
	return nil
}

// reserveTarget выбирает получателя среди контактов, не занятых другими
// task'ами, и резервирует его. Возвращённая функция снимает резерв;
// её вызывают после фиксации результата.
func (s *Scheduler) reserveTarget(pool []domain.Contact) (*domain.Contact, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool = slices.DeleteFunc(pool, func(c domain.Contact) bool {
		_, taken := s.reserved[c.ID]
		return taken
	})
	contact, err := selector.SelectTarget(pool)
	if err != nil {
		return nil, nil, err
	}

	id := contact.ID
	s.reserved[id] = struct{}{}
	return contact, func() {
		s.mu.Lock()
		delete(s.reserved, id)
		s.mu.Unlock()
	}, nil
}

// dispatch вызывает драйвер и классифицирует результат.
func (s *Scheduler) dispatch(ctx context.Context, session driver.Session, contact *domain.Contact, body string) (domain.MessageResult, error) {
	start := time.Now()
	err := session.SendMessage(ctx, contact.JID, body)

	result := domain.MessageResultSuccess
	switch {
	case err != nil:
		result = domain.MessageResultFailure
	case s.simulate:
		result = domain.MessageResultSimulated
	}

	telemetry.DispatchDuration.WithLabelValues(string(result)).Observe(time.Since(start).Seconds())
	return result, err
}

// commit выполняет четыре шага после отправки строго по порядку.
// Каждый шаг идемпотентен; ошибка одного шага не отменяет следующие.
func (s *Scheduler) commit(
	ctx context.Context,
	task *domain.SendTask,
	l *lease.Lease,
	contact *domain.Contact,
	body string,
	result domain.MessageResult,
	sendErr error,
	release func() error,
) error {
	logger := telemetry.FromContext(ctx)
	now := s.now()
	var errs []error

	if _, err := s.contacts.MarkContacted(ctx, contact.ID, now); err != nil {
		errs = append(errs, fmt.Errorf("mark contacted: %w", err))
	}

	entry := &domain.MessageLogEntry{
		TaskID:     task.ID,
		AccountID:  task.AccountID,
		ContactID:  contact.ID,
		ContactJID: contact.JID,
		SentAt:     now,
		Message:    body,
		TemplateID: task.TemplateID,
		Result:     result,
	}
	if sendErr != nil {
		entry.Error = sendErr.Error()
	}
	if _, err := s.messages.Append(ctx, entry); err != nil {
		errs = append(errs, fmt.Errorf("append message log: %w", err))
	}

	if err := s.recordOutcome(ctx, task, quota.Outcome{
		TaskID: task.ID,
		Result: result,
		Error:  entry.Error,
	}); err != nil {
		errs = append(errs, err)
	}

	if err := release(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		logger.Error("send outcome partially committed", "lease_token", l.Token, "errors", len(errs))
	}
	return errors.Join(errs...)
}

// recordOutcome применяет результат к счётчикам аккаунта.
func (s *Scheduler) recordOutcome(ctx context.Context, task *domain.SendTask, o quota.Outcome) error {
	var effect quota.Effect
	_, err := s.accounts.UpdateAccount(ctx, task.AccountID, func(acc *domain.Account) error {
		effect = s.policy.RecordOutcome(acc, o, s.now())
		return nil
	})
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}

	if effect.Disabled {
		telemetry.AccountsAutoDisabled.Inc()
		telemetry.FromContext(ctx).Warn("account auto-disabled after consecutive failures",
			"failure_cap", s.policy.FailureCap,
		)
	}
	return nil
}

// sessionFailed завершает task, если профиль не открылся.
// Получатель не выбран: контакт не тратится, журнал не пишется.
// До отправки дело не дошло, поэтому счётчики здоровья аккаунта не меняются.
func (s *Scheduler) sessionFailed(ctx context.Context, task *domain.SendTask, cause error) error {
	telemetry.FromContext(ctx).Warn("session failed", "error", cause)

	from := task.State
	task.Complete(domain.MessageResultFailure, domain.ReasonSessionError, cause.Error(), s.now())
	return s.finish(context.WithoutCancel(ctx), task, from, nil)
}

// buildPool собирает пул кандидатов согласно политике.
func (s *Scheduler) buildPool(ctx context.Context, task *domain.SendTask, session driver.Session) ([]domain.Contact, error) {
	if s.pool == PoolStore {
		pool, err := s.contacts.ListAvailable(ctx, s.discoveryLimit)
		if err != nil {
			return nil, fmt.Errorf("list available contacts: %w", err)
		}
		return pool, nil
	}

	logger := telemetry.FromContext(ctx)
	seen := make(map[string]bool)
	var found []domain.Contact
	var jids []string
	var discoverErr error

	for cand, err := range session.ListAvailableContacts(ctx) {
		if err != nil {
			discoverErr = err
			break
		}
		if cand.JID == "" || seen[cand.JID] {
			continue
		}
		seen[cand.JID] = true

		c := domain.NewContact(cand.JID, cand.Name)
		c.CreatedAt = s.now()
		c.Metadata = map[string]any{"source": "session", "account_id": task.AccountID}
		found = append(found, *c)
		jids = append(jids, c.JID)

		if len(found) >= s.discoveryLimit {
			break
		}
	}

	if discoverErr != nil {
		if ctx.Err() != nil || len(found) == 0 {
			return nil, discoverErr
		}
		logger.Warn("contact discovery interrupted, using partial list", "found", len(found), "error", discoverErr)
	}

	if len(found) == 0 {
		return nil, nil
	}

	inserted, err := s.contacts.UpsertBatch(ctx, found)
	if err != nil {
		return nil, fmt.Errorf("upsert discovered contacts: %w", err)
	}
	logger.Debug("contacts discovered", "found", len(found), "new", inserted)

	pool, err := s.contacts.ListByJIDs(ctx, jids)
	if err != nil {
		return nil, fmt.Errorf("load discovered contacts: %w", err)
	}
	return pool, nil
}

var errInvalidMessage = errors.New("invalid message")

// message возвращает текст для получателя: тело шаблона или текст task,
// отрендеренный с данными контакта.
func (s *Scheduler) message(ctx context.Context, task *domain.SendTask, contact *domain.Contact) (string, error) {
	text := task.Message

	if task.TemplateID != nil {
		if s.templates == nil {
			return "", fmt.Errorf("%w: templates are not configured", errInvalidMessage)
		}
		tmpl, err := s.templates.GetByID(ctx, *task.TemplateID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", fmt.Errorf("%w: template %s not found", errInvalidMessage, task.TemplateID)
			}
			return "", fmt.Errorf("get template: %w", err)
		}
		text = tmpl.Body
	}

	body, err := render.Message(text, contact, task.AccountID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidMessage, err)
	}
	return body, nil
}

// abort завершает task в ABORTED.
func (s *Scheduler) abort(ctx context.Context, task *domain.SendTask, reason domain.Reason, detail string, cause error) error {
	from := task.State
	task.Abort(reason, detail, s.now())
	return s.finish(ctx, task, from, cause)
}

// reject завершает task в REJECTED.
func (s *Scheduler) reject(ctx context.Context, task *domain.SendTask, reason domain.Reason, detail string) error {
	from := task.State
	task.Reject(reason, detail, s.now())
	return s.finish(ctx, task, from, nil)
}

// finish сохраняет финальное состояние. Если task успели отменить,
// сохранённое состояние побеждает.
func (s *Scheduler) finish(ctx context.Context, task *domain.SendTask, from domain.TaskState, cause error) error {
	err := s.save(ctx, task, from)
	switch {
	case err == nil:
		return cause
	case errors.Is(err, repo.ErrInvalidState):
		s.reload(ctx, task)
		return cause
	default:
		return errors.Join(cause, fmt.Errorf("save task: %w", err))
	}
}

// advance сохраняет промежуточный переход из from.
// Если task отменили, возвращает errStopped.
func (s *Scheduler) advance(ctx context.Context, task *domain.SendTask, from domain.TaskState) error {
	err := s.save(ctx, task, from)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrInvalidState):
		s.reload(ctx, task)
		return errStopped
	default:
		cause := fmt.Errorf("save task: %w", err)
		task.Abort(domain.ReasonPersistenceError, cause.Error(), s.now())
		return cause
	}
}

func (s *Scheduler) save(ctx context.Context, task *domain.SendTask, from domain.TaskState) error {
	if s.tasks == nil {
		return nil
	}
	return s.tasks.Transition(context.WithoutCancel(ctx), task, from)
}

// reload перечитывает task из хранилища после конфликта перехода.
func (s *Scheduler) reload(ctx context.Context, task *domain.SendTask) {
	stored, err := s.tasks.GetByID(context.WithoutCancel(ctx), task.ID)
	if err != nil {
		telemetry.FromContext(ctx).Error("failed to reload task", "error", err)
		task.Abort(domain.ReasonCancelled, "cancelled concurrently", s.now())
		return
	}
	*task = *stored
}

func contactLabel(c *domain.Contact) string {
	if c.Name != "" {
		return fmt.Sprintf("%s (%s)", c.Name, c.JID)
	}
	return c.JID
}
