package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/orchestrator"
	"github.com/shaiso/Courier/internal/quota"
	"github.com/shaiso/Courier/internal/repo"
)

const (
	defaultWaitTimeout = 3 * time.Minute
	defaultDailyLimit  = 10
)

// AccountStore — аккаунты.
type AccountStore interface {
	Create(ctx context.Context, acc *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	List(ctx context.Context, filter repo.AccountFilter) ([]domain.Account, error)
	UpdateAccount(ctx context.Context, id string, fn func(acc *domain.Account) error) (*domain.Account, error)
	Delete(ctx context.Context, id string) error
}

// ContactStore — контакты.
type ContactStore interface {
	UpsertBatch(ctx context.Context, contacts []domain.Contact) (int, error)
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
	List(ctx context.Context, filter repo.ContactFilter) ([]domain.Contact, error)
	MarkInvalid(ctx context.Context, id string) error
}

// TaskStore — send task'и.
type TaskStore interface {
	Create(ctx context.Context, task *domain.SendTask) error
	CreateBatch(ctx context.Context, tasks []*domain.SendTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SendTask, error)
	List(ctx context.Context, filter repo.TaskFilter) ([]domain.SendTask, error)
	ListByBulk(ctx context.Context, bulkID uuid.UUID) ([]domain.SendTask, error)
	Transition(ctx context.Context, task *domain.SendTask, from ...domain.TaskState) error
}

// BulkStore — bulk-рассылки.
type BulkStore interface {
	Create(ctx context.Context, b *domain.Bulk) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Bulk, error)
	List(ctx context.Context, limit int) ([]domain.Bulk, error)
	Update(ctx context.Context, b *domain.Bulk) error
}

// TemplateStore — шаблоны сообщений.
type TemplateStore interface {
	Create(ctx context.Context, t *domain.Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error)
	List(ctx context.Context) ([]domain.Template, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MessageStore — журнал отправок.
type MessageStore interface {
	List(ctx context.Context, filter repo.MessageFilter) ([]domain.MessageLogEntry, error)
}

// Publisher публикует запросы на исполнение task'ов.
type Publisher interface {
	PublishSendRequested(ctx context.Context, taskID uuid.UUID, accountID string) error
}

// TaskCache — кэш завершённых task'ов.
type TaskCache interface {
	GetTask(ctx context.Context, id uuid.UUID) (*domain.SendTask, bool, error)
	StoreTask(ctx context.Context, task *domain.SendTask) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	accounts  AccountStore
	contacts  ContactStore
	tasks     TaskStore
	bulks     BulkStore
	templates TemplateStore
	messages  MessageStore
	publisher Publisher
	cache     TaskCache
	tracker   *orchestrator.Orchestrator

	policy            quota.Policy
	defaultDailyLimit int
	waitTimeout       time.Duration
	logger            *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Accounts  AccountStore
	Contacts  ContactStore
	Tasks     TaskStore
	Bulks     BulkStore
	Templates TemplateStore
	Messages  MessageStore

	// Publisher, Cache и Tracker опциональны. Без Publisher task'и
	// подхватывает polling воркера, без Tracker отправка не ждёт итога.
	Publisher Publisher
	Cache     TaskCache
	Tracker   *orchestrator.Orchestrator

	// Policy — для расчёта остатка квоты в ответах.
	Policy quota.Policy

	DefaultDailyLimit int           // default: 10
	WaitTimeout       time.Duration // default: 3m

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dailyLimit := cfg.DefaultDailyLimit
	if dailyLimit <= 0 {
		dailyLimit = defaultDailyLimit
	}

	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}

	return &Handler{
		accounts:          cfg.Accounts,
		contacts:          cfg.Contacts,
		tasks:             cfg.Tasks,
		bulks:             cfg.Bulks,
		templates:         cfg.Templates,
		messages:          cfg.Messages,
		publisher:         cfg.Publisher,
		cache:             cfg.Cache,
		tracker:           cfg.Tracker,
		policy:            cfg.Policy,
		defaultDailyLimit: dailyLimit,
		waitTimeout:       waitTimeout,
		logger:            logger,
	}
}
