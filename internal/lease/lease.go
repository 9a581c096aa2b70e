package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/repo"
	"github.com/shaiso/Courier/internal/telemetry"
)

// Ошибки lease.
var (
	// ErrLeaseBusy — аккаунт уже занят другим task'ом.
	ErrLeaseBusy = errors.New("lease busy")

	// ErrAccountNotFound — аккаунт не зарегистрирован.
	ErrAccountNotFound = errors.New("account not found")

	// errLeaseLost — lease уже отпущен или перехвачен; запись не нужна.
	errLeaseLost = errors.New("lease lost")

	// errNotStale — lease ещё живой; sweep его не трогает.
	errNotStale = errors.New("lease not stale")
)

// Default configuration values.
const (
	defaultStaleAfter = 10 * time.Minute
)

// Store — хранилище аккаунтов с атомарным read-modify-write.
//
// UpdateAccount блокирует запись аккаунта, вызывает fn и сохраняет
// изменения, только если fn вернул nil. Ошибка fn возвращается как есть.
// Для неизвестного аккаунта возвращается repo.ErrNotFound.
type Store interface {
	UpdateAccount(ctx context.Context, id string, fn func(acc *domain.Account) error) (*domain.Account, error)
	ListInUse(ctx context.Context) ([]domain.Account, error)
}

// Lease — право эксклюзивного использования профиля аккаунта.
type Lease struct {
	// AccountID — аккаунт, на который выдан lease.
	AccountID string

	// Token — идентификатор lease. Release снимает флаг, только если
	// в хранилище всё ещё этот токен.
	Token uuid.UUID

	// AcquiredAt — время выдачи.
	AcquiredAt time.Time

	// Reclaimed — lease выдан после принудительного снятия stale lease.
	Reclaimed bool

	// Account — снимок аккаунта на момент выдачи.
	Account domain.Account
}

// Manager выдаёт и отпускает lease'ы на аккаунты.
//
// Manager — единственный, кто пишет поля InUse/LeaseToken. Взаимное
// исключение обеспечивается атомарным UpdateAccount хранилища, поэтому
// две конкурентные попытки acquire никогда не получат lease одновременно.
type Manager struct {
	store      Store
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu   sync.Mutex
	held map[string]uuid.UUID
}

// Config — конфигурация Manager.
type Config struct {
	Store Store

	// StaleAfter — через сколько lease считается брошенным (default: 10m).
	StaleAfter time.Duration

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	Logger *slog.Logger
}

// NewManager создаёт новый Manager.
func NewManager(cfg Config) *Manager {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:      cfg.Store,
		staleAfter: staleAfter,
		now:        now,
		logger:     logger,
		held:       make(map[string]uuid.UUID),
	}
}

// StaleAfter возвращает порог устаревания lease.
func (m *Manager) StaleAfter() time.Duration {
	return m.staleAfter
}

// Acquire выдаёт lease на аккаунт.
//
// Если аккаунт занят и lease моложе StaleAfter — ErrLeaseBusy.
// Если lease старше StaleAfter, он снимается, в last_error аккаунта
// записывается пометка, и выдаётся новый lease.
func (m *Manager) Acquire(ctx context.Context, accountID string) (*Lease, error) {
	now := m.now()
	token := uuid.New()
	reclaimed := false
	var previous *time.Time

	acc, err := m.store.UpdateAccount(ctx, accountID, func(acc *domain.Account) error {
		reclaimed = false
		previous = nil

		if acc.InUse {
			started := acc.LeaseStartedAt()
			if !m.isStale(started, now) {
				return ErrLeaseBusy
			}
			reclaimed = true
			previous = started
			acc.LastError = reclaimNote(started, now)
		}

		acc.InUse = true
		acc.LeaseToken = &token
		acc.LastUsedTime = &now
		acc.UpdatedAt = now
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrLeaseBusy):
			telemetry.LeaseAcquisitions.WithLabelValues("busy").Inc()
			return nil, fmt.Errorf("%w: account %s", ErrLeaseBusy, accountID)
		case errors.Is(err, repo.ErrNotFound):
			telemetry.LeaseAcquisitions.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		default:
			telemetry.LeaseAcquisitions.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("acquire lease: %w", err)
		}
	}

	if reclaimed {
		telemetry.LeaseAcquisitions.WithLabelValues("reclaimed").Inc()
		telemetry.StaleLeasesReclaimed.Inc()
		m.logger.Warn("stale lease reclaimed on acquire",
			"account_id", accountID,
			"held_since", previous,
			"stale_after", m.staleAfter,
		)
	} else {
		telemetry.LeaseAcquisitions.WithLabelValues("acquired").Inc()
	}

	m.track(accountID, token)

	return &Lease{
		AccountID:  accountID,
		Token:      token,
		AcquiredAt: now,
		Reclaimed:  reclaimed,
		Account:    *acc,
	}, nil
}

// Release отпускает lease: снимает in_use и обновляет last_used_time.
//
// Идемпотентен. Если lease уже отпущен или перехвачен после устаревания,
// ничего не пишет и возвращает nil.
func (m *Manager) Release(ctx context.Context, l *Lease) error {
	if l == nil {
		return nil
	}
	now := m.now()

	_, err := m.store.UpdateAccount(ctx, l.AccountID, func(acc *domain.Account) error {
		if !acc.InUse || acc.LeaseToken == nil || *acc.LeaseToken != l.Token {
			return errLeaseLost
		}
		acc.InUse = false
		acc.LeaseToken = nil
		acc.LastUsedTime = &now
		acc.UpdatedAt = now
		return nil
	})

	m.untrack(l.AccountID, l.Token)

	switch {
	case err == nil:
		m.logger.Debug("lease released", "account_id", l.AccountID)
		return nil
	case errors.Is(err, errLeaseLost):
		m.logger.Debug("lease already released", "account_id", l.AccountID, "token", l.Token)
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("release lease: %w", err)
	}
}

// Sweep снимает все устаревшие lease'ы и возвращает ID освобождённых аккаунтов.
//
// Используется при старте воркера и периодически; acquire умеет
// снимать stale lease и без sweep.
func (m *Manager) Sweep(ctx context.Context) ([]string, error) {
	accounts, err := m.store.ListInUse(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leased accounts: %w", err)
	}

	var reclaimed []string
	var errs []error

	for i := range accounts {
		id := accounts[i].ID
		now := m.now()
		var started *time.Time

		_, err := m.store.UpdateAccount(ctx, id, func(acc *domain.Account) error {
			started = acc.LeaseStartedAt()
			if !acc.InUse || !m.isStale(started, now) {
				return errNotStale
			}
			acc.InUse = false
			acc.LeaseToken = nil
			acc.LastError = reclaimNote(started, now)
			acc.UpdatedAt = now
			return nil
		})
		switch {
		case err == nil:
			reclaimed = append(reclaimed, id)
			telemetry.StaleLeasesReclaimed.Inc()
			m.logger.Warn("stale lease reclaimed by sweep",
				"account_id", id,
				"held_since", started,
			)
		case errors.Is(err, errNotStale), errors.Is(err, repo.ErrNotFound):
		default:
			errs = append(errs, fmt.Errorf("reclaim %s: %w", id, err))
		}
	}

	return reclaimed, errors.Join(errs...)
}

// Held возвращает количество lease'ов, выданных этим Manager и не отпущенных.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// isStale: lease без времени старта тоже считается брошенным.
func (m *Manager) isStale(started *time.Time, now time.Time) bool {
	if started == nil {
		return true
	}
	return now.Sub(*started) > m.staleAfter
}

func (m *Manager) track(accountID string, token uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[accountID] = token
	telemetry.LeasesHeld.Set(float64(len(m.held)))
}

func (m *Manager) untrack(accountID string, token uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[accountID] == token {
		delete(m.held, accountID)
	}
	telemetry.LeasesHeld.Set(float64(len(m.held)))
}

func reclaimNote(started *time.Time, now time.Time) string {
	if started == nil {
		return fmt.Sprintf("stale lease reclaimed at %s (no lease start recorded)", now.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("stale lease reclaimed at %s (held since %s)",
		now.UTC().Format(time.RFC3339), started.UTC().Format(time.RFC3339))
}
