// Package memstore — in-memory реализации репозиториев.
//
// Семантика совпадает с PostgreSQL-репозиториями из пакета repo
// (включая атомарность UpdateAccount и условные переходы task'ов).
// Используется в тестах и в локальном запуске без БД.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/repo"
)

// Store объединяет все in-memory репозитории.
type Store struct {
	Accounts  *Accounts
	Contacts  *Contacts
	Messages  *Messages
	Tasks     *Tasks
	Bulks     *Bulks
	Templates *Templates
}

// New создаёт пустой Store.
func New() *Store {
	return &Store{
		Accounts:  &Accounts{items: make(map[string]domain.Account)},
		Contacts:  &Contacts{items: make(map[string]domain.Contact)},
		Messages:  &Messages{byTask: make(map[uuid.UUID]int)},
		Tasks:     &Tasks{items: make(map[uuid.UUID]domain.SendTask)},
		Bulks:     &Bulks{items: make(map[uuid.UUID]domain.Bulk)},
		Templates: &Templates{items: make(map[uuid.UUID]domain.Template)},
	}
}

// --- Accounts ---

// Accounts — in-memory аналог repo.AccountRepo.
type Accounts struct {
	mu    sync.Mutex
	items map[string]domain.Account
}

// Create регистрирует аккаунт.
func (s *Accounts) Create(_ context.Context, acc *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[acc.ID]; ok {
		return repo.ErrAlreadyExists
	}
	s.items[acc.ID] = copyAccount(*acc)
	return nil
}

// GetByID возвращает аккаунт по ID.
func (s *Accounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := copyAccount(acc)
	return &out, nil
}

// List возвращает аккаунты, отсортированные по ID.
func (s *Accounts) List(_ context.Context, filter repo.AccountFilter) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Account
	for _, acc := range s.items {
		if filter.Status != "" && acc.Status != filter.Status {
			continue
		}
		if filter.ActiveOnly && !acc.IsActive() {
			continue
		}
		out = append(out, copyAccount(acc))
	}
	slices.SortFunc(out, func(a, b domain.Account) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ListInUse возвращает занятые аккаунты.
func (s *Accounts) ListInUse(_ context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Account
	for _, acc := range s.items {
		if acc.InUse {
			out = append(out, copyAccount(acc))
		}
	}
	slices.SortFunc(out, func(a, b domain.Account) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// UpdateAccount атомарно применяет fn к аккаунту.
func (s *Accounts) UpdateAccount(_ context.Context, id string, fn func(acc *domain.Account) error) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}

	working := copyAccount(stored)
	if err := fn(&working); err != nil {
		return nil, err
	}

	s.items[id] = copyAccount(working)
	return &working, nil
}

// Delete удаляет свободный аккаунт.
func (s *Accounts) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.items[id]
	if !ok {
		return repo.ErrNotFound
	}
	if acc.InUse {
		return repo.ErrInvalidState
	}
	delete(s.items, id)
	return nil
}

func copyAccount(a domain.Account) domain.Account {
	a.LastUsedTime = copyTime(a.LastUsedTime)
	a.LeaseToken = copyUUID(a.LeaseToken)
	a.LastOutcomeTaskID = copyUUID(a.LastOutcomeTaskID)
	return a
}

// --- Contacts ---

// Contacts — in-memory аналог repo.ContactRepo.
type Contacts struct {
	mu    sync.Mutex
	items map[string]domain.Contact
}

// UpsertBatch добавляет новые контакты; у существующих обновляет имя и metadata.
func (s *Contacts) UpsertBatch(_ context.Context, contacts []domain.Contact) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, c := range contacts {
		existing, ok := s.items[c.ID]
		if !ok {
			c.Status = domain.ContactStatusNew
			c.LastContactedAt = nil
			if c.CreatedAt.IsZero() {
				c.CreatedAt = time.Now()
			}
			s.items[c.ID] = c
			inserted++
			continue
		}
		if c.Name != "" {
			existing.Name = c.Name
		}
		if len(c.Metadata) > 0 {
			if existing.Metadata == nil {
				existing.Metadata = make(map[string]any, len(c.Metadata))
			}
			for k, v := range c.Metadata {
				existing.Metadata[k] = v
			}
		}
		s.items[c.ID] = existing
	}
	return inserted, nil
}

// GetByID возвращает контакт по ID.
func (s *Contacts) GetByID(_ context.Context, id string) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c.LastContactedAt = copyTime(c.LastContactedAt)
	return &c, nil
}

// List возвращает контакты в порядке выбора.
func (s *Contacts) List(_ context.Context, filter repo.ContactFilter) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var all []domain.Contact
	for _, c := range s.items {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.WithJID && c.JID == "" {
			continue
		}
		c.LastContactedAt = copyTime(c.LastContactedAt)
		all = append(all, c)
	}
	slices.SortFunc(all, compareContacts)

	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ListAvailable возвращает до limit контактов в статусе new с известным jid.
func (s *Contacts) ListAvailable(ctx context.Context, limit int) ([]domain.Contact, error) {
	return s.List(ctx, repo.ContactFilter{Status: domain.ContactStatusNew, Limit: limit, WithJID: true})
}

// ListByJIDs возвращает контакты с указанными адресами.
func (s *Contacts) ListByJIDs(_ context.Context, jids []string) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(jids))
	for _, j := range jids {
		want[j] = true
	}

	var out []domain.Contact
	for _, c := range s.items {
		if c.JID != "" && want[c.JID] {
			c.LastContactedAt = copyTime(c.LastContactedAt)
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.Contact) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// MarkContacted переводит контакт из new в contacted.
func (s *Contacts) MarkContacted(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if !c.MarkContacted(at) {
		return false, nil
	}
	s.items[id] = c
	return true, nil
}

// MarkInvalid исключает контакт из рассылки.
func (s *Contacts) MarkInvalid(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return repo.ErrNotFound
	}
	c.Status = domain.ContactStatusInvalid
	s.items[id] = c
	return nil
}

func compareContacts(a, b domain.Contact) int {
	switch {
	case a.LastContactedAt == nil && b.LastContactedAt != nil:
		return -1
	case a.LastContactedAt != nil && b.LastContactedAt == nil:
		return 1
	case a.LastContactedAt != nil && b.LastContactedAt != nil:
		if c := a.LastContactedAt.Compare(*b.LastContactedAt); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// --- Messages ---

// Messages — in-memory журнал отправок.
type Messages struct {
	mu      sync.Mutex
	entries []domain.MessageLogEntry
	byTask  map[uuid.UUID]int
}

// Append добавляет запись; повтор для того же task_id игнорируется.
func (s *Messages) Append(_ context.Context, entry *domain.MessageLogEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byTask[entry.TaskID]; ok {
		return false, nil
	}
	entry.ID = int64(len(s.entries) + 1)
	s.byTask[entry.TaskID] = len(s.entries)
	s.entries = append(s.entries, *entry)
	return true, nil
}

// List возвращает записи журнала, новые первыми.
func (s *Messages) List(_ context.Context, filter repo.MessageFilter) ([]domain.MessageLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []domain.MessageLogEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if filter.AccountID != "" && e.AccountID != filter.AccountID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len возвращает количество записей.
func (s *Messages) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// --- Tasks ---

// Tasks — in-memory аналог repo.TaskRepo.
type Tasks struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.SendTask
}

// Create сохраняет task.
func (s *Tasks) Create(_ context.Context, task *domain.SendTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[task.ID]; ok {
		return repo.ErrAlreadyExists
	}
	s.items[task.ID] = *task
	return nil
}

// CreateBatch сохраняет несколько task'ов.
func (s *Tasks) CreateBatch(ctx context.Context, tasks []*domain.SendTask) error {
	for _, t := range tasks {
		if err := s.Create(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// GetByID возвращает task по ID.
func (s *Tasks) GetByID(_ context.Context, id uuid.UUID) (*domain.SendTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &t, nil
}

// List возвращает task'и, новые первыми.
func (s *Tasks) List(_ context.Context, filter repo.TaskFilter) ([]domain.SendTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []domain.SendTask
	for _, t := range s.items {
		if filter.AccountID != "" && t.AccountID != filter.AccountID {
			continue
		}
		if filter.State != "" && t.State != filter.State {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b domain.SendTask) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByBulk возвращает task'и bulk-рассылки.
func (s *Tasks) ListByBulk(_ context.Context, bulkID uuid.UUID) ([]domain.SendTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SendTask
	for _, t := range s.items {
		if t.BulkID != nil && *t.BulkID == bulkID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, compareTasksByCreation)
	return out, nil
}

// ListPending возвращает task'и в состоянии PENDING, старые первыми.
func (s *Tasks) ListPending(_ context.Context, limit int) ([]domain.SendTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SendTask
	for _, t := range s.items {
		if t.State == domain.TaskStatePending {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, compareTasksByCreation)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Transition сохраняет task, если текущее состояние входит в from.
func (s *Tasks) Transition(_ context.Context, task *domain.SendTask, from ...domain.TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[task.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if !slices.Contains(from, stored.State) {
		return repo.ErrInvalidState
	}
	s.items[task.ID] = *task
	return nil
}

func compareTasksByCreation(a, b domain.SendTask) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.String(), b.ID.String())
}

// --- Bulks ---

// Bulks — in-memory аналог repo.BulkRepo.
type Bulks struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.Bulk
}

// Create сохраняет bulk.
func (s *Bulks) Create(_ context.Context, b *domain.Bulk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[b.ID] = *b
	return nil
}

// GetByID возвращает bulk по ID.
func (s *Bulks) GetByID(_ context.Context, id uuid.UUID) (*domain.Bulk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &b, nil
}

// List возвращает последние bulk-рассылки.
func (s *Bulks) List(_ context.Context, limit int) ([]domain.Bulk, error) {
	return s.list(limit, func(domain.Bulk) bool { return true }, -1)
}

// ListActive возвращает bulk-рассылки в статусе PENDING или RUNNING.
func (s *Bulks) ListActive(_ context.Context, limit int) ([]domain.Bulk, error) {
	return s.list(limit, func(b domain.Bulk) bool { return !b.Status.IsTerminal() }, 1)
}

// Update сохраняет bulk.
func (s *Bulks) Update(_ context.Context, b *domain.Bulk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[b.ID]; !ok {
		return repo.ErrNotFound
	}
	s.items[b.ID] = *b
	return nil
}

func (s *Bulks) list(limit int, keep func(domain.Bulk) bool, order int) ([]domain.Bulk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var out []domain.Bulk
	for _, b := range s.items {
		if keep(b) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b domain.Bulk) int { return order * a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Templates ---

// Templates — in-memory аналог repo.TemplateRepo.
type Templates struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.Template
}

// Create сохраняет шаблон с уникальным именем.
func (s *Templates) Create(_ context.Context, t *domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.Name == t.Name {
			return repo.ErrAlreadyExists
		}
	}
	s.items[t.ID] = *t
	return nil
}

// GetByID возвращает шаблон по ID.
func (s *Templates) GetByID(_ context.Context, id uuid.UUID) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &t, nil
}

// List возвращает шаблоны по имени.
func (s *Templates) List(_ context.Context) ([]domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Template, 0, len(s.items))
	for _, t := range s.items {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b domain.Template) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// Delete удаляет шаблон.
func (s *Templates) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// --- Helpers ---

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
