package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Courier/internal/cache"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/driver"
	"github.com/shaiso/Courier/internal/lease"
	"github.com/shaiso/Courier/internal/orchestrator"
	"github.com/shaiso/Courier/internal/quota"
	"github.com/shaiso/Courier/internal/repo/memstore"
	"github.com/shaiso/Courier/internal/scheduler"
)

// --- Fakes ---

// recordingPublisher запоминает опубликованные task'и.
type recordingPublisher struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (p *recordingPublisher) PublishSendRequested(_ context.Context, taskID uuid.UUID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, taskID)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

// schedulingPublisher исполняет task сразу после публикации, как воркер,
// и сообщает итог orchestrator'у.
type schedulingPublisher struct {
	store   *memstore.Store
	sched   *scheduler.Scheduler
	tracker *orchestrator.Orchestrator
	wg      sync.WaitGroup
}

func (p *schedulingPublisher) PublishSendRequested(_ context.Context, taskID uuid.UUID, _ string) error {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx := context.Background()

		task, err := p.store.Tasks.GetByID(ctx, taskID)
		if err != nil {
			return
		}
		if err := p.sched.Run(ctx, task); err != nil {
			return
		}
		if task.IsFinished() {
			_ = p.tracker.Notify(ctx, task)
		}
	}()
	return nil
}

// --- Helpers ---

type testEnv struct {
	store   *memstore.Store
	handler *Handler
	mux     *http.ServeMux
	tracker *orchestrator.Orchestrator
}

func newTestEnv(t *testing.T, publisher Publisher, tracker *orchestrator.Orchestrator) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memstore.New(), publisher, tracker)
}

func newTestEnvWithStore(t *testing.T, store *memstore.Store, publisher Publisher, tracker *orchestrator.Orchestrator) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewHandler(Config{
		Accounts:    store.Accounts,
		Contacts:    store.Contacts,
		Tasks:       store.Tasks,
		Bulks:       store.Bulks,
		Templates:   store.Templates,
		Messages:    store.Messages,
		Publisher:   publisher,
		Cache:       cache.NewRedisCache(rdb, time.Minute),
		Tracker:     tracker,
		Policy:      quota.Policy{FailureCap: 3, Location: time.UTC},
		WaitTimeout: 2 * time.Second,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testEnv{store: store, handler: h, mux: mux, tracker: tracker}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) addAccount(t *testing.T, id string) {
	t.Helper()
	if err := e.store.Accounts.Create(context.Background(), domain.NewAccount(id, "/profiles/"+id, "", 10)); err != nil {
		t.Fatal(err)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return resp.Data
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// --- Accounts ---

func TestCreateAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/accounts", CreateAccountRequest{
		AccountID:   "acc-1",
		ProfilePath: "/profiles/acc-1",
	})
	expectStatus(t, rec, http.StatusCreated)

	acc := decode[AccountResponse](t, rec)
	if acc.DailyLimit != defaultDailyLimit {
		t.Errorf("expected default daily limit %d, got %d", defaultDailyLimit, acc.DailyLimit)
	}
	if acc.RemainingToday != defaultDailyLimit {
		t.Errorf("expected remaining %d, got %d", defaultDailyLimit, acc.RemainingToday)
	}
	if !acc.Enabled || acc.Status != domain.AccountStatusEnabled {
		t.Errorf("new account must be enabled, got %v/%s", acc.Enabled, acc.Status)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/accounts", CreateAccountRequest{
		AccountID:   "acc-1",
		ProfilePath: "/profiles/other",
	})
	expectStatus(t, rec, http.StatusConflict)
}

func TestCreateAccount_Validation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	negative := -1

	tests := []struct {
		name string
		req  CreateAccountRequest
	}{
		{"no id", CreateAccountRequest{ProfilePath: "/p"}},
		{"no profile", CreateAccountRequest{AccountID: "acc-1"}},
		{"negative limit", CreateAccountRequest{AccountID: "acc-1", ProfilePath: "/p", DailyLimit: &negative}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/accounts", tt.req)
			expectStatus(t, rec, http.StatusBadRequest)
		})
	}
}

func TestDisableEnableAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addAccount(t, "acc-1")

	rec := env.do(t, http.MethodPost, "/api/v1/accounts/acc-1/disable", nil)
	expectStatus(t, rec, http.StatusOK)
	if acc := decode[AccountResponse](t, rec); acc.Enabled {
		t.Error("account must be disabled")
	}

	_, _ = env.store.Accounts.UpdateAccount(context.Background(), "acc-1", func(acc *domain.Account) error {
		acc.ConsecutiveFailures = 3
		return nil
	})

	rec = env.do(t, http.MethodPost, "/api/v1/accounts/acc-1/enable", nil)
	expectStatus(t, rec, http.StatusOK)
	acc := decode[AccountResponse](t, rec)
	if !acc.Enabled || acc.ConsecutiveFailures != 0 {
		t.Errorf("enable must reset failures, got enabled=%v failures=%d", acc.Enabled, acc.ConsecutiveFailures)
	}
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addAccount(t, "acc-1")

	_, _ = env.store.Accounts.UpdateAccount(context.Background(), "acc-1", func(acc *domain.Account) error {
		acc.InUse = true
		return nil
	})

	rec := env.do(t, http.MethodDelete, "/api/v1/accounts/acc-1", nil)
	expectStatus(t, rec, http.StatusConflict)

	_, _ = env.store.Accounts.UpdateAccount(context.Background(), "acc-1", func(acc *domain.Account) error {
		acc.InUse = false
		return nil
	})

	rec = env.do(t, http.MethodDelete, "/api/v1/accounts/acc-1", nil)
	expectStatus(t, rec, http.StatusNoContent)

	rec = env.do(t, http.MethodDelete, "/api/v1/accounts/acc-1", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

// --- Sends ---

func TestSend_Async(t *testing.T) {
	publisher := &recordingPublisher{}
	env := newTestEnv(t, publisher, nil)
	env.addAccount(t, "acc-1")

	rec := env.do(t, http.MethodPost, "/api/v1/accounts/acc-1/send?wait=false", SendRequest{Message: "hello"})
	expectStatus(t, rec, http.StatusAccepted)

	task := decode[TaskResponse](t, rec)
	if task.State != domain.TaskStatePending || task.Finished {
		t.Errorf("expected pending task, got %s", task.State)
	}
	if publisher.count() != 1 {
		t.Errorf("expected 1 published request, got %d", publisher.count())
	}

	stored, err := env.store.Tasks.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.AccountID != "acc-1" || stored.Message != "hello" {
		t.Errorf("unexpected stored task: %+v", stored)
	}
}

func TestSend_Sync(t *testing.T) {
	store := memstore.New()
	tracker := orchestrator.New(orchestrator.Config{
		Tasks:            store.Tasks,
		Bulks:            store.Bulks,
		WaitPollInterval: 20 * time.Millisecond,
	})

	sched := scheduler.New(scheduler.Config{
		Accounts: store.Accounts,
		Contacts: store.Contacts,
		Messages: store.Messages,
		Tasks:    store.Tasks,
		Leases:   lease.NewManager(lease.Config{Store: store.Accounts}),
		Policy:   quota.Policy{FailureCap: 3, Location: time.UTC},
		Driver:   driver.NewStatic(driver.Candidate{JID: "1@c.us", Name: "Анна"}),
		Simulate: true,
	})
	publisher := &schedulingPublisher{store: store, sched: sched, tracker: tracker}
	t.Cleanup(publisher.wg.Wait)

	env := newTestEnvWithStore(t, store, publisher, tracker)
	env.addAccount(t, "acc-1")

	rec := env.do(t, http.MethodPost, "/api/v1/accounts/acc-1/send", SendRequest{Message: "Привет, {{ .Name }}!"})
	expectStatus(t, rec, http.StatusOK)

	task := decode[TaskResponse](t, rec)
	if !task.Finished || task.State != domain.TaskStateCompleted {
		t.Fatalf("expected completed task, got %s (%s)", task.State, task.Detail)
	}
	if task.Result != domain.MessageResultSimulated || task.ContactJID != "1@c.us" {
		t.Errorf("unexpected outcome: %s to %q", task.Result, task.ContactJID)
	}
}

func TestSend_SyncTimeoutFallsBackToAccepted(t *testing.T) {
	store := memstore.New()
	tracker := orchestrator.New(orchestrator.Config{
		Tasks:            store.Tasks,
		Bulks:            store.Bulks,
		WaitPollInterval: 10 * time.Millisecond,
	})
	env := newTestEnvWithStore(t, store, &recordingPublisher{}, tracker)
	env.handler.waitTimeout = 50 * time.Millisecond
	env.addAccount(t, "acc-1")

	rec := env.do(t, http.MethodPost, "/api/v1/accounts/acc-1/send", SendRequest{Message: "hello"})
	expectStatus(t, rec, http.StatusAccepted)

	if task := decode[TaskResponse](t, rec); task.Finished {
		t.Error("task must not be finished")
	}
	if tracker.Waiters() != 0 {
		t.Errorf("waiter leaked: %d", tracker.Waiters())
	}
}

func TestSend_Errors(t *testing.T) {
	env := newTestEnv(t, &recordingPublisher{}, nil)
	env.addAccount(t, "acc-1")
	missing := uuid.New()

	tests := []struct {
		name    string
		account string
		req     SendRequest
		want    int
	}{
		{"empty message", "acc-1", SendRequest{Message: "  "}, http.StatusBadRequest},
		{"broken template syntax", "acc-1", SendRequest{Message: "Hi {{ .Name "}, http.StatusBadRequest},
		{"unknown template", "acc-1", SendRequest{TemplateID: &missing}, http.StatusNotFound},
		{"unknown account", "acc-9", SendRequest{Message: "hello"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/accounts/"+tt.account+"/send?wait=false", tt.req)
			expectStatus(t, rec, tt.want)
		})
	}

	tasks, _ := env.store.Tasks.ListPending(context.Background(), 0)
	if len(tasks) != 0 {
		t.Errorf("rejected requests must not create tasks, got %d", len(tasks))
	}
}

// --- Tasks ---

func TestCancelTask(t *testing.T) {
	store := memstore.New()
	tracker := orchestrator.New(orchestrator.Config{Tasks: store.Tasks, Bulks: store.Bulks})
	env := newTestEnvWithStore(t, store, nil, tracker)
	ctx := context.Background()

	task := domain.NewSendTask("acc-1", "hello", nil)
	if err := store.Tasks.Create(ctx, task); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/tasks/"+task.ID.String()+"/cancel", nil)
	expectStatus(t, rec, http.StatusOK)

	got := decode[TaskResponse](t, rec)
	if got.State != domain.TaskStateAborted || got.Reason != domain.ReasonCancelled {
		t.Errorf("expected ABORTED/CANCELLED, got %s/%s", got.State, got.Reason)
	}

	stored, _ := store.Tasks.GetByID(ctx, task.ID)
	if stored.State != domain.TaskStateAborted {
		t.Errorf("expected stored state ABORTED, got %s", stored.State)
	}

	// Повторная отмена невозможна
	rec = env.do(t, http.MethodPost, "/api/v1/tasks/"+task.ID.String()+"/cancel", nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestCancelTask_Dispatched(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	task := domain.NewSendTask("acc-1", "hello", nil)
	if err := env.store.Tasks.Create(ctx, task); err != nil {
		t.Fatal(err)
	}
	task.MarkLeased(time.Now())
	task.MarkEligible()
	task.MarkDispatched(&domain.Contact{ID: "1@c.us", JID: "1@c.us"}, time.Now())
	if err := env.store.Tasks.Transition(ctx, task, domain.TaskStatePending); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/tasks/"+task.ID.String()+"/cancel", nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestCancelTask_Leased(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	task := domain.NewSendTask("acc-1", "hello", nil)
	if err := env.store.Tasks.Create(ctx, task); err != nil {
		t.Fatal(err)
	}
	task.MarkLeased(time.Now())
	if err := env.store.Tasks.Transition(ctx, task, domain.TaskStatePending); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/tasks/"+task.ID.String()+"/cancel", nil)
	expectStatus(t, rec, http.StatusOK)

	stored, err := env.store.Tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != domain.TaskStateAborted || stored.Reason != domain.ReasonCancelled {
		t.Errorf("expected ABORTED/CANCELLED, got %s/%s", stored.State, stored.Reason)
	}
}

func TestCancelTask_Eligible(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	task := domain.NewSendTask("acc-1", "hello", nil)
	if err := env.store.Tasks.Create(ctx, task); err != nil {
		t.Fatal(err)
	}
	task.MarkLeased(time.Now())
	task.MarkEligible()
	if err := env.store.Tasks.Transition(ctx, task, domain.TaskStatePending); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/tasks/"+task.ID.String()+"/cancel", nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestGetTask_ReadsThroughCache(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	task := domain.NewSendTask("acc-1", "hello", nil)
	if err := env.store.Tasks.Create(ctx, task); err != nil {
		t.Fatal(err)
	}
	task.Reject(domain.ReasonAccountDisabled, "account disabled", time.Now())
	if err := env.store.Tasks.Transition(ctx, task, domain.TaskStatePending); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/tasks/"+task.ID.String(), nil)
	expectStatus(t, rec, http.StatusOK)

	cached, ok, err := env.handler.cache.GetTask(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("finished task must be cached: ok=%v err=%v", ok, err)
	}
	if cached.State != domain.TaskStateRejected {
		t.Errorf("expected cached REJECTED, got %s", cached.State)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/tasks/"+uuid.NewString(), nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = env.do(t, http.MethodGet, "/api/v1/tasks/not-a-uuid", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

// --- Bulk ---

func TestCreateBulk_RoundRobin(t *testing.T) {
	publisher := &recordingPublisher{}
	env := newTestEnv(t, publisher, nil)
	env.addAccount(t, "acc-1")
	env.addAccount(t, "acc-2")
	env.addAccount(t, "acc-3")

	_, _ = env.store.Accounts.UpdateAccount(context.Background(), "acc-2", func(acc *domain.Account) error {
		acc.Disable()
		return nil
	})

	rec := env.do(t, http.MethodPost, "/api/v1/bulk-sends", CreateBulkRequest{
		Message: "hello",
		Mode:    domain.BulkModeRoundRobin,
		Count:   5,
	})
	expectStatus(t, rec, http.StatusAccepted)

	bulk := decode[BulkResponse](t, rec)
	if bulk.Total != 5 || len(bulk.TaskIDs) != 5 {
		t.Fatalf("expected 5 tasks, got total=%d ids=%d", bulk.Total, len(bulk.TaskIDs))
	}
	if bulk.Status != domain.BulkStatusRunning {
		t.Errorf("expected RUNNING, got %s", bulk.Status)
	}
	if publisher.count() != 5 {
		t.Errorf("expected 5 published requests, got %d", publisher.count())
	}

	want := []string{"acc-1", "acc-3", "acc-1", "acc-3", "acc-1"}
	for i, id := range bulk.TaskIDs {
		task, err := env.store.Tasks.GetByID(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if task.AccountID != want[i] {
			t.Errorf("task %d: expected %s, got %s", i, want[i], task.AccountID)
		}
		if task.BulkID == nil || *task.BulkID != bulk.ID {
			t.Errorf("task %d is not bound to bulk", i)
		}
	}
}

func TestCreateBulk_PerAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addAccount(t, "acc-1")
	env.addAccount(t, "acc-2")

	rec := env.do(t, http.MethodPost, "/api/v1/bulk-sends", CreateBulkRequest{
		Message:    "hello",
		AccountIDs: []string{"acc-2", "acc-2"},
	})
	expectStatus(t, rec, http.StatusAccepted)

	bulk := decode[BulkResponse](t, rec)
	if bulk.Mode != domain.BulkModePerAccount || bulk.Total != 1 {
		t.Errorf("expected one per_account task, got %s/%d", bulk.Mode, bulk.Total)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/bulk-sends", CreateBulkRequest{
		Message:    "hello",
		AccountIDs: []string{"acc-9"},
	})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestCreateBulk_Errors(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/bulk-sends", CreateBulkRequest{Message: "hello"})
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = env.do(t, http.MethodPost, "/api/v1/bulk-sends", CreateBulkRequest{
		Message: "hello",
		Mode:    domain.BulkModeRoundRobin,
	})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodPost, "/api/v1/bulk-sends", CreateBulkRequest{
		Message: "hello",
		Mode:    "broadcast",
	})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestGetBulk_Summary(t *testing.T) {
	store := memstore.New()
	tracker := orchestrator.New(orchestrator.Config{Tasks: store.Tasks, Bulks: store.Bulks})
	env := newTestEnvWithStore(t, store, nil, tracker)
	env.addAccount(t, "acc-1")
	env.addAccount(t, "acc-2")

	rec := env.do(t, http.MethodPost, "/api/v1/bulk-sends", CreateBulkRequest{Message: "hello"})
	expectStatus(t, rec, http.StatusAccepted)
	bulk := decode[BulkResponse](t, rec)

	ctx := context.Background()
	task, _ := store.Tasks.GetByID(ctx, bulk.TaskIDs[0])
	task.Complete(domain.MessageResultSimulated, domain.ReasonSimulated, "ok", time.Now())
	if err := store.Tasks.Transition(ctx, task, domain.TaskStatePending); err != nil {
		t.Fatal(err)
	}
	if err := tracker.Notify(ctx, task); err != nil {
		t.Fatal(err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/bulk-sends/"+bulk.ID.String(), nil)
	expectStatus(t, rec, http.StatusOK)

	got := decode[BulkResponse](t, rec)
	if got.Summary == nil {
		t.Fatal("expected summary")
	}
	if got.Summary.Succeeded != 1 || got.Summary.Pending != 1 {
		t.Errorf("unexpected summary: %+v", *got.Summary)
	}
	if got.Status != domain.BulkStatusRunning {
		t.Errorf("bulk with pending tasks must stay RUNNING, got %s", got.Status)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/bulk-sends/"+bulk.ID.String()+"/tasks", nil)
	expectStatus(t, rec, http.StatusOK)
	if tasks := decode[[]TaskResponse](t, rec); len(tasks) != 2 {
		t.Errorf("expected 2 bulk tasks, got %d", len(tasks))
	}
}

// --- Contacts ---

func TestImportContacts(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/contacts", ImportContactsRequest{
		Contacts: []ContactInput{
			{JID: "1@c.us", Name: "Анна"},
			{Name: "Борис"},
			{},
		},
	})
	expectStatus(t, rec, http.StatusOK)

	resp := decode[ImportContactsResponse](t, rec)
	if resp.Received != 3 || resp.Inserted != 2 || resp.Skipped != 1 {
		t.Errorf("unexpected import result: %+v", resp)
	}

	if _, err := env.store.Contacts.GetByID(context.Background(), domain.ContactID("", "Борис")); err != nil {
		t.Errorf("name-only contact must be stored under namehash id: %v", err)
	}

	// Повторный импорт не возвращает contacted в new
	if _, err := env.store.Contacts.MarkContacted(context.Background(), "1@c.us", time.Now()); err != nil {
		t.Fatal(err)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/contacts", ImportContactsRequest{
		Contacts: []ContactInput{{JID: "1@c.us", Name: "Анна К."}},
	})
	expectStatus(t, rec, http.StatusOK)
	if resp := decode[ImportContactsResponse](t, rec); resp.Updated != 1 {
		t.Errorf("expected 1 updated, got %+v", resp)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/contacts/1@c.us", nil)
	expectStatus(t, rec, http.StatusOK)
	contact := decode[domain.Contact](t, rec)
	if contact.Status != domain.ContactStatusContacted || contact.Name != "Анна К." {
		t.Errorf("unexpected contact after re-import: %+v", contact)
	}
}

func TestListAndInvalidateContacts(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_, _ = env.store.Contacts.UpsertBatch(context.Background(), []domain.Contact{
		*domain.NewContact("1@c.us", "Анна"),
		*domain.NewContact("2@c.us", "Борис"),
	})

	rec := env.do(t, http.MethodPost, "/api/v1/contacts/2@c.us/invalid", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodGet, "/api/v1/contacts?status=new", nil)
	expectStatus(t, rec, http.StatusOK)
	contacts := decode[[]domain.Contact](t, rec)
	if len(contacts) != 1 || contacts[0].ID != "1@c.us" {
		t.Errorf("expected only 1@c.us to be new, got %+v", contacts)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/contacts/9@c.us/invalid", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

// --- Templates ---

func TestTemplates(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/templates", CreateTemplateRequest{
		Name: "greeting",
		Body: `Привет, {{ default "друг" .Name }}!`,
	})
	expectStatus(t, rec, http.StatusCreated)
	tmpl := decode[domain.Template](t, rec)

	rec = env.do(t, http.MethodPost, "/api/v1/templates", CreateTemplateRequest{Name: "greeting", Body: "hi"})
	expectStatus(t, rec, http.StatusConflict)

	rec = env.do(t, http.MethodPost, "/api/v1/templates", CreateTemplateRequest{Name: "broken", Body: "{{ .Name"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodPost, "/api/v1/templates/"+tmpl.ID.String()+"/preview", PreviewTemplateRequest{
		Contact: ContactInput{JID: "1@c.us"},
	})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[PreviewTemplateResponse](t, rec); got.Message != "Привет, друг!" {
		t.Errorf("unexpected preview: %q", got.Message)
	}

	// Отправка по шаблону
	env.addAccount(t, "acc-1")
	rec = env.do(t, http.MethodPost, "/api/v1/accounts/acc-1/send?wait=false", SendRequest{TemplateID: &tmpl.ID})
	expectStatus(t, rec, http.StatusAccepted)

	rec = env.do(t, http.MethodDelete, "/api/v1/templates/"+tmpl.ID.String(), nil)
	expectStatus(t, rec, http.StatusNoContent)

	rec = env.do(t, http.MethodGet, "/api/v1/templates/"+tmpl.ID.String(), nil)
	expectStatus(t, rec, http.StatusNotFound)
}

// --- Messages ---

func TestListMessages(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	for i, acc := range []string{"acc-1", "acc-2", "acc-1"} {
		_, err := env.store.Messages.Append(ctx, &domain.MessageLogEntry{
			TaskID:    uuid.New(),
			AccountID: acc,
			ContactID: "1@c.us",
			Message:   "hello",
			Result:    domain.MessageResultSimulated,
			SentAt:    time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/messages?account_id=acc-1", nil)
	expectStatus(t, rec, http.StatusOK)
	if entries := decode[[]domain.MessageLogEntry](t, rec); len(entries) != 2 {
		t.Errorf("expected 2 entries for acc-1, got %d", len(entries))
	}

	rec = env.do(t, http.MethodGet, "/api/v1/messages?limit=x", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}
