package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/driver"
	"github.com/shaiso/Courier/internal/lease"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/quota"
	"github.com/shaiso/Courier/internal/repo/memstore"
	"github.com/shaiso/Courier/internal/scheduler"
)

// --- Fakes ---

// fakeRunner завершает task через хранилище, как это делает scheduler.
type fakeRunner struct {
	tasks *memstore.Tasks
	delay time.Duration
	err   error

	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
}

func (r *fakeRunner) Run(ctx context.Context, task *domain.SendTask) error {
	r.calls.Add(1)
	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return r.err
	}

	task.Complete(domain.MessageResultSimulated, domain.ReasonSimulated, "ok", time.Now())
	return r.tasks.Transition(ctx, task, domain.TaskStatePending)
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []mq.SendCompletedPayload
}

func (p *fakePublisher) PublishSendCompleted(_ context.Context, payload mq.SendCompletedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakePublisher) published() []mq.SendCompletedPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mq.SendCompletedPayload(nil), p.payloads...)
}

type fakeCache struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]domain.SendTask
}

func (c *fakeCache) StoreTask(_ context.Context, task *domain.SendTask) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tasks == nil {
		c.tasks = make(map[uuid.UUID]domain.SendTask)
	}
	c.tasks[task.ID] = *task
	return nil
}

func (c *fakeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

type fakeSweeper struct {
	started, stopped atomic.Bool
}

func (s *fakeSweeper) Start(context.Context) { s.started.Store(true) }
func (s *fakeSweeper) Stop()                 { s.stopped.Store(true) }

// --- Helpers ---

type testEnv struct {
	store     *memstore.Store
	runner    *fakeRunner
	publisher *fakePublisher
	cache     *fakeCache
	worker    *Worker
}

func newTestEnv(t *testing.T, maxConcurrent int) *testEnv {
	t.Helper()
	store := memstore.New()
	env := &testEnv{
		store:     store,
		runner:    &fakeRunner{tasks: store.Tasks},
		publisher: &fakePublisher{},
		cache:     &fakeCache{},
	}
	env.worker = New(Config{
		Tasks:         store.Tasks,
		Runner:        env.runner,
		Publisher:     env.publisher,
		Cache:         env.cache,
		MaxConcurrent: maxConcurrent,
	})
	return env
}

func (e *testEnv) pending(t *testing.T, accountID string) *domain.SendTask {
	t.Helper()
	task := domain.NewSendTask(accountID, "hello", nil)
	if err := e.store.Tasks.Create(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func requestDelivery(taskID uuid.UUID) *mq.Delivery {
	return &mq.Delivery{Message: mq.Message{
		ID:      uuid.New().String(),
		Type:    mq.MessageTypeSendRequested,
		Payload: mq.SendRequestedPayload{TaskID: taskID, AccountID: "acc-1"},
	}}
}

// --- processTask ---

func TestProcessTask_RunsPendingTask(t *testing.T) {
	env := newTestEnv(t, 2)
	task := env.pending(t, "acc-1")

	if err := env.worker.processTask(context.Background(), task.ID); err != nil {
		t.Fatalf("processTask() error: %v", err)
	}

	if env.runner.calls.Load() != 1 {
		t.Errorf("expected 1 run, got %d", env.runner.calls.Load())
	}

	published := env.publisher.published()
	if len(published) != 1 {
		t.Fatalf("expected 1 send.completed, got %d", len(published))
	}
	if published[0].TaskID != task.ID || published[0].Reason != string(domain.ReasonSimulated) {
		t.Errorf("unexpected payload: %+v", published[0])
	}
	if env.cache.len() != 1 {
		t.Error("expected finished task cached")
	}
}

func TestProcessTask_NotPending(t *testing.T) {
	env := newTestEnv(t, 2)
	task := env.pending(t, "acc-1")

	// Отменён через API до того, как воркер его взял
	task.Abort(domain.ReasonCancelled, "cancelled", time.Now())
	if err := env.store.Tasks.Transition(context.Background(), task, domain.TaskStatePending); err != nil {
		t.Fatal(err)
	}

	err := env.worker.processTask(context.Background(), task.ID)
	if !errors.Is(err, ErrTaskNotPending) {
		t.Fatalf("expected ErrTaskNotPending, got %v", err)
	}
	if env.runner.calls.Load() != 0 {
		t.Error("cancelled task must not run")
	}
	if len(env.publisher.published()) != 0 {
		t.Error("nothing should be published")
	}
}

func TestProcessTask_NotFound(t *testing.T) {
	env := newTestEnv(t, 2)

	err := env.worker.processTask(context.Background(), uuid.New())
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestProcessTask_InFlight(t *testing.T) {
	env := newTestEnv(t, 2)
	task := env.pending(t, "acc-1")

	if !env.worker.claim(task.ID) {
		t.Fatal("first claim should succeed")
	}
	defer env.worker.unclaim(task.ID)

	err := env.worker.processTask(context.Background(), task.ID)
	if !errors.Is(err, ErrTaskInFlight) {
		t.Fatalf("expected ErrTaskInFlight, got %v", err)
	}
	if env.runner.calls.Load() != 0 {
		t.Error("in-flight task must not run twice")
	}
}

func TestProcessTask_StoppedWhileWaitingForSlot(t *testing.T) {
	env := newTestEnv(t, 1)
	task := env.pending(t, "acc-1")

	// Единственный слот занят
	if err := env.worker.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer env.worker.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.worker.processTask(ctx, task.ID)
	if !errors.Is(err, ErrWorkerStopped) {
		t.Fatalf("expected ErrWorkerStopped, got %v", err)
	}

	// Task остался PENDING и подхватится после рестарта
	stored, _ := env.store.Tasks.GetByID(context.Background(), task.ID)
	if stored.State != domain.TaskStatePending {
		t.Errorf("expected PENDING, got %s", stored.State)
	}
}

// --- handleSendRequested ---

func TestHandleSendRequested(t *testing.T) {
	env := newTestEnv(t, 2)
	task := env.pending(t, "acc-1")

	if err := env.worker.handleSendRequested(context.Background(), requestDelivery(task.ID)); err != nil {
		t.Fatalf("handleSendRequested() error: %v", err)
	}

	stored, _ := env.store.Tasks.GetByID(context.Background(), task.ID)
	if stored.State != domain.TaskStateCompleted {
		t.Errorf("expected COMPLETED, got %s", stored.State)
	}

	// Повторная доставка того же запроса подтверждается без исполнения
	if err := env.worker.handleSendRequested(context.Background(), requestDelivery(task.ID)); err != nil {
		t.Fatalf("redelivery should be acked, got %v", err)
	}
	if env.runner.calls.Load() != 1 {
		t.Errorf("expected 1 run, got %d", env.runner.calls.Load())
	}
}

func TestHandleSendRequested_UnknownTaskIsAcked(t *testing.T) {
	env := newTestEnv(t, 2)

	if err := env.worker.handleSendRequested(context.Background(), requestDelivery(uuid.New())); err != nil {
		t.Errorf("unknown task should be acked, got %v", err)
	}
}

func TestHandleSendRequested_RunErrorIsRetried(t *testing.T) {
	env := newTestEnv(t, 2)
	env.runner.err = errors.New("database is down")
	task := env.pending(t, "acc-1")

	if err := env.worker.handleSendRequested(context.Background(), requestDelivery(task.ID)); err == nil {
		t.Error("expected error so the message is requeued")
	}
}

func TestHandleSendRequested_AccountNotFoundIsAcked(t *testing.T) {
	env := newTestEnv(t, 2)
	env.runner.err = lease.ErrAccountNotFound
	task := env.pending(t, "ghost")

	if err := env.worker.handleSendRequested(context.Background(), requestDelivery(task.ID)); err != nil {
		t.Errorf("missing account should be acked, got %v", err)
	}
}

func TestHandleSendRequested_BadPayload(t *testing.T) {
	env := newTestEnv(t, 2)
	d := &mq.Delivery{Message: mq.Message{Payload: "not an object"}}

	if err := env.worker.handleSendRequested(context.Background(), d); err == nil {
		t.Error("expected parse error")
	}
}

// --- poll ---

func TestPoll_RespectsMaxConcurrent(t *testing.T) {
	env := newTestEnv(t, 2)
	env.runner.delay = 20 * time.Millisecond

	for range 6 {
		env.pending(t, "acc-1")
	}

	env.worker.poll(context.Background())

	if got := env.runner.calls.Load(); got != 6 {
		t.Errorf("expected 6 runs, got %d", got)
	}
	if peak := env.runner.peak.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent sends, got %d", peak)
	}
	if got := len(env.publisher.published()); got != 6 {
		t.Errorf("expected 6 completions, got %d", got)
	}

	pending, _ := env.store.Tasks.ListPending(context.Background(), 0)
	if len(pending) != 0 {
		t.Errorf("expected no pending tasks, got %d", len(pending))
	}
}

func TestPoll_BatchSize(t *testing.T) {
	env := newTestEnv(t, 2)
	env.worker.batchSize = 3

	for range 5 {
		env.pending(t, "acc-1")
	}

	env.worker.poll(context.Background())

	pending, _ := env.store.Tasks.ListPending(context.Background(), 0)
	if len(pending) != 2 {
		t.Errorf("expected 2 tasks left for the next poll, got %d", len(pending))
	}
}

// --- recoverOrphans ---

func TestRecoverOrphans(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	leased := env.pending(t, "acc-1")
	leased.MarkLeased(time.Now())
	if err := env.store.Tasks.Transition(ctx, leased, domain.TaskStatePending); err != nil {
		t.Fatal(err)
	}

	dispatched := env.pending(t, "acc-2")
	dispatched.MarkLeased(time.Now())
	dispatched.MarkEligible()
	dispatched.MarkDispatched(&domain.Contact{ID: "c1", JID: "c1@c.us"}, time.Now())
	if err := env.store.Tasks.Transition(ctx, dispatched, domain.TaskStatePending); err != nil {
		t.Fatal(err)
	}

	untouched := env.pending(t, "acc-3")

	if err := env.worker.recoverOrphans(ctx); err != nil {
		t.Fatalf("recoverOrphans() error: %v", err)
	}

	got, _ := env.store.Tasks.GetByID(ctx, leased.ID)
	if got.State != domain.TaskStateAborted || got.Reason != domain.ReasonCancelled {
		t.Errorf("leased orphan: got %s/%s", got.State, got.Reason)
	}

	got, _ = env.store.Tasks.GetByID(ctx, dispatched.ID)
	if got.State != domain.TaskStateAborted || got.Reason != domain.ReasonPersistenceError {
		t.Errorf("dispatched orphan: got %s/%s", got.State, got.Reason)
	}

	got, _ = env.store.Tasks.GetByID(ctx, untouched.ID)
	if got.State != domain.TaskStatePending {
		t.Errorf("pending task must stay pending, got %s", got.State)
	}

	if n := len(env.publisher.published()); n != 2 {
		t.Errorf("expected 2 completions, got %d", n)
	}
}

// --- Lifecycle ---

func TestStartStop_WithoutBroker(t *testing.T) {
	env := newTestEnv(t, 2)
	sweeper := &fakeSweeper{}
	env.worker.sweeper = sweeper
	task := env.pending(t, "acc-1")

	if err := env.worker.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Первый poll выполняется сразу при старте
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, _ := env.store.Tasks.GetByID(context.Background(), task.ID)
		if stored.IsFinished() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	env.worker.Stop()

	if !env.worker.IsStopped() {
		t.Error("expected worker stopped")
	}
	if !sweeper.started.Load() || !sweeper.stopped.Load() {
		t.Error("expected sweeper started and stopped with the worker")
	}
	stored, _ := env.store.Tasks.GetByID(context.Background(), task.ID)
	if !stored.IsFinished() {
		t.Errorf("expected task finished by initial poll, got %s", stored.State)
	}
}

// --- With the real scheduler ---

func TestPoll_WithScheduler(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	for _, id := range []string{"acc-1", "acc-2", "acc-3"} {
		if err := store.Accounts.Create(ctx, domain.NewAccount(id, "/profiles/"+id, "", 10)); err != nil {
			t.Fatal(err)
		}
	}

	drv := driver.NewStatic(
		driver.Candidate{JID: "1@c.us", Name: "Анна"},
		driver.Candidate{JID: "2@c.us", Name: "Борис"},
		driver.Candidate{JID: "3@c.us", Name: "Вера"},
	)

	leases := lease.NewManager(lease.Config{Store: store.Accounts})
	sched := scheduler.New(scheduler.Config{
		Accounts: store.Accounts,
		Contacts: store.Contacts,
		Messages: store.Messages,
		Tasks:    store.Tasks,
		Leases:   leases,
		Policy:   quota.Policy{FailureCap: 3, Location: time.UTC},
		Driver:   drv,
		Simulate: true,
	})

	publisher := &fakePublisher{}
	w := New(Config{
		Tasks:         store.Tasks,
		Runner:        sched,
		Publisher:     publisher,
		MaxConcurrent: 2,
	})

	var ids []uuid.UUID
	for _, acc := range []string{"acc-1", "acc-2", "acc-3"} {
		task := domain.NewSendTask(acc, "Привет, {{ .Name }}!", nil)
		if err := store.Tasks.Create(ctx, task); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, task.ID)
	}

	w.poll(ctx)

	for _, id := range ids {
		task, _ := store.Tasks.GetByID(ctx, id)
		if task.State != domain.TaskStateCompleted || task.Reason != domain.ReasonSimulated {
			t.Errorf("task %s: got %s/%s (%s)", id, task.State, task.Reason, task.Detail)
		}
	}

	if store.Messages.Len() != 3 {
		t.Errorf("expected 3 log entries, got %d", store.Messages.Len())
	}
	if len(drv.Sent()) != 0 {
		t.Error("simulated sends must not reach the driver")
	}
	if leases.Held() != 0 {
		t.Errorf("expected all leases released, got %d", leases.Held())
	}
	if len(publisher.published()) != 3 {
		t.Errorf("expected 3 completions, got %d", len(publisher.published()))
	}
}
