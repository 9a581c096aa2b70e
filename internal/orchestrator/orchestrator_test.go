package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/repo/memstore"
)

// --- Helpers ---

func newTestOrchestrator(store *memstore.Store) *Orchestrator {
	return New(Config{
		Tasks:            store.Tasks,
		Bulks:            store.Bulks,
		WaitPollInterval: 10 * time.Millisecond,
	})
}

func createTask(t *testing.T, store *memstore.Store, bulkID *uuid.UUID) *domain.SendTask {
	t.Helper()
	task := domain.NewSendTask("acc-1", "hello", nil)
	task.BulkID = bulkID
	if err := store.Tasks.Create(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func finishTask(t *testing.T, store *memstore.Store, task *domain.SendTask, result domain.MessageResult) {
	t.Helper()
	switch result {
	case "":
		task.Abort(domain.ReasonLeaseBusy, "busy", time.Now())
	case domain.MessageResultFailure:
		task.Complete(result, domain.ReasonSendError, "boom", time.Now())
	default:
		task.Complete(result, domain.ReasonSent, "sent", time.Now())
	}
	if err := store.Tasks.Transition(context.Background(), task, domain.TaskStatePending); err != nil {
		t.Fatalf("finish task: %v", err)
	}
}

func runningBulk(t *testing.T, store *memstore.Store, total int) *domain.Bulk {
	t.Helper()
	b := domain.NewBulk(domain.BulkModePerAccount, "hello", nil)
	b.Total = total
	b.MarkRunning()
	if err := store.Bulks.Create(context.Background(), b); err != nil {
		t.Fatalf("create bulk: %v", err)
	}
	return b
}

func bulkStatus(t *testing.T, store *memstore.Store, id uuid.UUID) *domain.Bulk {
	t.Helper()
	b, err := store.Bulks.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get bulk: %v", err)
	}
	return b
}

// --- waiterSet ---

func TestWaiterSet(t *testing.T) {
	w := newWaiterSet()
	task := domain.NewSendTask("acc-1", "hi", nil)

	ch1, done1 := w.add(task.ID)
	ch2, done2 := w.add(task.ID)
	defer done1()
	defer done2()

	if w.len() != 2 {
		t.Fatalf("expected 2 waiters, got %d", w.len())
	}

	task.Abort(domain.ReasonCancelled, "cancelled", time.Now())
	if n := w.notify(task); n != 2 {
		t.Errorf("expected 2 notified, got %d", n)
	}
	if w.len() != 0 {
		t.Errorf("expected waiters removed after notify, got %d", w.len())
	}

	for _, ch := range []<-chan domain.SendTask{ch1, ch2} {
		got := <-ch
		if got.ID != task.ID || got.State != domain.TaskStateAborted {
			t.Errorf("unexpected task: %+v", got)
		}
	}

	// Повторное уведомление никого не будит и не блокируется
	if n := w.notify(task); n != 0 {
		t.Errorf("expected 0 notified, got %d", n)
	}
}

func TestWaiterSet_Remove(t *testing.T) {
	w := newWaiterSet()
	id := uuid.New()

	_, done1 := w.add(id)
	_, done2 := w.add(id)

	done1()
	if w.len() != 1 {
		t.Errorf("expected 1 waiter, got %d", w.len())
	}
	done2()
	if w.len() != 0 {
		t.Errorf("expected 0 waiters, got %d", w.len())
	}
}

// --- Wait ---

func TestWait_AlreadyFinished(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)
	task := createTask(t, store, nil)
	finishTask(t, store, task, domain.MessageResultSuccess)

	got, err := o.Wait(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if got.State != domain.TaskStateCompleted {
		t.Errorf("expected COMPLETED, got %s", got.State)
	}
	if o.Waiters() != 0 {
		t.Errorf("expected no waiters left, got %d", o.Waiters())
	}
}

func TestWait_WokenByNotify(t *testing.T) {
	store := memstore.New()
	o := New(Config{
		Tasks:            store.Tasks,
		Bulks:            store.Bulks,
		WaitPollInterval: time.Hour, // только через Notify
	})
	task := createTask(t, store, nil)

	done := make(chan *domain.SendTask, 1)
	go func() {
		got, err := o.Wait(context.Background(), task.ID)
		if err != nil {
			t.Errorf("Wait() error: %v", err)
		}
		done <- got
	}()

	// Ждём, пока Wait зарегистрируется
	deadline := time.Now().Add(time.Second)
	for o.Waiters() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	finishTask(t, store, task, domain.MessageResultSimulated)
	if err := o.Notify(context.Background(), task); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	select {
	case got := <-done:
		if got == nil || got.Result != domain.MessageResultSimulated {
			t.Errorf("unexpected task: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait was not woken by Notify")
	}
}

func TestWait_FindsOutcomeByPolling(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)
	task := createTask(t, store, nil)

	go func() {
		time.Sleep(30 * time.Millisecond)
		task.Complete(domain.MessageResultFailure, domain.ReasonSendError, "boom", time.Now())
		store.Tasks.Transition(context.Background(), task, domain.TaskStatePending)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := o.Wait(ctx, task.ID)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if got.Reason != domain.ReasonSendError {
		t.Errorf("expected SEND_ERROR, got %s", got.Reason)
	}
}

func TestWait_Timeout(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)
	task := createTask(t, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	got, err := o.Wait(ctx, task.ID)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if got == nil || got.State != domain.TaskStatePending {
		t.Errorf("expected last known PENDING state, got %+v", got)
	}
	if o.Waiters() != 0 {
		t.Errorf("expected waiter removed, got %d", o.Waiters())
	}
}

func TestWait_NotFound(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)

	if _, err := o.Wait(context.Background(), uuid.New()); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestWait_Stopped(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)
	o.Stop()

	if _, err := o.Wait(context.Background(), uuid.New()); !errors.Is(err, ErrOrchestratorStopped) {
		t.Errorf("expected ErrOrchestratorStopped, got %v", err)
	}
}

// --- Bulk finalization ---

func TestNotify_FinalizesBulkWhenAllTasksFinished(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)
	b := runningBulk(t, store, 2)

	t1 := createTask(t, store, &b.ID)
	t2 := createTask(t, store, &b.ID)

	finishTask(t, store, t1, domain.MessageResultFailure)
	if err := o.Notify(context.Background(), t1); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if got := bulkStatus(t, store, b.ID); got.Status != domain.BulkStatusRunning {
		t.Fatalf("bulk with pending tasks must stay RUNNING, got %s", got.Status)
	}

	finishTask(t, store, t2, domain.MessageResultSuccess)
	if err := o.Notify(context.Background(), t2); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	got := bulkStatus(t, store, b.ID)
	if got.Status != domain.BulkStatusDone {
		t.Errorf("expected DONE, got %s", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at set")
	}
}

func TestNotify_BulkWithoutSuccessFails(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)
	b := runningBulk(t, store, 2)

	t1 := createTask(t, store, &b.ID)
	t2 := createTask(t, store, &b.ID)
	finishTask(t, store, t1, "")
	finishTask(t, store, t2, domain.MessageResultFailure)

	if err := o.Notify(context.Background(), t2); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	got := bulkStatus(t, store, b.ID)
	if got.Status != domain.BulkStatusFailed || got.Error == "" {
		t.Errorf("expected FAILED with error, got %s %q", got.Status, got.Error)
	}
}

func TestRefreshBulk_PendingBulkNotFinalized(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)

	// Bulk ещё наполняется: task'ов пока нет
	b := domain.NewBulk(domain.BulkModeRoundRobin, "hi", nil)
	b.Total = 3
	if err := store.Bulks.Create(context.Background(), b); err != nil {
		t.Fatal(err)
	}

	progress, err := o.refreshBulk(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("refreshBulk() error: %v", err)
	}
	if progress.Bulk.Status != domain.BulkStatusPending {
		t.Errorf("expected PENDING, got %s", progress.Bulk.Status)
	}
}

func TestRefreshBulk_WaitsForAllTasksCreated(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)
	b := runningBulk(t, store, 3)

	task := createTask(t, store, &b.ID)
	finishTask(t, store, task, domain.MessageResultSuccess)

	progress, err := o.refreshBulk(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("refreshBulk() error: %v", err)
	}
	if progress.Bulk.Status != domain.BulkStatusRunning {
		t.Errorf("expected RUNNING while tasks are missing, got %s", progress.Bulk.Status)
	}
	if progress.Summary.Succeeded != 1 {
		t.Errorf("expected 1 succeeded, got %d", progress.Summary.Succeeded)
	}
}

func TestPoll_FinalizesMissedBulk(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)
	b := runningBulk(t, store, 1)

	task := createTask(t, store, &b.ID)
	finishTask(t, store, task, domain.MessageResultSimulated)

	// Событие send.completed потерялось, bulk подхватывает poll
	o.poll(context.Background())

	if got := bulkStatus(t, store, b.ID); got.Status != domain.BulkStatusDone {
		t.Errorf("expected DONE, got %s", got.Status)
	}
}

func TestProgress(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)
	b := runningBulk(t, store, 2)

	t1 := createTask(t, store, &b.ID)
	createTask(t, store, &b.ID)
	finishTask(t, store, t1, domain.MessageResultSuccess)

	progress, err := o.Progress(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Progress() error: %v", err)
	}
	if progress.Summary.Total != 2 || progress.Summary.Pending != 1 || progress.Summary.Succeeded != 1 {
		t.Errorf("unexpected summary: %+v", progress.Summary)
	}
}

// --- handleSendCompleted ---

func TestHandleSendCompleted(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)
	b := runningBulk(t, store, 1)
	task := createTask(t, store, &b.ID)
	finishTask(t, store, task, domain.MessageResultSuccess)

	d := &mq.Delivery{Message: mq.Message{
		Type:    mq.MessageTypeSendCompleted,
		Payload: mq.NewSendCompleted(task),
	}}
	if err := o.handleSendCompleted(context.Background(), d); err != nil {
		t.Fatalf("handleSendCompleted() error: %v", err)
	}

	if got := bulkStatus(t, store, b.ID); got.Status != domain.BulkStatusDone {
		t.Errorf("expected DONE, got %s", got.Status)
	}
}

func TestHandleSendCompleted_UnknownTaskIsAcked(t *testing.T) {
	store := memstore.New()
	o := newTestOrchestrator(store)

	d := &mq.Delivery{Message: mq.Message{
		Type:    mq.MessageTypeSendCompleted,
		Payload: mq.SendCompletedPayload{TaskID: uuid.New()},
	}}
	if err := o.handleSendCompleted(context.Background(), d); err != nil {
		t.Errorf("unknown task should be acked, got %v", err)
	}
}
