package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/render"
	"github.com/shaiso/Courier/internal/repo"
)

// errMessageRequired — не задан ни текст, ни шаблон.
var errMessageRequired = errors.New("message or template_id is required")

// Send создаёт send task для аккаунта.
// POST /api/v1/accounts/{id}/send?wait=false
//
// По умолчанию ждёт финального состояния task (не дольше WaitTimeout)
// и возвращает 200. С wait=false или по истечении ожидания возвращает 202
// с текущим состоянием task.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	wait := true
	if v := r.URL.Query().Get("wait"); v != "" {
		wait = v != "false" && v != "0"
	}

	if !h.checkMessage(w, r, req.Message, req.TemplateID) {
		return
	}

	_, err := h.accounts.GetByID(r.Context(), accountID)
	if HandleRepoError(w, h.logger, err, "account not found") {
		return
	}

	task := domain.NewSendTask(accountID, req.Message, req.TemplateID)
	if err := h.tasks.Create(r.Context(), task); err != nil {
		InternalError(w, h.logger, err)
		return
	}
	h.enqueue(r.Context(), task)

	if !wait || h.tracker == nil {
		Accepted(w, TaskFromDomain(*task))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	finished, err := h.tracker.Wait(ctx, task.ID)
	switch {
	case err == nil:
		Success(w, TaskFromDomain(*finished))
	case ctx.Err() != nil:
		if finished == nil {
			finished = task
		}
		Accepted(w, TaskFromDomain(*finished))
	default:
		InternalError(w, h.logger, err)
	}
}

// ListTasks возвращает send task'и.
// GET /api/v1/tasks?account_id=...&state=...&limit=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}

	filter := repo.TaskFilter{
		AccountID: r.URL.Query().Get("account_id"),
		Limit:     limit,
	}
	if state := r.URL.Query().Get("state"); state != "" {
		filter.State = domain.ParseTaskState(strings.ToUpper(state))
	}

	tasks, err := h.tasks.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, tasksFromDomain(tasks), len(tasks))
}

// GetTask возвращает send task. Завершённые task'и читаются через кэш.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	if h.cache != nil {
		cached, ok, err := h.cache.GetTask(r.Context(), id)
		if err != nil {
			h.logger.Warn("task cache read failed", "task_id", id, "error", err)
		}
		if ok {
			Success(w, TaskFromDomain(*cached))
			return
		}
	}

	task, err := h.tasks.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	if task.IsFinished() {
		h.cacheTask(r.Context(), task)
	}

	Success(w, TaskFromDomain(*task))
}

// CancelTask отменяет task, который ещё не прошёл проверку квоты.
// POST /api/v1/tasks/{id}/cancel
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.tasks.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	if !task.CanCancel() {
		InvalidState(w, fmt.Sprintf("task is %s and can no longer be cancelled", task.State))
		return
	}

	task.Abort(domain.ReasonCancelled, "cancelled by request", time.Now())
	err = h.tasks.Transition(r.Context(), task, domain.TaskStatePending, domain.TaskStateLeased)
	if errors.Is(err, repo.ErrInvalidState) {
		// Воркер успел продвинуть task дальше
		current, getErr := h.tasks.GetByID(r.Context(), id)
		if HandleRepoError(w, h.logger, getErr, "task not found") {
			return
		}
		InvalidState(w, fmt.Sprintf("task is %s and can no longer be cancelled", current.State))
		return
	}
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	h.logger.Info("task cancelled", "task_id", task.ID, "account_id", task.AccountID)
	h.finished(r.Context(), task)

	Success(w, TaskFromDomain(*task))
}

// --- Helpers ---

// checkMessage проверяет текст и шаблон запроса. Пишет ответ об ошибке
// и возвращает false, если запрос некорректен.
func (h *Handler) checkMessage(w http.ResponseWriter, r *http.Request, message string, templateID *uuid.UUID) bool {
	if templateID == nil && strings.TrimSpace(message) == "" {
		BadRequest(w, errMessageRequired.Error())
		return false
	}

	if templateID != nil {
		_, err := h.templates.GetByID(r.Context(), *templateID)
		return !HandleRepoError(w, h.logger, err, "template not found")
	}

	if err := render.Validate(message); err != nil {
		BadRequest(w, err.Error())
		return false
	}
	return true
}

// enqueue публикует запрос на исполнение. Ошибка публикации не фатальна:
// воркер подхватит task через polling.
func (h *Handler) enqueue(ctx context.Context, task *domain.SendTask) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishSendRequested(ctx, task.ID, task.AccountID); err != nil {
		h.logger.Warn("failed to publish send.requested", "task_id", task.ID, "error", err)
	}
}

// finished сообщает о task, завершённом на стороне API (отмена).
func (h *Handler) finished(ctx context.Context, task *domain.SendTask) {
	h.cacheTask(ctx, task)
	if h.tracker == nil {
		return
	}
	if err := h.tracker.Notify(ctx, task); err != nil {
		h.logger.Warn("failed to notify task completion", "task_id", task.ID, "error", err)
	}
}

func (h *Handler) cacheTask(ctx context.Context, task *domain.SendTask) {
	if h.cache == nil {
		return
	}
	if err := h.cache.StoreTask(ctx, task); err != nil {
		h.logger.Warn("failed to cache task", "task_id", task.ID, "error", err)
	}
}

func tasksFromDomain(tasks []domain.SendTask) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}
	return result
}
