package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/repo"
)

// publishLimit — сколько send.requested публикуется параллельно.
const publishLimit = 8

// CreateBulk создаёт bulk-рассылку и её task'и.
// POST /api/v1/bulk-sends
//
// per_account — по task на каждый аккаунт (account_ids или все активные).
// round_robin — count task'ов по кругу по активным аккаунтам.
func (h *Handler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req CreateBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Mode == "" {
		req.Mode = domain.BulkModePerAccount
	}
	switch req.Mode {
	case domain.BulkModePerAccount:
	case domain.BulkModeRoundRobin:
		if req.Count <= 0 {
			BadRequest(w, "count must be positive for round_robin")
			return
		}
	default:
		BadRequest(w, "mode must be per_account or round_robin")
		return
	}

	if !h.checkMessage(w, r, req.Message, req.TemplateID) {
		return
	}

	accountIDs, err := h.bulkAccounts(r.Context(), req.AccountIDs)
	if errors.Is(err, repo.ErrNotFound) {
		NotFound(w, "account not found")
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	if len(accountIDs) == 0 {
		InvalidState(w, "no active accounts")
		return
	}

	assigned := accountIDs
	if req.Mode == domain.BulkModeRoundRobin {
		assigned = make([]string, req.Count)
		for i := range assigned {
			assigned[i] = accountIDs[i%len(accountIDs)]
		}
	}

	bulk := domain.NewBulk(req.Mode, req.Message, req.TemplateID)
	bulk.Total = len(assigned)
	if err := h.bulks.Create(r.Context(), bulk); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	tasks := make([]*domain.SendTask, len(assigned))
	for i, accountID := range assigned {
		task := domain.NewSendTask(accountID, req.Message, req.TemplateID)
		task.BulkID = &bulk.ID
		tasks[i] = task
	}
	if err := h.tasks.CreateBatch(r.Context(), tasks); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	// RUNNING выставляется после создания всех task'ов, иначе orchestrator
	// мог бы финализировать bulk по неполному списку.
	bulk.MarkRunning()
	if err := h.bulks.Update(r.Context(), bulk); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.publishAll(r.Context(), tasks)

	h.logger.Info("bulk created",
		"bulk_id", bulk.ID,
		"mode", bulk.Mode,
		"tasks", bulk.Total,
	)

	ids := make([]uuid.UUID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	Accepted(w, BulkResponse{Bulk: *bulk, TaskIDs: ids})
}

// ListBulks возвращает последние bulk-рассылки.
// GET /api/v1/bulk-sends?limit=...
func (h *Handler) ListBulks(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}

	bulks, err := h.bulks.List(r.Context(), limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]BulkResponse, len(bulks))
	for i, b := range bulks {
		result[i] = BulkResponse{Bulk: b}
	}
	List(w, result, len(result))
}

// GetBulk возвращает bulk со сводкой по task'ам.
// GET /api/v1/bulk-sends/{id}
func (h *Handler) GetBulk(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid bulk id")
		return
	}

	if h.tracker != nil {
		progress, err := h.tracker.Progress(r.Context(), id)
		if HandleRepoError(w, h.logger, err, "bulk not found") {
			return
		}
		Success(w, BulkFromProgress(progress))
		return
	}

	bulk, err := h.bulks.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "bulk not found") {
		return
	}
	tasks, err := h.tasks.ListByBulk(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	summary := domain.Summarize(tasks)
	Success(w, BulkResponse{Bulk: *bulk, Summary: &summary})
}

// ListBulkTasks возвращает task'и bulk.
// GET /api/v1/bulk-sends/{id}/tasks
func (h *Handler) ListBulkTasks(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid bulk id")
		return
	}

	if _, err := h.bulks.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "bulk not found") {
		return
	}

	tasks, err := h.tasks.ListByBulk(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, tasksFromDomain(tasks), len(tasks))
}

// bulkAccounts возвращает аккаунты рассылки: явно заданные (каждый должен
// существовать) или все активные.
func (h *Handler) bulkAccounts(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) > 0 {
		result := make([]string, 0, len(ids))
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if _, err := h.accounts.GetByID(ctx, id); err != nil {
				return nil, err
			}
			result = append(result, id)
		}
		return result, nil
	}

	accounts, err := h.accounts.List(ctx, repo.AccountFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	result := make([]string, len(accounts))
	for i, acc := range accounts {
		result[i] = acc.ID
	}
	return result, nil
}

// publishAll публикует send.requested для всех task'ов bulk.
// Ошибки только логируются: task'и подхватит polling воркера.
func (h *Handler) publishAll(ctx context.Context, tasks []*domain.SendTask) {
	if h.publisher == nil {
		return
	}

	var g errgroup.Group
	g.SetLimit(publishLimit)
	for _, task := range tasks {
		g.Go(func() error {
			h.enqueue(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
}
