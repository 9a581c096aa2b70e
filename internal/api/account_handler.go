package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/repo"
)

// ListAccounts возвращает аккаунты.
// GET /api/v1/accounts?status=...&active=true
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	filter := repo.AccountFilter{}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.ParseAccountStatus(status)
	}
	if active := r.URL.Query().Get("active"); active != "" {
		v, err := strconv.ParseBool(active)
		if err != nil {
			BadRequest(w, "invalid active flag")
			return
		}
		filter.ActiveOnly = v
	}

	accounts, err := h.accounts.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	now := time.Now()
	result := make([]AccountResponse, len(accounts))
	for i, acc := range accounts {
		result[i] = AccountFromDomain(acc, h.policy, now)
	}

	List(w, result, len(result))
}

// CreateAccount регистрирует аккаунт.
// POST /api/v1/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AccountID == "" {
		BadRequest(w, "account_id is required")
		return
	}
	if strings.TrimSpace(req.ProfilePath) == "" {
		BadRequest(w, "profile_path is required")
		return
	}

	limit := h.defaultDailyLimit
	if req.DailyLimit != nil {
		if *req.DailyLimit < 0 {
			BadRequest(w, "daily_limit must not be negative")
			return
		}
		limit = *req.DailyLimit
	}

	acc := domain.NewAccount(req.AccountID, req.ProfilePath, req.Phone, limit)
	if err := h.accounts.Create(r.Context(), acc); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			Conflict(w, "account already exists")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("account registered", "account_id", acc.ID, "daily_limit", acc.DailyLimit)
	Created(w, AccountFromDomain(*acc, h.policy, time.Now()))
}

// GetAccount возвращает аккаунт.
// GET /api/v1/accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "account not found") {
		return
	}

	Success(w, AccountFromDomain(*acc, h.policy, time.Now()))
}

// UpdateAccount изменяет профиль, телефон или дневной лимит.
// PATCH /api/v1/accounts/{id}
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.DailyLimit != nil && *req.DailyLimit < 0 {
		BadRequest(w, "daily_limit must not be negative")
		return
	}
	if req.ProfilePath != nil && strings.TrimSpace(*req.ProfilePath) == "" {
		BadRequest(w, "profile_path must not be empty")
		return
	}

	acc, err := h.accounts.UpdateAccount(r.Context(), r.PathValue("id"), func(acc *domain.Account) error {
		if req.ProfilePath != nil {
			acc.ProfilePath = *req.ProfilePath
		}
		if req.Phone != nil {
			acc.Phone = *req.Phone
		}
		if req.DailyLimit != nil {
			acc.DailyLimit = *req.DailyLimit
		}
		acc.UpdatedAt = time.Now()
		return nil
	})
	if HandleRepoError(w, h.logger, err, "account not found") {
		return
	}

	Success(w, AccountFromDomain(*acc, h.policy, time.Now()))
}

// EnableAccount включает аккаунт и сбрасывает счётчик неудач.
// POST /api/v1/accounts/{id}/enable
func (h *Handler) EnableAccount(w http.ResponseWriter, r *http.Request) {
	h.setAccountEnabled(w, r, true)
}

// DisableAccount выключает аккаунт.
// POST /api/v1/accounts/{id}/disable
func (h *Handler) DisableAccount(w http.ResponseWriter, r *http.Request) {
	h.setAccountEnabled(w, r, false)
}

func (h *Handler) setAccountEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	acc, err := h.accounts.UpdateAccount(r.Context(), r.PathValue("id"), func(acc *domain.Account) error {
		if enabled {
			acc.Enable()
		} else {
			acc.Disable()
		}
		return nil
	})
	if HandleRepoError(w, h.logger, err, "account not found") {
		return
	}

	h.logger.Info("account toggled", "account_id", acc.ID, "enabled", enabled)
	Success(w, AccountFromDomain(*acc, h.policy, time.Now()))
}

// DeleteAccount удаляет аккаунт. Занятый аккаунт удалить нельзя.
// DELETE /api/v1/accounts/{id}
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	err := h.accounts.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, repo.ErrInvalidState) {
		Conflict(w, "account is in use")
		return
	}
	if HandleRepoError(w, h.logger, err, "account not found") {
		return
	}

	NoContent(w)
}
