package api

import (
	"net/http"

	"github.com/shaiso/Courier/internal/repo"
)

// ListMessages возвращает журнал отправок, новые записи первыми.
// GET /api/v1/messages?account_id=...&limit=...
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 100)
	if !ok {
		return
	}

	entries, err := h.messages.List(r.Context(), repo.MessageFilter{
		AccountID: r.URL.Query().Get("account_id"),
		Limit:     limit,
	})
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, entries, len(entries))
}
