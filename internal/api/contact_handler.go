package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/repo"
)

// ImportContacts добавляет контакты или обновляет существующие.
// POST /api/v1/contacts
//
// Записи без jid и имени пропускаются. Статус существующих контактов
// не меняется.
func (h *Handler) ImportContacts(w http.ResponseWriter, r *http.Request) {
	var req ImportContactsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	resp := ImportContactsResponse{Received: len(req.Contacts)}

	contacts := make([]domain.Contact, 0, len(req.Contacts))
	index := make(map[string]int, len(req.Contacts))
	for _, in := range req.Contacts {
		if strings.TrimSpace(in.JID) == "" && strings.TrimSpace(in.Name) == "" {
			resp.Skipped++
			continue
		}

		c := domain.NewContact(in.JID, in.Name)
		c.Metadata = in.Metadata

		// Повтор в одном запросе: последняя запись побеждает
		if i, ok := index[c.ID]; ok {
			contacts[i] = *c
			resp.Skipped++
			continue
		}
		index[c.ID] = len(contacts)
		contacts = append(contacts, *c)
	}

	if len(contacts) > 0 {
		inserted, err := h.contacts.UpsertBatch(r.Context(), contacts)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}
		resp.Inserted = inserted
		resp.Updated = len(contacts) - inserted
	}

	h.logger.Info("contacts imported",
		"received", resp.Received,
		"inserted", resp.Inserted,
		"updated", resp.Updated,
	)
	Success(w, resp)
}

// ListContacts возвращает контакты.
// GET /api/v1/contacts?status=...&limit=...&offset=...
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 100)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	filter := repo.ContactFilter{Limit: limit, Offset: offset}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.ParseContactStatus(status)
	}

	contacts, err := h.contacts.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, contacts, len(contacts))
}

// GetContact возвращает контакт.
// GET /api/v1/contacts/{id}
func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	contact, err := h.contacts.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "contact not found") {
		return
	}

	Success(w, contact)
}

// InvalidateContact исключает контакт из рассылки.
// POST /api/v1/contacts/{id}/invalid
func (h *Handler) InvalidateContact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.contacts.MarkInvalid(r.Context(), id); HandleRepoError(w, h.logger, err, "contact not found") {
		return
	}

	contact, err := h.contacts.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "contact not found") {
		return
	}

	h.logger.Info("contact invalidated", "contact_id", id)
	Success(w, contact)
}
