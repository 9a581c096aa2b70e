package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, chain(fn))
	}

	// Accounts
	handle("GET /api/v1/accounts", h.ListAccounts)
	handle("POST /api/v1/accounts", h.CreateAccount)
	handle("GET /api/v1/accounts/{id}", h.GetAccount)
	handle("PATCH /api/v1/accounts/{id}", h.UpdateAccount)
	handle("DELETE /api/v1/accounts/{id}", h.DeleteAccount)
	handle("POST /api/v1/accounts/{id}/enable", h.EnableAccount)
	handle("POST /api/v1/accounts/{id}/disable", h.DisableAccount)

	// Sends
	handle("POST /api/v1/accounts/{id}/send", h.Send)
	handle("GET /api/v1/tasks", h.ListTasks)
	handle("GET /api/v1/tasks/{id}", h.GetTask)
	handle("POST /api/v1/tasks/{id}/cancel", h.CancelTask)

	// Bulk sends
	handle("GET /api/v1/bulk-sends", h.ListBulks)
	handle("POST /api/v1/bulk-sends", h.CreateBulk)
	handle("GET /api/v1/bulk-sends/{id}", h.GetBulk)
	handle("GET /api/v1/bulk-sends/{id}/tasks", h.ListBulkTasks)

	// Contacts
	handle("GET /api/v1/contacts", h.ListContacts)
	handle("POST /api/v1/contacts", h.ImportContacts)
	handle("GET /api/v1/contacts/{id}", h.GetContact)
	handle("POST /api/v1/contacts/{id}/invalid", h.InvalidateContact)

	// Templates
	handle("GET /api/v1/templates", h.ListTemplates)
	handle("POST /api/v1/templates", h.CreateTemplate)
	handle("GET /api/v1/templates/{id}", h.GetTemplate)
	handle("DELETE /api/v1/templates/{id}", h.DeleteTemplate)
	handle("POST /api/v1/templates/{id}/preview", h.PreviewTemplate)

	// Message log
	handle("GET /api/v1/messages", h.ListMessages)
}
