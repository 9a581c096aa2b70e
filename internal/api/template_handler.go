package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/render"
	"github.com/shaiso/Courier/internal/repo"
)

// ListTemplates возвращает шаблоны сообщений.
// GET /api/v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, templates, len(templates))
}

// CreateTemplate создаёт шаблон. Имя уникально.
// POST /api/v1/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		BadRequest(w, "body is required")
		return
	}
	if err := render.Validate(req.Body); err != nil {
		BadRequest(w, err.Error())
		return
	}

	tmpl := &domain.Template{
		ID:        uuid.New(),
		Name:      req.Name,
		Body:      req.Body,
		CreatedAt: time.Now(),
	}
	if err := h.templates.Create(r.Context(), tmpl); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			Conflict(w, "template with this name already exists")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("template created", "template_id", tmpl.ID, "name", tmpl.Name)
	Created(w, tmpl)
}

// GetTemplate возвращает шаблон.
// GET /api/v1/templates/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	tmpl, err := h.templates.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}

	Success(w, tmpl)
}

// DeleteTemplate удаляет шаблон.
// DELETE /api/v1/templates/{id}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	if err := h.templates.Delete(r.Context(), id); HandleRepoError(w, h.logger, err, "template not found") {
		return
	}

	NoContent(w)
}

// PreviewTemplate рендерит шаблон для заданного контакта.
// POST /api/v1/templates/{id}/preview
func (h *Handler) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	var req PreviewTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	tmpl, err := h.templates.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}

	contact := domain.NewContact(req.Contact.JID, req.Contact.Name)
	contact.Metadata = req.Contact.Metadata

	msg, err := render.Message(tmpl.Body, contact, req.AccountID)
	if err != nil {
		InvalidState(w, err.Error())
		return
	}

	Success(w, PreviewTemplateResponse{Message: msg})
}
