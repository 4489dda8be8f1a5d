package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/internal/infra/auth"
)

type templateService interface {
	ListTemplates(ctx context.Context, workspaceID string) ([]*domain.Template, error)
	GetTemplate(ctx context.Context, workspaceID, id string) (*domain.Template, error)
	CreateTemplate(ctx context.Context, t *domain.Template) (*domain.Template, error)
	Generate(ctx context.Context, workspaceID string, req domain.GenerateRequest) (*domain.GeneratedTemplate, error)
}

type TemplateHandler struct {
	service templateService
}

func NewTemplateHandler(s templateService) *TemplateHandler {
	return &TemplateHandler{service: s}
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	templates, err := h.service.ListTemplates(r.Context(), workspaceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"templates": templates})
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	template, err := h.service.GetTemplate(r.Context(), workspaceID, chi.URLParam(r, "templateID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"template": template})
}

// Create сохраняет шаблон, принятый пользователем на шаге preview визарда.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	var req struct {
		Name    string              `json:"name"`
		Type    domain.TemplateType `json:"type"`
		Purpose string              `json:"purpose"`
		Tone    string              `json:"tone"`
		Subject string              `json:"subject"`
		HTML    string              `json:"html"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	template := &domain.Template{
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Type:        req.Type,
		Purpose:     req.Purpose,
		Tone:        req.Tone,
		Subject:     req.Subject,
		HTML:        req.HTML,
		CreatedBy:   auth.UserID(r.Context()),
	}

	created, err := h.service.CreateTemplate(r.Context(), template)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"template": created})
}

// Generate — побочный вызов шага preview: один запрос, один поход к AI-провайдеру.
// POST /workspaces/{workspaceID}/templates/generate
func (h *TemplateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	var req domain.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := h.service.Generate(r.Context(), workspaceID, req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"generated": result})
}
