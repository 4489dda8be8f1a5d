package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/internal/infra/auth"
)

type pipelineService interface {
	ListPipelines(ctx context.Context, workspaceID string) ([]*domain.Pipeline, error)
	GetPipeline(ctx context.Context, workspaceID, id string) (*domain.Pipeline, error)
	CreatePipeline(ctx context.Context, workspaceID, name string, stages []domain.Stage) (*domain.Pipeline, error)
	ListOpportunities(ctx context.Context, workspaceID, pipelineID string) ([]*domain.Opportunity, error)
	CreateOpportunity(ctx context.Context, o *domain.Opportunity) (*domain.Opportunity, error)
	UpdateOpportunity(ctx context.Context, workspaceID, pipelineID, id, stageID, title string, amount float64, expected time.Time, editorID string) (time.Time, error)
}

type PipelineHandler struct {
	service pipelineService
}

func NewPipelineHandler(s pipelineService) *PipelineHandler {
	return &PipelineHandler{service: s}
}

func (h *PipelineHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	pipelines, err := h.service.ListPipelines(r.Context(), workspaceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"pipelines": pipelines})
}

func (h *PipelineHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	pipeline, err := h.service.GetPipeline(r.Context(), workspaceID, chi.URLParam(r, "pipelineID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"pipeline": pipeline})
}

func (h *PipelineHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	var req struct {
		Name   string         `json:"name"`
		Stages []domain.Stage `json:"stages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	pipeline, err := h.service.CreatePipeline(r.Context(), workspaceID, req.Name, req.Stages)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"pipeline": pipeline})
}

func (h *PipelineHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	opps, err := h.service.ListOpportunities(r.Context(), workspaceID, chi.URLParam(r, "pipelineID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"opportunities": opps})
}

func (h *PipelineHandler) CreateOpportunity(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	var req struct {
		StageID   string  `json:"stage_id"`
		Title     string  `json:"title"`
		Amount    float64 `json:"amount"`
		ContactID string  `json:"contact_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	opp := &domain.Opportunity{
		WorkspaceID: workspaceID,
		PipelineID:  chi.URLParam(r, "pipelineID"),
		StageID:     req.StageID,
		Title:       req.Title,
		Amount:      req.Amount,
		ContactID:   req.ContactID,
		UpdatedBy:   auth.UserID(r.Context()),
	}

	created, err := h.service.CreateOpportunity(r.Context(), opp)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"opportunity": created})
}

// UpdateOpportunity двигает сделку по стадиям с тем же токеном, что и секции агента.
// PATCH /workspaces/{workspaceID}/pipelines/{pipelineID}/opportunities/{opportunityID}
func (h *PipelineHandler) UpdateOpportunity(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	var req struct {
		StageID           string    `json:"stage_id"`
		Title             string    `json:"title"`
		Amount            float64   `json:"amount"`
		ExpectedUpdatedAt time.Time `json:"expected_updated_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ExpectedUpdatedAt.IsZero() {
		respondError(w, http.StatusBadRequest, "expected_updated_at is required")
		return
	}

	newToken, err := h.service.UpdateOpportunity(r.Context(),
		workspaceID, chi.URLParam(r, "pipelineID"), chi.URLParam(r, "opportunityID"),
		req.StageID, req.Title, req.Amount, req.ExpectedUpdatedAt, auth.UserID(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"updated_at": newToken})
}
