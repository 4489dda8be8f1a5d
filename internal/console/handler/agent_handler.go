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

// agentService — контракт хендлера к сервисному слою (узкий, ради тестов)
type agentService interface {
	GetAgent(ctx context.Context, workspaceID, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context, workspaceID string) ([]*domain.Agent, error)
	CreateAgent(ctx context.Context, workspaceID, name, editorID string) (*domain.Agent, error)
	SaveSection(ctx context.Context, workspaceID, agentID string, sec domain.Section, value json.RawMessage, expected time.Time, editorID string) (time.Time, error)
	ChangeStatus(ctx context.Context, workspaceID, agentID string, next domain.AgentStatus, expected time.Time, editorID string) (time.Time, error)
}

type AgentHandler struct {
	service agentService
}

func NewAgentHandler(s agentService) *AgentHandler {
	return &AgentHandler{service: s}
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	agents, err := h.service.ListAgents(r.Context(), workspaceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"agents": agents})
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	agent, err := h.service.GetAgent(r.Context(), workspaceID, chi.URLParam(r, "agentID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"agent": agent})
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	agent, err := h.service.CreateAgent(r.Context(), workspaceID, req.Name, auth.UserID(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"agent": agent})
}

// SaveSection принимает сохранение одного слайса агента.
// PATCH /workspaces/{workspaceID}/agents/{agentID}/sections/{section}
// Тело: {"value": <json>, "expected_updated_at": "<RFC3339Nano>"}
// Ответ 200 несет новый updated_at — клиент обязан заменить им общий токен.
func (h *AgentHandler) SaveSection(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	sec := domain.Section(chi.URLParam(r, "section"))
	if !sec.Valid() {
		respondError(w, http.StatusBadRequest, "unknown section")
		return
	}

	var req struct {
		Value             json.RawMessage `json:"value"`
		ExpectedUpdatedAt time.Time       `json:"expected_updated_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Value) == 0 || req.ExpectedUpdatedAt.IsZero() {
		respondError(w, http.StatusBadRequest, "value and expected_updated_at are required")
		return
	}

	newToken, err := h.service.SaveSection(r.Context(),
		workspaceID, chi.URLParam(r, "agentID"),
		sec, req.Value, req.ExpectedUpdatedAt, auth.UserID(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"updated_at": newToken})
}

// ChangeStatus переключает статус агента (draft/live/paused) по тому же
// протоколу expected_updated_at, что и секции.
func (h *AgentHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	var req struct {
		Status            domain.AgentStatus `json:"status"`
		ExpectedUpdatedAt time.Time          `json:"expected_updated_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Status == "" || req.ExpectedUpdatedAt.IsZero() {
		respondError(w, http.StatusBadRequest, "status and expected_updated_at are required")
		return
	}

	newToken, err := h.service.ChangeStatus(r.Context(),
		workspaceID, chi.URLParam(r, "agentID"),
		req.Status, req.ExpectedUpdatedAt, auth.UserID(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"updated_at": newToken})
}
