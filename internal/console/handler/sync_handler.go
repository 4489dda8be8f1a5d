package handler

import (
	"context"
	"net/http"

	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/internal/infra/auth"
)

type syncService interface {
	TriggerSync(ctx context.Context, workspaceID, userID string) (*domain.SyncRun, error)
	LastRun(ctx context.Context, workspaceID string) (*domain.SyncRun, error)
}

type SyncHandler struct {
	service syncService
}

func NewSyncHandler(s syncService) *SyncHandler {
	return &SyncHandler{service: s}
}

// Trigger запускает синхронизацию с Salesforce (асинхронно, через воркер).
// POST /workspaces/{workspaceID}/sync/salesforce
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	run, err := h.service.TriggerSync(r.Context(), workspaceID, auth.UserID(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"run": run})
}

// LastRun отдает последний запуск для статусной плашки.
// GET /workspaces/{workspaceID}/sync/salesforce
func (h *SyncHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	run, err := h.service.LastRun(r.Context(), workspaceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"run": run})
}
