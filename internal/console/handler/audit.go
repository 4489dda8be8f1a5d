package handler

import (
	"context"
	"net/http"

	"github.com/xela07ax/crmflow-prototype/internal/audit"
)

type auditService interface {
	FetchChanges(ctx context.Context, workspaceID, entityType, entityID string) ([]audit.ChangeEvent, error)
}

type AuditHandler struct {
	service auditService
}

func NewAuditHandler(s auditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetChanges возвращает журнал изменений workspace с поддержкой фильтрации.
// GET /workspaces/{workspaceID}/audit?entity_type=agent&entity_id=...
func (h *AuditHandler) GetChanges(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := authorizeWorkspace(w, r)
	if !ok {
		return
	}

	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")

	changes, err := h.service.FetchChanges(r.Context(), workspaceID, entityType, entityID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"changes": changes})
}
