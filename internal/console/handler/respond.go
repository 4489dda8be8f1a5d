package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/internal/infra/auth"
)

// Единый конверт ответов консоли:
//
//	успех     -> 200 {"success": true, ...payload}
//	конфликт  -> 409 {"success": false, "conflict": {"updated_by", "updated_at"}}
//	валидация -> 422 {"success": false, "error": "...", "details": [{path, message}]}
//	права     -> 403 {"success": false, "error": "permission denied"}
func respondJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondSuccess(w http.ResponseWriter, payload map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	respondJSON(w, http.StatusOK, body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

// respondDomainError отображает доменные ошибки в HTTP-статусы конверта.
// Порядок веток важен: ConflictError и ValidationError — указательные типы,
// сентинели проверяются через errors.Is.
func respondDomainError(w http.ResponseWriter, err error) {
	var conflict *domain.ConflictError
	var validation *domain.ValidationError

	switch {
	case errors.As(err, &conflict):
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"success":  false,
			"conflict": conflict,
		})
	case errors.As(err, &validation):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"success": false,
			"error":   "validation failed",
			"details": validation.Details,
		})
	case errors.Is(err, domain.ErrInvalidTransition):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"success": false,
			"error":   "validation failed",
			"details": []domain.FieldError{{Path: "status", Message: "invalid status transition"}},
		})
	case errors.Is(err, domain.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnknownSection):
		respondError(w, http.StatusBadRequest, "unknown section")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// authorizeWorkspace достает workspaceID из URL и проверяет scope токена.
// Отказ в правах — это 403 с уведомлением, клиент НЕ показывает окно конфликта.
func authorizeWorkspace(w http.ResponseWriter, r *http.Request) (string, bool) {
	workspaceID := chi.URLParam(r, "workspaceID")
	if workspaceID == "" {
		respondError(w, http.StatusBadRequest, "workspaceID is required")
		return "", false
	}

	claims := auth.Claims(r.Context())
	if claims == nil || !claims.AllowsWorkspace(workspaceID) {
		respondError(w, http.StatusForbidden, "permission denied")
		return "", false
	}
	return workspaceID, true
}
