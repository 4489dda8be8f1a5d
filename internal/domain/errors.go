package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownSection    = errors.New("unknown agent section")

	// ErrPermissionDenied — отсутствие scope на workspace. Маппится в HTTP 403.
	// Клиент обязан показать уведомление о правах, но НЕ окно конфликта.
	ErrPermissionDenied = errors.New("permission denied")
)

// ConflictError — отказ оптимистичной блокировки (HTTP 409).
// Несем метаданные о том, кто и когда успел обновить ресурс,
// чтобы клиент показал их в окне разрешения конфликта.
type ConflictError struct {
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: resource updated by %s at %s", e.UpdatedBy, e.UpdatedAt.Format(time.RFC3339))
}

// FieldError — структурированная ошибка валидации одного поля.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError — отказ валидации (HTTP 422) со списком полей.
type ValidationError struct {
	Details []FieldError `json:"details"`
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Path+": "+d.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
