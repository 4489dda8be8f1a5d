package audit

import "time"

// Действия, попадающие в журнал изменений.
const (
	ActionSectionSave       = "section_save"
	ActionStatusChange      = "status_change"
	ActionOpportunityUpdate = "opportunity_update"
	ActionSyncRun           = "sync_run"
)

// Статусы событий.
const (
	StatusSuccess  = "SUCCESS"
	StatusConflict = "CONFLICT"
	StatusRejected = "REJECTED" // Валидация или права
	StatusFailed   = "FAILED"
	StatusSkipped  = "SKIPPED"
)

type ChangeEvent struct {
	ID          string `json:"id"`           // UUID события
	TraceID     string `json:"trace_id"`     // Сквозной ID запроса
	WorkspaceID string `json:"workspace_id"` // Тенант
	ActorID     string `json:"actor_id"`     // Кто делал (user id или "syncd")

	// Что менялось
	EntityType string                 `json:"entity_type"` // "agent", "opportunity", "sync"
	EntityID   string                 `json:"entity_id"`
	Action     string                 `json:"action"`
	Detail     map[string]interface{} `json:"detail"` // Секция, новый статус, сводка коннектора

	// Результат
	Status     string    `json:"status"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}
