package domain

import "time"

type SyncStatus string

const (
	SyncPending SyncStatus = "PENDING" // Сигнал опубликован, воркер еще не взял
	SyncRunning SyncStatus = "RUNNING"
	SyncSuccess SyncStatus = "SUCCESS"
	SyncFailed  SyncStatus = "FAILED"
	SyncSkipped SyncStatus = "SKIPPED" // В workspace нет live-агентов, гонять коннектор незачем
)

// SyncRun — один запуск синхронизации с Salesforce.
// Создается консолью (PENDING), дальше статус ведет воркер syncd.
type SyncRun struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	Status      SyncStatus `json:"status"`
	Detail      string     `json:"detail,omitempty"` // Текст ошибки или сводка по записям
	RequestedBy string     `json:"requested_by"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
