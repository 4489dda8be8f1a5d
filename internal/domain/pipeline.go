package domain

import "time"

// Pipeline — воронка продаж workspace'а. Тонкий CRUD без версионирования:
// конфликтует редко, стадии меняются целиком.
type Pipeline struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Stages      []Stage   `json:"stages"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Stage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Позиция в воронке, слева направо
	Order int `json:"order"`
}

// Opportunity — сделка внутри воронки. Перемещение между стадиями и правка суммы
// идут по тому же протоколу expected_updated_at, что и секции агента:
// два менеджера, перетаскивающие одну карточку, не должны молча затирать друг друга.
type Opportunity struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	PipelineID  string    `json:"pipeline_id"`
	StageID     string    `json:"stage_id"`
	Title       string    `json:"title"`
	Amount      float64   `json:"amount"`
	ContactID   string    `json:"contact_id,omitempty"`
	UpdatedBy   string    `json:"updated_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
