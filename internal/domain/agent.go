package domain

import (
	"encoding/json"
	"time"
)

type AgentStatus string

const (
	StatusDraft  AgentStatus = "draft"  // Черновик, виден только в конструкторе
	StatusLive   AgentStatus = "live"   // Активен в продакшене (редактирование через подтверждение)
	StatusPaused AgentStatus = "paused" // Остановлен, но конфигурация сохранена
)

// Section — именованный слайс агента, который редактируется независимо.
// Каждая секция сохраняется своим запросом с общим токеном expected_updated_at.
type Section string

const (
	SectionInstructions Section = "instructions"
	SectionRestrictions Section = "restrictions"
	SectionMemory       Section = "memory"
	SectionApproval     Section = "approval_config"
	SectionTriggers     Section = "triggers"
)

// Sections — канонический порядок секций (для валидации и UI).
var Sections = []Section{
	SectionInstructions,
	SectionRestrictions,
	SectionMemory,
	SectionApproval,
	SectionTriggers,
}

func (s Section) Valid() bool {
	for _, known := range Sections {
		if s == known {
			return true
		}
	}
	return false
}

type Agent struct {
	ID          string      `json:"id"`           // UUID
	WorkspaceID string      `json:"workspace_id"` // Тенант
	Name        string      `json:"name"`
	Status      AgentStatus `json:"status"`

	// Независимо редактируемые секции
	Instructions   string          `json:"instructions"`
	Restrictions   string          `json:"restrictions"`
	Memory         json.RawMessage `json:"memory"`
	ApprovalConfig json.RawMessage `json:"approval_config"`
	Triggers       json.RawMessage `json:"triggers"`

	// UpdatedAt — источник токена оптимистичной блокировки.
	// Бэкенд сравнивает его с expected_updated_at запроса и отвечает 409 при расхождении.
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SectionValue возвращает текущее значение секции в сыром JSON-виде.
// Строковые секции оборачиваются в JSON-строку, чтобы клиент работал с единым типом.
func (a *Agent) SectionValue(s Section) json.RawMessage {
	switch s {
	case SectionInstructions:
		b, _ := json.Marshal(a.Instructions)
		return b
	case SectionRestrictions:
		b, _ := json.Marshal(a.Restrictions)
		return b
	case SectionMemory:
		return a.Memory
	case SectionApproval:
		return a.ApprovalConfig
	case SectionTriggers:
		return a.Triggers
	}
	return nil
}

// ApplySection кладет новое значение секции в структуру (после успешного сохранения).
func (a *Agent) ApplySection(s Section, value json.RawMessage) error {
	switch s {
	case SectionInstructions:
		return json.Unmarshal(value, &a.Instructions)
	case SectionRestrictions:
		return json.Unmarshal(value, &a.Restrictions)
	case SectionMemory:
		a.Memory = value
	case SectionApproval:
		a.ApprovalConfig = value
	case SectionTriggers:
		a.Triggers = value
	default:
		return ErrUnknownSection
	}
	return nil
}

// CanTransitionTo проверяет правила конечного автомата статусов.
// Прямой переход draft -> paused не имеет смысла: паузить можно только живого агента.
func (a *Agent) CanTransitionTo(next AgentStatus) error {
	if a.Status == next {
		return ErrInvalidTransition
	}
	switch a.Status {
	case StatusDraft:
		if next == StatusLive {
			return nil
		}
	case StatusLive:
		if next == StatusPaused || next == StatusDraft {
			return nil
		}
	case StatusPaused:
		if next == StatusLive || next == StatusDraft {
			return nil
		}
	}
	return ErrInvalidTransition
}
