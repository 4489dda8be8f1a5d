package domain

import "time"

// TemplateType — тип письма, выбирается на первом шаге визарда.
type TemplateType string

const (
	TemplateNewsletter TemplateType = "newsletter"
	TemplatePromo      TemplateType = "promo"
	TemplateFollowUp   TemplateType = "follow_up"
	TemplateWelcome    TemplateType = "welcome"
)

// Template — сохраненный email-шаблон (результат AI-генерации или ручной).
type Template struct {
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspace_id"`
	Name        string       `json:"name"`
	Type        TemplateType `json:"type"`
	Purpose     string       `json:"purpose"`
	Tone        string       `json:"tone"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	CreatedBy   string       `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// GenerateRequest — вход побочного шага "preview" визарда.
// Поля накапливаются шагами type -> purpose -> details.
type GenerateRequest struct {
	Type     TemplateType `json:"type"`
	Purpose  string       `json:"purpose"`
	Tone     string       `json:"tone"`
	Audience string       `json:"audience"`
	Details  string       `json:"details,omitempty"`
}

// GeneratedTemplate — результат вызова AI-провайдера. Еще не сохранен:
// пользователь смотрит предпросмотр и либо сохраняет, либо регенерирует.
type GeneratedTemplate struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (t TemplateType) Valid() bool {
	switch t {
	case TemplateNewsletter, TemplatePromo, TemplateFollowUp, TemplateWelcome:
		return true
	}
	return false
}
