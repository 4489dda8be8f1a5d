package service

import (
	"encoding/json"
	"fmt"

	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

const (
	maxInstructionsLen = 10000
	maxRestrictionsLen = 5000
)

// validateSection проверяет значение секции до записи в базу.
// Ошибки собираются в ValidationError (HTTP 422) с путями полей,
// чтобы редактор секции подсветил конкретное поле, а не "что-то не так".
func validateSection(sec domain.Section, value json.RawMessage) error {
	switch sec {
	case domain.SectionInstructions:
		return validateText(sec, value, maxInstructionsLen, true)
	case domain.SectionRestrictions:
		return validateText(sec, value, maxRestrictionsLen, false)
	case domain.SectionMemory:
		return validateObject(sec, value)
	case domain.SectionApproval:
		return validateApprovalConfig(value)
	case domain.SectionTriggers:
		return validateTriggers(value)
	}
	return domain.ErrUnknownSection
}

func validateText(sec domain.Section, value json.RawMessage, maxLen int, required bool) error {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return &domain.ValidationError{Details: []domain.FieldError{
			{Path: string(sec), Message: "must be a string"},
		}}
	}
	if required && s == "" {
		return &domain.ValidationError{Details: []domain.FieldError{
			{Path: string(sec), Message: "must not be empty"},
		}}
	}
	if len(s) > maxLen {
		return &domain.ValidationError{Details: []domain.FieldError{
			{Path: string(sec), Message: "exceeds maximum length"},
		}}
	}
	return nil
}

func validateObject(sec domain.Section, value json.RawMessage) error {
	var obj map[string]interface{}
	if err := json.Unmarshal(value, &obj); err != nil {
		return &domain.ValidationError{Details: []domain.FieldError{
			{Path: string(sec), Message: "must be a JSON object"},
		}}
	}
	return nil
}

// validateApprovalConfig проверяет конфигурацию подтверждений live-агента.
func validateApprovalConfig(value json.RawMessage) error {
	var cfg struct {
		RequireConfirm bool `json:"require_confirm"`
		TimeoutSeconds int  `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(value, &cfg); err != nil {
		return &domain.ValidationError{Details: []domain.FieldError{
			{Path: string(domain.SectionApproval), Message: "must be a JSON object"},
		}}
	}
	if cfg.TimeoutSeconds < 0 {
		return &domain.ValidationError{Details: []domain.FieldError{
			{Path: "approval_config.timeout_seconds", Message: "must not be negative"},
		}}
	}
	return nil
}

func validateTriggers(value json.RawMessage) error {
	var triggers []struct {
		Event  string `json:"event"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal(value, &triggers); err != nil {
		return &domain.ValidationError{Details: []domain.FieldError{
			{Path: string(domain.SectionTriggers), Message: "must be an array of triggers"},
		}}
	}

	details := make([]domain.FieldError, 0)
	for i, t := range triggers {
		if t.Event == "" {
			details = append(details, domain.FieldError{
				Path:    triggerPath(i, "event"),
				Message: "event is required",
			})
		}
		if t.Action == "" {
			details = append(details, domain.FieldError{
				Path:    triggerPath(i, "action"),
				Message: "action is required",
			})
		}
	}
	if len(details) > 0 {
		return &domain.ValidationError{Details: details}
	}
	return nil
}

func triggerPath(i int, field string) string {
	return fmt.Sprintf("triggers[%d].%s", i, field)
}
