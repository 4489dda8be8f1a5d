package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/crmflow-prototype/internal/connectors"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"go.uber.org/zap"
)

type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t *domain.Template) error
	GetTemplate(ctx context.Context, workspaceID, id string) (*domain.Template, error)
	ListTemplates(ctx context.Context, workspaceID string) ([]*domain.Template, error)
}

type TemplateService struct {
	repo      TemplateRepository
	generator connectors.Caller // AI-провайдер за ReliabilityWrapper
	logger    *zap.Logger
}

func NewTemplateService(repo TemplateRepository, generator connectors.Caller, logger *zap.Logger) *TemplateService {
	return &TemplateService{
		repo:      repo,
		generator: generator,
		logger:    logger.Named("template-service"),
	}
}

func (s *TemplateService) ListTemplates(ctx context.Context, workspaceID string) ([]*domain.Template, error) {
	templates, err := s.repo.ListTemplates(ctx, workspaceID)
	if err != nil {
		s.logger.Error("failed to list templates", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch templates: %w", err)
	}
	if templates == nil {
		return []*domain.Template{}, nil
	}
	return templates, nil
}

func (s *TemplateService) GetTemplate(ctx context.Context, workspaceID, id string) (*domain.Template, error) {
	return s.repo.GetTemplate(ctx, workspaceID, id)
}

// CreateTemplate сохраняет шаблон, который пользователь принял на шаге preview.
func (s *TemplateService) CreateTemplate(ctx context.Context, t *domain.Template) (*domain.Template, error) {
	details := make([]domain.FieldError, 0)
	if t.Name == "" {
		details = append(details, domain.FieldError{Path: "name", Message: "name is required"})
	}
	if !t.Type.Valid() {
		details = append(details, domain.FieldError{Path: "type", Message: "unknown template type"})
	}
	if t.HTML == "" {
		details = append(details, domain.FieldError{Path: "html", Message: "html body is required"})
	}
	if len(details) > 0 {
		return nil, &domain.ValidationError{Details: details}
	}

	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		s.logger.Error("failed to create template", zap.String("workspace_id", t.WorkspaceID), zap.Error(err))
		return nil, err
	}
	return t, nil
}

// Generate вызывает AI-провайдера для предпросмотра письма.
// Каждый вызов — ровно один поход к провайдеру; регенерация это новый вызов.
func (s *TemplateService) Generate(ctx context.Context, workspaceID string, req domain.GenerateRequest) (*domain.GeneratedTemplate, error) {
	if err := validateGenerateRequest(req); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("service: failed to marshal generation request: %w", err)
	}

	resp, err := s.generator.Call(ctx, connectors.OpTemplateGenerate, payload)
	if err != nil {
		s.logger.Error("template generation failed",
			zap.String("workspace_id", workspaceID),
			zap.String("type", string(req.Type)),
			zap.Error(err))
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	var result domain.GeneratedTemplate
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("service: malformed generator response: %w", err)
	}
	if result.Subject == "" || result.HTML == "" {
		return nil, fmt.Errorf("service: generator returned incomplete template")
	}

	s.logger.Info("template generated",
		zap.String("workspace_id", workspaceID),
		zap.String("type", string(req.Type)))
	return &result, nil
}

// validateGenerateRequest повторяет предикаты шагов визарда на стороне сервера.
// Клиент не пустит пользователя дальше без этих полей, но сервер им не доверяет.
func validateGenerateRequest(req domain.GenerateRequest) error {
	details := make([]domain.FieldError, 0)
	if !req.Type.Valid() {
		details = append(details, domain.FieldError{Path: "type", Message: "unknown template type"})
	}
	if req.Purpose == "" {
		details = append(details, domain.FieldError{Path: "purpose", Message: "purpose is required"})
	}
	if req.Tone == "" {
		details = append(details, domain.FieldError{Path: "tone", Message: "tone is required"})
	}
	if req.Audience == "" {
		details = append(details, domain.FieldError{Path: "audience", Message: "audience is required"})
	}
	if len(details) > 0 {
		return &domain.ValidationError{Details: details}
	}
	return nil
}
