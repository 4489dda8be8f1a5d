package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/xela07ax/crmflow-prototype/internal/audit"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"go.uber.org/zap"
)

type PipelineRepository interface {
	ListPipelines(ctx context.Context, workspaceID string) ([]*domain.Pipeline, error)
	GetPipeline(ctx context.Context, workspaceID, id string) (*domain.Pipeline, error)
	CreatePipeline(ctx context.Context, p *domain.Pipeline) error
	ListOpportunities(ctx context.Context, workspaceID, pipelineID string) ([]*domain.Opportunity, error)
	CreateOpportunity(ctx context.Context, o *domain.Opportunity) error
	UpdateOpportunity(ctx context.Context, workspaceID, id, stageID, title string, amount float64, expected time.Time, editorID string) (time.Time, error)
}

type PipelineService struct {
	repo   PipelineRepository
	trail  audit.Recorder
	logger *zap.Logger
}

func NewPipelineService(repo PipelineRepository, trail audit.Recorder, logger *zap.Logger) *PipelineService {
	return &PipelineService{
		repo:   repo,
		trail:  trail,
		logger: logger.Named("pipeline-service"),
	}
}

func (s *PipelineService) ListPipelines(ctx context.Context, workspaceID string) ([]*domain.Pipeline, error) {
	pipelines, err := s.repo.ListPipelines(ctx, workspaceID)
	if err != nil {
		s.logger.Error("failed to list pipelines", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch pipelines: %w", err)
	}
	if pipelines == nil {
		return []*domain.Pipeline{}, nil
	}
	return pipelines, nil
}

func (s *PipelineService) GetPipeline(ctx context.Context, workspaceID, id string) (*domain.Pipeline, error) {
	return s.repo.GetPipeline(ctx, workspaceID, id)
}

func (s *PipelineService) CreatePipeline(ctx context.Context, workspaceID, name string, stages []domain.Stage) (*domain.Pipeline, error) {
	details := make([]domain.FieldError, 0)
	if name == "" {
		details = append(details, domain.FieldError{Path: "name", Message: "name is required"})
	}
	if len(stages) == 0 {
		details = append(details, domain.FieldError{Path: "stages", Message: "at least one stage is required"})
	}
	for i, st := range stages {
		if st.Name == "" {
			details = append(details, domain.FieldError{
				Path:    fmt.Sprintf("stages[%d].name", i),
				Message: "name is required",
			})
		}
	}
	if len(details) > 0 {
		return nil, &domain.ValidationError{Details: details}
	}

	// Стадиям без ID выдаем UUID и проставляем порядок по позиции
	for i := range stages {
		if stages[i].ID == "" {
			stages[i].ID = uuid.New().String()
		}
		stages[i].Order = i
	}

	p := &domain.Pipeline{WorkspaceID: workspaceID, Name: name, Stages: stages}
	if err := s.repo.CreatePipeline(ctx, p); err != nil {
		s.logger.Error("failed to create pipeline", zap.String("workspace_id", workspaceID), zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (s *PipelineService) ListOpportunities(ctx context.Context, workspaceID, pipelineID string) ([]*domain.Opportunity, error) {
	opps, err := s.repo.ListOpportunities(ctx, workspaceID, pipelineID)
	if err != nil {
		s.logger.Error("failed to list opportunities", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch opportunities: %w", err)
	}
	if opps == nil {
		return []*domain.Opportunity{}, nil
	}
	return opps, nil
}

func (s *PipelineService) CreateOpportunity(ctx context.Context, o *domain.Opportunity) (*domain.Opportunity, error) {
	details := make([]domain.FieldError, 0)
	if o.Title == "" {
		details = append(details, domain.FieldError{Path: "title", Message: "title is required"})
	}
	if o.Amount < 0 {
		details = append(details, domain.FieldError{Path: "amount", Message: "must not be negative"})
	}
	if len(details) > 0 {
		return nil, &domain.ValidationError{Details: details}
	}

	// Стадия должна принадлежать воронке: иначе сделка "повиснет" вне колонок
	pipeline, err := s.repo.GetPipeline(ctx, o.WorkspaceID, o.PipelineID)
	if err != nil {
		return nil, err
	}
	if !stageExists(pipeline, o.StageID) {
		return nil, &domain.ValidationError{Details: []domain.FieldError{
			{Path: "stage_id", Message: "stage does not belong to pipeline"},
		}}
	}

	if err := s.repo.CreateOpportunity(ctx, o); err != nil {
		s.logger.Error("failed to create opportunity", zap.Error(err))
		return nil, err
	}
	return o, nil
}

// UpdateOpportunity двигает сделку между стадиями по протоколу expected_updated_at.
func (s *PipelineService) UpdateOpportunity(ctx context.Context, workspaceID, pipelineID, id, stageID, title string, amount float64, expected time.Time, editorID string) (time.Time, error) {
	start := time.Now()

	event := audit.ChangeEvent{
		ID:          uuid.New().String(),
		TraceID:     middleware.GetReqID(ctx),
		WorkspaceID: workspaceID,
		ActorID:     editorID,
		EntityType:  "opportunity",
		EntityID:    id,
		Action:      audit.ActionOpportunityUpdate,
		Detail:      map[string]interface{}{"stage_id": stageID},
		Timestamp:   start,
	}
	defer func() {
		event.DurationMs = time.Since(start).Milliseconds()
		s.trail.Record(event)
	}()

	if title == "" {
		event.Status = audit.StatusRejected
		return time.Time{}, &domain.ValidationError{Details: []domain.FieldError{
			{Path: "title", Message: "title is required"},
		}}
	}

	pipeline, err := s.repo.GetPipeline(ctx, workspaceID, pipelineID)
	if err != nil {
		event.Status = audit.StatusRejected
		event.Error = err.Error()
		return time.Time{}, err
	}
	if !stageExists(pipeline, stageID) {
		event.Status = audit.StatusRejected
		return time.Time{}, &domain.ValidationError{Details: []domain.FieldError{
			{Path: "stage_id", Message: "stage does not belong to pipeline"},
		}}
	}

	newToken, err := s.repo.UpdateOpportunity(ctx, workspaceID, id, stageID, title, amount, expected, editorID)
	if err != nil {
		var conflict *domain.ConflictError
		switch {
		case errors.As(err, &conflict):
			event.Status = audit.StatusConflict
			event.Detail["updated_by"] = conflict.UpdatedBy
		case errors.Is(err, domain.ErrNotFound):
			event.Status = audit.StatusRejected
		default:
			event.Status = audit.StatusFailed
			s.logger.Error("opportunity update failed", zap.String("id", id), zap.Error(err))
		}
		event.Error = err.Error()
		return time.Time{}, err
	}

	event.Status = audit.StatusSuccess
	return newToken, nil
}

func stageExists(p *domain.Pipeline, stageID string) bool {
	for _, st := range p.Stages {
		if st.ID == stageID {
			return true
		}
	}
	return false
}
