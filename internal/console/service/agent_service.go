package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/crmflow-prototype/internal/audit"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/internal/infra"
	"github.com/xela07ax/crmflow-prototype/internal/infra/auth"
	"go.uber.org/zap"
)

// AgentRepository описывает требования к хранилищу данных об агентах
type AgentRepository interface {
	GetAgent(ctx context.Context, workspaceID, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context, workspaceID string) ([]*domain.Agent, error)
	CreateAgent(ctx context.Context, a *domain.Agent) error
	UpdateSection(ctx context.Context, workspaceID, agentID string, sec domain.Section, value json.RawMessage, expected time.Time, editorID string) (time.Time, error)
	UpdateAgentStatus(ctx context.Context, workspaceID, agentID string, status domain.AgentStatus, expected time.Time, editorID string) (time.Time, error)
	CountLiveAgents(ctx context.Context, workspaceID string) (int, error)
}

type AgentService struct {
	*auth.BaseValidator
	repo   AgentRepository
	rdb    *redis.Client
	trail  audit.Recorder
	logger *zap.Logger
}

func NewAgentService(rdb *redis.Client, repo AgentRepository, validator *auth.BaseValidator, trail audit.Recorder, logger *zap.Logger) *AgentService {
	return &AgentService{
		BaseValidator: validator,
		repo:          repo,
		rdb:           rdb,
		trail:         trail,
		logger:        logger.Named("agent-service"),
	}
}

func (s *AgentService) GetAgent(ctx context.Context, workspaceID, agentID string) (*domain.Agent, error) {
	agent, err := s.repo.GetAgent(ctx, workspaceID, agentID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("failed to fetch agent details", zap.String("id", agentID), zap.Error(err))
		}
		return nil, err
	}
	return agent, nil
}

// ListAgents возвращает всех агентов workspace для основной таблицы конструктора.
func (s *AgentService) ListAgents(ctx context.Context, workspaceID string) ([]*domain.Agent, error) {
	agents, err := s.repo.ListAgents(ctx, workspaceID)
	if err != nil {
		s.logger.Error("failed to list agents from repository", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch agents: %w", err)
	}

	// Гарантируем, что фронтенд получит пустой массив [], а не null
	if agents == nil {
		return []*domain.Agent{}, nil
	}
	return agents, nil
}

func (s *AgentService) CreateAgent(ctx context.Context, workspaceID, name, editorID string) (*domain.Agent, error) {
	if name == "" {
		return nil, &domain.ValidationError{Details: []domain.FieldError{
			{Path: "name", Message: "name is required"},
		}}
	}

	agent := &domain.Agent{
		WorkspaceID:    workspaceID,
		Name:           name,
		Status:         domain.StatusDraft, // Новый агент всегда черновик
		Memory:         json.RawMessage(`{}`),
		ApprovalConfig: json.RawMessage(`{}`),
		Triggers:       json.RawMessage(`[]`),
		UpdatedBy:      editorID,
	}

	if err := s.repo.CreateAgent(ctx, agent); err != nil {
		s.logger.Error("failed to create agent", zap.String("workspace_id", workspaceID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("agent created",
		zap.String("workspace_id", workspaceID),
		zap.String("agent_id", agent.ID))
	return agent, nil
}

// SaveSection сохраняет один слайс агента по протоколу expected_updated_at.
// Возвращает новый токен updated_at. При расхождении токена репозиторий
// отдает *domain.ConflictError с метаданными того, кто успел раньше.
func (s *AgentService) SaveSection(ctx context.Context, workspaceID, agentID string, sec domain.Section, value json.RawMessage, expected time.Time, editorID string) (time.Time, error) {
	start := time.Now()

	event := audit.ChangeEvent{
		ID:          uuid.New().String(),
		TraceID:     middleware.GetReqID(ctx),
		WorkspaceID: workspaceID,
		ActorID:     editorID,
		EntityType:  "agent",
		EntityID:    agentID,
		Action:      audit.ActionSectionSave,
		Detail:      map[string]interface{}{"section": string(sec)},
		Timestamp:   start,
	}
	defer func() {
		event.DurationMs = time.Since(start).Milliseconds()
		s.trail.Record(event)
	}()

	// Валидация ДО похода в базу: невалидное значение не должно трогать токен
	if err := validateSection(sec, value); err != nil {
		event.Status = audit.StatusRejected
		event.Error = err.Error()
		return time.Time{}, err
	}

	newToken, err := s.repo.UpdateSection(ctx, workspaceID, agentID, sec, value, expected, editorID)
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
			s.logger.Error("section save failed",
				zap.String("agent_id", agentID),
				zap.String("section", string(sec)),
				zap.Error(err))
		}
		event.Error = err.Error()
		return time.Time{}, err
	}

	event.Status = audit.StatusSuccess
	return newToken, nil
}

// ChangeStatus переводит агента по конечному автомату статусов.
// Успешный переход транслируется воркеру syncd через Redis live-сигнал.
func (s *AgentService) ChangeStatus(ctx context.Context, workspaceID, agentID string, next domain.AgentStatus, expected time.Time, editorID string) (time.Time, error) {
	start := time.Now()

	event := audit.ChangeEvent{
		ID:          uuid.New().String(),
		TraceID:     middleware.GetReqID(ctx),
		WorkspaceID: workspaceID,
		ActorID:     editorID,
		EntityType:  "agent",
		EntityID:    agentID,
		Action:      audit.ActionStatusChange,
		Detail:      map[string]interface{}{"to": string(next)},
		Timestamp:   start,
	}
	defer func() {
		event.DurationMs = time.Since(start).Milliseconds()
		s.trail.Record(event)
	}()

	agent, err := s.repo.GetAgent(ctx, workspaceID, agentID)
	if err != nil {
		event.Status = audit.StatusRejected
		event.Error = err.Error()
		return time.Time{}, err
	}
	event.Detail["from"] = string(agent.Status)

	if err := agent.CanTransitionTo(next); err != nil {
		event.Status = audit.StatusRejected
		event.Error = err.Error()
		return time.Time{}, err
	}

	newToken, err := s.repo.UpdateAgentStatus(ctx, workspaceID, agentID, next, expected, editorID)
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			event.Status = audit.StatusConflict
		} else {
			event.Status = audit.StatusFailed
			s.logger.Error("status change failed", zap.String("agent_id", agentID), zap.Error(err))
		}
		event.Error = err.Error()
		return time.Time{}, err
	}

	event.Status = audit.StatusSuccess
	s.publishLiveSignal(ctx, workspaceID)

	s.logger.Info("agent status updated",
		zap.String("agent_id", agentID),
		zap.String("from", string(agent.Status)),
		zap.String("to", string(next)))
	return newToken, nil
}

// publishLiveSignal пересчитывает live-агентов workspace и шлет сигнал воркеру.
// Сбой доставки не валит операцию: L1 кэш воркера догонится при следующем warmup.
func (s *AgentService) publishLiveSignal(ctx context.Context, workspaceID string) {
	n, err := s.repo.CountLiveAgents(ctx, workspaceID)
	if err != nil {
		s.logger.Warn("live agent count failed", zap.String("workspace_id", workspaceID), zap.Error(err))
		return
	}

	val := "off"
	if n > 0 {
		val = "on"
	}

	payload := fmt.Sprintf("%s:%s", workspaceID, val)
	if err := s.rdb.Publish(ctx, infra.RedisChanLiveStatus, payload).Err(); err != nil {
		s.logger.Warn("live signal delivery failed",
			zap.String("channel", infra.RedisChanLiveStatus),
			zap.Error(err))
	}
}
