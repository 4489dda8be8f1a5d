package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/crmflow-prototype/internal/audit"
)

// ChangeLogProvider описывает контракт для чтения журнала изменений.
// Используем структуру ChangeEvent из пакета audit, чтобы сохранить единую модель данных.
type ChangeLogProvider interface {
	FetchChanges(ctx context.Context, workspaceID, entityType, entityID string) ([]audit.ChangeEvent, error)
}

type AuditService struct {
	repo ChangeLogProvider
}

func NewAuditService(repo ChangeLogProvider) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchChanges запрашивает историю изменений workspace с фильтрацией.
// Логика фильтрации (пустые строки или конкретные ID) инкапсулирована в репозитории.
func (s *AuditService) FetchChanges(ctx context.Context, workspaceID, entityType, entityID string) ([]audit.ChangeEvent, error) {
	changes, err := s.repo.FetchChanges(ctx, workspaceID, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch changes: %w", err)
	}
	return changes, nil
}
