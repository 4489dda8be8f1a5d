package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/internal/infra"
	"go.uber.org/zap"
)

type SyncRepository interface {
	CreateSyncRun(ctx context.Context, run *domain.SyncRun) error
	GetLastSyncRun(ctx context.Context, workspaceID string) (*domain.SyncRun, error)
}

type SyncService struct {
	repo   SyncRepository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewSyncService(repo SyncRepository, rdb *redis.Client, logger *zap.Logger) *SyncService {
	return &SyncService{
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("sync-service"),
	}
}

// TriggerSync фиксирует запуск в БД (PENDING) и будит воркер через Redis.
// Консоль не ждет результата: статус запуска ведет syncd, UI опрашивает LastRun.
func (s *SyncService) TriggerSync(ctx context.Context, workspaceID, userID string) (*domain.SyncRun, error) {
	run := &domain.SyncRun{
		WorkspaceID: workspaceID,
		Status:      domain.SyncPending,
		RequestedBy: userID,
	}

	if err := s.repo.CreateSyncRun(ctx, run); err != nil {
		s.logger.Error("failed to create sync run", zap.String("workspace_id", workspaceID), zap.Error(err))
		return nil, err
	}

	payload := fmt.Sprintf("%s:%s", workspaceID, run.ID)
	if err := s.rdb.Publish(ctx, infra.RedisChanSyncRuns, payload).Err(); err != nil {
		// Запись в БД уже есть: отдаем ошибку, чтобы пользователь повторил запуск,
		// вместо PENDING-записи, которую никто никогда не возьмет
		s.logger.Error("sync signal delivery failed",
			zap.String("run_id", run.ID),
			zap.Error(err))
		return nil, fmt.Errorf("sync run created but worker signal failed: %w", err)
	}

	s.logger.Info("sync run triggered",
		zap.String("workspace_id", workspaceID),
		zap.String("run_id", run.ID),
		zap.String("requested_by", userID))
	return run, nil
}

// LastRun возвращает последний запуск для статусной плашки в UI.
func (s *SyncService) LastRun(ctx context.Context, workspaceID string) (*domain.SyncRun, error) {
	return s.repo.GetLastSyncRun(ctx, workspaceID)
}
