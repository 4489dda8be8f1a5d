package livestate

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/crmflow-prototype/internal/infra"
	"go.uber.org/zap"
)

// LiveProvider описывает возможности, необходимые менеджеру от хранилища.
type LiveProvider interface {
	GetLiveWorkspaces(ctx context.Context) ([]string, error)
}

// Manager держит L1 (RAM) кэш workspace'ов с live-агентами.
// Воркер syncd проверяет его в Hot Path перед запуском коннектора:
// workspace без live-агентов синхронизировать незачем.
type Manager struct {
	repo   LiveProvider
	rdb    *redis.Client
	logger *zap.Logger
	mu     sync.RWMutex
	live   map[string]struct{}
}

func NewManager(rdb *redis.Client, repo LiveProvider, logger *zap.Logger) *Manager {
	return &Manager{
		live:   make(map[string]struct{}),
		repo:   repo,
		rdb:    rdb,
		logger: logger.With(zap.String("mod", "livestate")),
	}
}

// Init загружает состояние из БД при старте и прогревает Redis-кэш.
func (m *Manager) Init(ctx context.Context) error {
	ids, err := m.repo.GetLiveWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch live workspaces from DB: %w", err)
	}

	return WarmupState(ctx, m.rdb, m.logger, ids, infra.RedisKeyLiveWorkspaces, infra.RedisKeyLockLiveWarmup, func(items []string) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.live = make(map[string]struct{}, len(items))
		for _, id := range items {
			m.live[id] = struct{}{}
		}
	})
}

// StartListener подписывается на live-сигналы консоли в реальном времени.
func (m *Manager) StartListener(ctx context.Context) {
	ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanLiveStatus,
		func() error { return m.Init(ctx) }, // Ресинхронизация при переподключении
		func(id string, status bool) { // Обработка сообщения
			m.mu.Lock()
			defer m.mu.Unlock()
			if status {
				m.live[id] = struct{}{}
			} else {
				delete(m.live, id)
			}
		},
	)
}

// HasLive — максимально быстрый метод для проверки в Hot Path
func (m *Manager) HasLive(workspaceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.live[workspaceID]
	return ok
}

// MarkLive — прямое обновление кэша (используется в тестах и при локальных событиях).
func (m *Manager) MarkLive(workspaceID string, live bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if live {
		m.live[workspaceID] = struct{}{}
	} else {
		delete(m.live, workspaceID)
	}
}
