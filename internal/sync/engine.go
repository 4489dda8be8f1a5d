package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/crmflow-prototype/internal/audit"
	"github.com/xela07ax/crmflow-prototype/internal/connectors"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/internal/infra"
	"go.uber.org/zap"
)

// RunRepository описывает требования движка к хранилищу запусков.
type RunRepository interface {
	MarkSyncRun(ctx context.Context, id string, status domain.SyncStatus, detail string) error
}

// LiveChecker отвечает на вопрос "есть ли в workspace live-агенты".
type LiveChecker interface {
	HasLive(workspaceID string) bool
}

// Engine — ядро воркера syncd: принимает сигналы о запусках из Redis
// и прогоняет их через коннектор Salesforce со стеком надежности.
type Engine struct {
	repo    RunRepository
	caller  connectors.Caller
	live    LiveChecker
	trail   audit.Recorder
	metrics *Metrics
	rdb     *redis.Client
	logger  *zap.Logger
}

func NewEngine(repo RunRepository, caller connectors.Caller, live LiveChecker, trail audit.Recorder, metrics *Metrics, rdb *redis.Client, logger *zap.Logger) *Engine {
	return &Engine{
		repo:    repo,
		caller:  caller,
		live:    live,
		trail:   trail,
		metrics: metrics,
		rdb:     rdb,
		logger:  logger.Named("sync-engine"),
	}
}

// StartListener подписывается на сигналы консоли и обрабатывает запуски.
// Цикл живучий: при обрыве подписки переподключаемся, пропущенные PENDING
// запуски доберет следующий сигнал по этому workspace.
func (e *Engine) StartListener(ctx context.Context) {
	for {
		pubsub := e.rdb.Subscribe(ctx, infra.RedisChanSyncRuns)

		if _, err := pubsub.Receive(ctx); err != nil {
			e.logger.Error("failed to subscribe to sync signals", zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		ch := pubsub.Channel()
		e.logger.Info("sync signal listener started")

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				// Разбор формата "workspace_id:run_id"
				parts := strings.SplitN(msg.Payload, ":", 2)
				if len(parts) != 2 {
					e.logger.Error("invalid sync signal format", zap.String("payload", msg.Payload))
					continue
				}

				if err := e.ProcessRun(ctx, parts[0], parts[1]); err != nil {
					e.logger.Error("sync run failed",
						zap.String("workspace_id", parts[0]),
						zap.String("run_id", parts[1]),
						zap.Error(err))
				}
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}

// ProcessRun выполняет один запуск синхронизации от сигнала до терминального статуса.
func (e *Engine) ProcessRun(ctx context.Context, workspaceID, runID string) error {
	start := time.Now()

	event := audit.ChangeEvent{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		ActorID:     "syncd",
		EntityType:  "sync",
		EntityID:    runID,
		Action:      audit.ActionSyncRun,
		Detail:      map[string]interface{}{},
		Timestamp:   start,
	}

	defer func() {
		event.DurationMs = time.Since(start).Milliseconds()
		e.trail.Record(event)
	}()

	// 1. Проверка live-состояния (самая дешевая — In-memory)
	if !e.live.HasLive(workspaceID) {
		event.Status = audit.StatusSkipped
		e.metrics.SyncRuns.WithLabelValues(string(domain.SyncSkipped)).Inc()
		return e.repo.MarkSyncRun(ctx, runID, domain.SyncSkipped, "no live agents in workspace")
	}

	if err := e.repo.MarkSyncRun(ctx, runID, domain.SyncRunning, ""); err != nil {
		event.Status = audit.StatusFailed
		event.Error = err.Error()
		return err
	}

	payload, _ := json.Marshal(map[string]string{
		"workspace_id": workspaceID,
		"run_id":       runID,
	})

	// 2. Вызов через ReliabilityWrapper (Retries/CB/Timeouts)
	resp, callErr := e.caller.Call(ctx, connectors.OpSalesforceSync, payload)

	duration := time.Since(start).Seconds()
	if callErr != nil {
		e.metrics.ConnectorDuration.WithLabelValues(connectors.OpSalesforceSync, "error").Observe(duration)
		e.metrics.SyncRuns.WithLabelValues(string(domain.SyncFailed)).Inc()

		event.Status = audit.StatusFailed
		event.Error = callErr.Error()

		if markErr := e.repo.MarkSyncRun(ctx, runID, domain.SyncFailed, callErr.Error()); markErr != nil {
			e.logger.Error("failed to persist FAILED status", zap.String("run_id", runID), zap.Error(markErr))
		}
		return fmt.Errorf("connector call failed: %w", callErr)
	}

	e.metrics.ConnectorDuration.WithLabelValues(connectors.OpSalesforceSync, "success").Observe(duration)
	e.metrics.SyncRuns.WithLabelValues(string(domain.SyncSuccess)).Inc()

	// Десериализуем ответ для сохранения в журнал
	var summary map[string]interface{}
	_ = json.Unmarshal(resp, &summary)
	event.Status = audit.StatusSuccess
	event.Detail["response"] = summary

	e.logger.Info("sync run completed",
		zap.String("workspace_id", workspaceID),
		zap.String("run_id", runID),
		zap.Int64("duration_ms", event.DurationMs))

	return e.repo.MarkSyncRun(ctx, runID, domain.SyncSuccess, string(resp))
}
