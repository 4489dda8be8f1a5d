package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "crmflow"
)

// Ключи для Sets (состояние)
const (
	// RedisKeyLiveWorkspaces — множество workspace'ов, где есть хотя бы один live-агент.
	RedisKeyLiveWorkspaces = RedisNamespace + ":workspaces:live_set"
	RedisKeyLockLiveWarmup = RedisNamespace + ":lock:warmup:live"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanLiveStatus — сигналы "workspaceID:on/off" при смене статусов агентов.
	RedisChanLiveStatus = RedisNamespace + ":workspaces:live-signal"

	// RedisChanSyncRuns — сигналы "workspaceID:runID" о новых запусках синхронизации.
	RedisChanSyncRuns = RedisNamespace + ":sync:run-signal"
)

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
