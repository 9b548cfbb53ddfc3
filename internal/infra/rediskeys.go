package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "mdrouter"
)

// Ключи для Sets (состояние)
const (
	RedisKeyDisabledEndpoints  = RedisNamespace + ":endpoints:disabled_set"
	RedisKeyLockWarmupDisabled = RedisNamespace + ":lock:warmup:disabled"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanEndpointStatus — "id:on" / "id:off", включение и выключение эндпоинта на всех инстансах
	RedisChanEndpointStatus = RedisNamespace + ":endpoints:status-signal"
	// RedisChanHealthTransitions — "id:from:to", смены здоровья для соседей и дашбордов
	RedisChanHealthTransitions = RedisNamespace + ":endpoints:health-transitions"
)

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
