package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/mdrouter/internal/domain"
	"github.com/xela07ax/mdrouter/internal/infra"
	"github.com/xela07ax/mdrouter/internal/registry"
	"go.uber.org/zap"
)

// StatusManager синхронизирует административный статус эндпоинтов между инстансами через Redis:
// set выключенных id + канал сигналов "id:on|off".
type StatusManager struct {
	reg    *registry.Registry
	rdb    *redis.Client
	logger *zap.Logger

	mu      sync.Mutex
	managed map[string]struct{} // id, выключенные через Redis: только их sync имеет право включить обратно
}

func NewStatusManager(reg *registry.Registry, rdb *redis.Client, logger *zap.Logger) *StatusManager {
	return &StatusManager{
		reg:     reg,
		rdb:     rdb,
		logger:  logger.With(zap.String("mod", "status")),
		managed: make(map[string]struct{}),
	}
}

// Init прогревает общий set из реестра (если он пуст) и применяет его к реестру
func (sm *StatusManager) Init(ctx context.Context) error {
	var disabled []string
	for _, e := range sm.reg.Entries() {
		if ep := e.Snapshot(); !ep.IsActive() {
			disabled = append(disabled, ep.ID)
		}
	}

	if err := WarmupSet(ctx, sm.rdb, sm.logger, disabled, infra.RedisKeyDisabledEndpoints, infra.RedisKeyLockWarmupDisabled); err != nil {
		sm.logger.Warn("status warm-up failed", zap.Error(err))
	}
	return sm.sync(ctx)
}

// sync применяет содержимое Redis-set к реестру
func (sm *StatusManager) sync(ctx context.Context) error {
	ids, err := sm.rdb.SMembers(ctx, infra.RedisKeyDisabledEndpoints).Result()
	if err != nil {
		return fmt.Errorf("failed to fetch disabled endpoints from redis: %w", err)
	}

	off := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		off[id] = struct{}{}
	}

	sm.mu.Lock()
	var enable []string
	for id := range sm.managed {
		if _, still := off[id]; !still {
			enable = append(enable, id)
		}
	}
	sm.mu.Unlock()

	for id := range off {
		sm.apply(id, false)
	}
	for _, id := range enable {
		sm.apply(id, true)
	}
	return nil
}

// StartListener подписывается на сигналы включения/выключения в реальном времени
func (sm *StatusManager) StartListener(ctx context.Context) {
	ListenSignals(ctx, sm.rdb, sm.logger, infra.RedisChanEndpointStatus, sm.sync, sm.apply)
}

func (sm *StatusManager) apply(id string, on bool) {
	status := domain.StatusInactive
	if on {
		status = domain.StatusActive
	}
	if err := sm.reg.SetStatus(id, status); err != nil {
		sm.logger.Debug("status signal for unknown endpoint", zap.String("endpoint_id", id))
		return
	}

	sm.mu.Lock()
	if on {
		delete(sm.managed, id)
	} else {
		sm.managed[id] = struct{}{}
	}
	sm.mu.Unlock()
}

// SetStatus меняет статус локально и рассылает его остальным инстансам
func (sm *StatusManager) SetStatus(ctx context.Context, id string, status domain.EndpointStatus) error {
	if _, err := sm.reg.MustGet(id); err != nil {
		return err
	}
	sm.apply(id, status == domain.StatusActive)

	pipe := sm.rdb.TxPipeline()
	signal := id + ":on"
	if status == domain.StatusActive {
		pipe.SRem(ctx, infra.RedisKeyDisabledEndpoints, id)
	} else {
		pipe.SAdd(ctx, infra.RedisKeyDisabledEndpoints, id)
		signal = id + ":off"
	}
	pipe.Publish(ctx, infra.RedisChanEndpointStatus, signal)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to broadcast status: %w", err)
	}
	return nil
}

// PublishTransition — хук для Executor: рассылает смены здоровья в Redis
func (sm *StatusManager) PublishTransition(t Transition) {
	payload := fmt.Sprintf("%s:%s:%s", t.EndpointID, t.From, t.To)
	// Хук вызывается из горячего пути, поэтому публикуем асинхронно
	go func() {
		if err := sm.rdb.Publish(context.Background(), infra.RedisChanHealthTransitions, payload).Err(); err != nil {
			sm.logger.Warn("failed to publish health transition", zap.String("payload", payload), zap.Error(err))
		}
	}()
}
