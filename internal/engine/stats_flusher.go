package engine

import (
	"context"
	"sync"
	"time"

	"github.com/xela07ax/mdrouter/internal/domain"
	"github.com/xela07ax/mdrouter/internal/registry"
	"go.uber.org/zap"
)

// StatsSaver — хранилище статистики, куда периодически сбрасываются живые счетчики
type StatsSaver interface {
	SaveStats(ctx context.Context, eps []domain.Endpoint) error
}

// StatsFlusher пишет обратно только те эндпоинты, которые вызывались с прошлого сброса
type StatsFlusher struct {
	reg    *registry.Registry
	store  StatsSaver
	logger *zap.Logger

	mu        sync.Mutex
	lastFlush time.Time
}

func NewStatsFlusher(reg *registry.Registry, store StatsSaver, logger *zap.Logger) *StatsFlusher {
	return &StatsFlusher{
		reg:    reg,
		store:  store,
		logger: logger.With(zap.String("mod", "stats_flusher")),
	}
}

// Flush сохраняет изменившиеся эндпоинты. Возвращает число сохраненных записей.
func (f *StatsFlusher) Flush(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	started := time.Now()
	var dirty []domain.Endpoint
	for _, e := range f.reg.Entries() {
		if last := e.LastCall(); !last.IsZero() && !last.Before(f.lastFlush) {
			dirty = append(dirty, e.Snapshot())
		}
	}
	if len(dirty) == 0 {
		return 0, nil
	}

	if err := f.store.SaveStats(ctx, dirty); err != nil {
		// lastFlush не двигаем: эти записи уйдут следующим сбросом
		return 0, err
	}
	f.lastFlush = started
	return len(dirty), nil
}

// Start сбрасывает статистику по таймеру; при остановке делает финальный сброс.
// interval <= 0 — периодического сброса нет, остается только финальный.
func (f *StatsFlusher) Start(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time // nil-канал никогда не срабатывает
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			// Используем Background, так как основной контекст уже закрыт
			fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			n, err := f.Flush(fctx)
			cancel()
			if err != nil {
				f.logger.Error("final stats flush failed", zap.Error(err))
			} else {
				f.logger.Info("final stats flush done", zap.Int("endpoints", n))
			}
			return
		case <-tick:
			if n, err := f.Flush(ctx); err != nil {
				f.logger.Error("stats flush failed", zap.Error(err))
			} else if n > 0 {
				f.logger.Debug("stats flushed", zap.Int("endpoints", n))
			}
		}
	}
}
