package registry

/*
Файл registry.go — in-memory реестр эндпоинтов.

- Снимок (snapshot) неизменяем и подменяется атомарно: чтения роутера не берут глобальных блокировок.
- Записи (Entry) живут дольше снимков: при перезагрузке существующие записи переезжают в новый
  снимок вместе со счетчиками, обработчиком и кэшем результатов.
- Удаления в рантайме нет: деактивация — это смена статуса.
*/

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xela07ax/mdrouter/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrNotFound  = errors.New("registry: endpoint not found")
	ErrNoSources = errors.New("registry: both endpoint sources are unavailable")
)

// Source — любой поставщик описаний эндпоинтов (каталог или хранилище статистики)
type Source interface {
	LoadEndpoints(ctx context.Context) ([]domain.Endpoint, error)
}

type snapshot struct {
	order []*Entry // порядок вставки — он же порядок для стабильной сортировки роутера
	byID  map[string]*Entry
}

func (s *snapshot) add(e *Entry) {
	s.order = append(s.order, e)
	s.byID[e.ID()] = e
}

// Registry — явный, инжектируемый реестр (никаких синглтонов)
type Registry struct {
	snap atomic.Pointer[snapshot]

	reloadMu sync.Mutex // Эксклюзив только на фазу загрузки/перезагрузки
	config   Source
	stats    Source
	logger   *zap.Logger

	cacheSize int
	cacheTTL  time.Duration
}

type Option func(*Registry)

// WithResultCache включает ограниченный кэш результатов на каждой записи
func WithResultCache(size int, ttl time.Duration) Option {
	return func(r *Registry) {
		r.cacheSize = size
		r.cacheTTL = ttl
	}
}

// New создает пустой реестр. Данные появятся после Reload.
func New(config, stats Source, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		config: config,
		stats:  stats,
		logger: logger.Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(&snapshot{byID: map[string]*Entry{}})
	return r
}

// Load — контракт загрузчика: читает оба источника и возвращает готовый реестр.
// Ошибка только если недоступны оба источника.
func Load(ctx context.Context, config, stats Source, logger *zap.Logger, opts ...Option) (*Registry, error) {
	r := New(config, stats, logger, opts...)
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload перечитывает оба источника и атомарно подменяет снимок.
func (r *Registry) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	merged, err := r.readSources(ctx)
	if err != nil {
		return err
	}

	prev := r.snap.Load()
	next := &snapshot{byID: make(map[string]*Entry, len(merged))}

	var added, refreshed, skipped int
	for _, ep := range merged {
		if e, ok := prev.byID[ep.ID]; ok {
			// Живая запись: декларативка свежая, счетчики из памяти
			e.refresh(ep)
			next.add(e)
			refreshed++
			continue
		}
		if !ep.IsActive() {
			skipped++
			continue
		}
		next.add(newEntry(ep, r.cacheSize, r.cacheTTL))
		added++
	}

	// Пропавшие из обоих источников записи не удаляем
	for _, e := range prev.order {
		if _, ok := next.byID[e.ID()]; !ok {
			next.add(e)
		}
	}

	r.snap.Store(next)
	r.logger.Info("registry loaded",
		zap.Int("total", len(next.order)),
		zap.Int("added", added),
		zap.Int("refreshed", refreshed),
		zap.Int("skipped_inactive", skipped))
	return nil
}

// readSources читает источники; недоступный источник деградирует в пустой вклад
func (r *Registry) readSources(ctx context.Context) ([]domain.Endpoint, error) {
	stats, statsErr := r.read(ctx, r.stats, "stats")
	config, configErr := r.read(ctx, r.config, "config")

	if statsErr != nil && configErr != nil {
		return nil, fmt.Errorf("%w: stats: %v; config: %v", ErrNoSources, statsErr, configErr)
	}
	return MergeAll(stats, config), nil
}

func (r *Registry) read(ctx context.Context, src Source, name string) ([]domain.Endpoint, error) {
	if src == nil {
		err := fmt.Errorf("%s source is not configured", name)
		r.logger.Warn("endpoint source unavailable", zap.String("source", name), zap.Error(err))
		return nil, err
	}
	eps, err := src.LoadEndpoints(ctx)
	if err != nil {
		r.logger.Error("endpoint source unreadable, continuing without it",
			zap.String("source", name), zap.Error(err))
		return nil, err
	}
	return eps, nil
}

// Get ищет запись по id
func (r *Registry) Get(id string) (*Entry, bool) {
	e, ok := r.snap.Load().byID[id]
	return e, ok
}

// MustGet — Get с ошибкой ErrNotFound
func (r *Registry) MustGet(id string) (*Entry, error) {
	e, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Entries возвращает записи в порядке вставки
func (r *Registry) Entries() []*Entry {
	order := r.snap.Load().order
	out := make([]*Entry, len(order))
	copy(out, order)
	return out
}

// Endpoints — копии всех эндпоинтов в порядке вставки
func (r *Registry) Endpoints() []domain.Endpoint {
	order := r.snap.Load().order
	out := make([]domain.Endpoint, 0, len(order))
	for _, e := range order {
		out = append(out, e.Snapshot())
	}
	return out
}

// Len — размер текущего снимка
func (r *Registry) Len() int {
	return len(r.snap.Load().order)
}

// SetStatus переключает статус эндпоинта
func (r *Registry) SetStatus(id string, status domain.EndpointStatus) error {
	e, err := r.MustGet(id)
	if err != nil {
		return err
	}
	if e.SetStatus(status) {
		r.logger.Info("endpoint status changed", zap.String("endpoint_id", id), zap.String("status", string(status)))
	}
	return nil
}

// Close освобождает ресурсы всех закэшированных обработчиков
func (r *Registry) Close() {
	for _, e := range r.snap.Load().order {
		e.ResetHandler()
	}
}
