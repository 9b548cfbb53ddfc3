package registry

import (
	"io"
	"maps"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xela07ax/mdrouter/internal/connectors"
	"github.com/xela07ax/mdrouter/internal/domain"
)

// Entry — запись реестра: эндпоинт + закэшированный обработчик + ограниченный кэш результатов.
// Операционные поля защищены собственным мьютексом записи: разные эндпоинты друг друга не блокируют.
type Entry struct {
	id string

	mu       sync.RWMutex
	ep       domain.Endpoint
	lastCall time.Time
	override *domain.EndpointStatus // статус, выставленный в рантайме; переживает перезагрузки

	hmu     sync.Mutex
	handler connectors.Handler

	results *expirable.LRU[string, *domain.Table] // nil — кэш выключен
}

func newEntry(ep domain.Endpoint, cacheSize int, cacheTTL time.Duration) *Entry {
	e := &Entry{id: ep.ID, ep: ep.Clone()}
	if cacheSize > 0 && cacheTTL > 0 {
		e.results = expirable.NewLRU[string, *domain.Table](cacheSize, nil, cacheTTL)
	}
	return e
}

// ID неизменен на всю жизнь записи
func (e *Entry) ID() string { return e.id }

// Snapshot возвращает копию эндпоинта
func (e *Entry) Snapshot() domain.Endpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ep.Clone()
}

// Update атомарно применяет fn к операционным полям под эксклюзивной блокировкой записи
// и возвращает состояние до и после.
func (e *Entry) Update(fn func(ep *domain.Endpoint)) (before, after domain.Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()

	before = e.ep.Clone()
	fn(&e.ep)
	e.lastCall = time.Now()
	return before, e.ep.Clone()
}

// LastCall — время последнего изменения операционного состояния вызовом
func (e *Entry) LastCall() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastCall
}

// SetStatus переключает видимость для роутера (деактивация — это флаг, а не удаление).
// Выставленный так статус сильнее декларативного: перезагрузка каталога его не сбрасывает.
func (e *Entry) SetStatus(status domain.EndpointStatus) (changed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.override = &status
	if e.ep.Status == status {
		return false
	}
	e.ep.Status = status
	return true
}

// refresh заменяет декларативные поля свежей записью, сохраняя живые счетчики.
// Если поменялся тип источника или настройки соединения — старый обработчик выбрасывается.
func (e *Entry) refresh(fresh domain.Endpoint) {
	e.mu.Lock()
	next := fresh.Clone()
	next.CopyCountersFrom(&e.ep)
	if e.override != nil {
		next.Status = *e.override
	}
	stale := e.ep.SourceType != next.SourceType || !maps.Equal(e.ep.Connection, next.Connection)
	e.ep = next
	e.mu.Unlock()

	if stale {
		e.ResetHandler()
		e.PurgeResults()
	}
}

// Handler возвращает закэшированный обработчик или nil
func (e *Entry) Handler() connectors.Handler {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	return e.handler
}

// StoreHandler кладет обработчик, только если слот пуст. Возвращает тот, что в итоге в слоте.
func (e *Entry) StoreHandler(h connectors.Handler) connectors.Handler {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	if e.handler == nil {
		e.handler = h
	}
	return e.handler
}

// ResetHandler выбрасывает обработчик (закрывая его, если он держит ресурсы)
func (e *Entry) ResetHandler() {
	e.hmu.Lock()
	h := e.handler
	e.handler = nil
	e.hmu.Unlock()

	if c, ok := h.(io.Closer); ok {
		_ = c.Close()
	}
}

// CachedResult достает свежий результат для ключа аргументов
func (e *Entry) CachedResult(key string) (*domain.Table, bool) {
	if e.results == nil {
		return nil, false
	}
	return e.results.Get(key)
}

// StoreResult кладет результат в ограниченный кэш записи
func (e *Entry) StoreResult(key string, t *domain.Table) {
	if e.results == nil || t == nil {
		return
	}
	e.results.Add(key, t)
}

// PurgeResults очищает кэш результатов
func (e *Entry) PurgeResults() {
	if e.results != nil {
		e.results.Purge()
	}
}
