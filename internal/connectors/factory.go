package connectors

/*
Файл factory.go — явная таблица регистрации типов источников.
Набор вариантов закрыт: что не зарегистрировано при старте, то не будет построено никогда.
*/

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/xela07ax/mdrouter/internal/domain"
	"go.uber.org/zap"
)

// Известные типы источников
const (
	KindMock = "mock"
	KindHTTP = "http"
	KindGRPC = "grpc"
)

// Constructor строит обработчик для конкретного эндпоинта
type Constructor func(ep domain.Endpoint) (Handler, error)

// Factory — таблица source_type -> конструктор
type Factory struct {
	mu    sync.RWMutex
	kinds map[string]Constructor
}

func NewFactory() *Factory {
	return &Factory{kinds: make(map[string]Constructor)}
}

// NewDefaultFactory регистрирует все встроенные адаптеры
func NewDefaultFactory(logger *zap.Logger) *Factory {
	f := NewFactory()
	f.Register(KindMock, NewMockConnector)
	f.Register(KindHTTP, func(ep domain.Endpoint) (Handler, error) { return NewHTTPAdapter(ep, logger) })
	f.Register(KindGRPC, func(ep domain.Endpoint) (Handler, error) { return NewGRPCAdapter(ep) })
	return f
}

// Register добавляет (или перекрывает) конструктор для типа
func (f *Factory) Register(kind string, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds[kind] = c
}

// Supports — зарегистрирован ли тип
func (f *Factory) Supports(kind string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.kinds[kind]
	return ok
}

// Kinds — отсортированный список зарегистрированных типов
func (f *Factory) Kinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.kinds))
	for k := range f.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CreateHandler строит обработчик по source_type. Неизвестный тип — ConfigError.
func (f *Factory) CreateHandler(ep domain.Endpoint) (Handler, error) {
	f.mu.RLock()
	c, ok := f.kinds[ep.SourceType]
	f.mu.RUnlock()

	if !ok {
		return nil, &ConfigError{
			EndpointID: ep.ID,
			SourceType: ep.SourceType,
			Reason:     fmt.Sprintf("unknown source type, supported: %v", f.Kinds()),
		}
	}

	h, err := c(ep)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "constructor returned no handler"}
	}
	return h, nil
}

// requireConnection проверяет обязательные ключи connection
func requireConnection(ep domain.Endpoint, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if ep.Connection[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return &ConfigError{
			EndpointID: ep.ID,
			SourceType: ep.SourceType,
			Reason:     fmt.Sprintf("missing connection settings: %v", missing),
		}
	}
	return nil
}
