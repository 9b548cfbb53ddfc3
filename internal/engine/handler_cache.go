package engine

import (
	"github.com/xela07ax/mdrouter/internal/connectors"
	"github.com/xela07ax/mdrouter/internal/registry"
	"golang.org/x/sync/singleflight"
)

// HandlerCache лениво строит обработчик на первом обращении и хранит его в записи реестра.
// Параллельные первые обращения к одному эндпоинту сливаются в одну сборку.
type HandlerCache struct {
	factory *connectors.Factory
	group   singleflight.Group
}

func NewHandlerCache(factory *connectors.Factory) *HandlerCache {
	return &HandlerCache{factory: factory}
}

// Get возвращает закэшированный обработчик или строит его. Ошибки сборки не кэшируются.
func (c *HandlerCache) Get(e *registry.Entry) (connectors.Handler, error) {
	// Fast path
	if h := e.Handler(); h != nil {
		return h, nil
	}

	// Slow path
	v, err, _ := c.group.Do(e.ID(), func() (interface{}, error) {
		if h := e.Handler(); h != nil {
			return h, nil
		}
		h, err := c.factory.CreateHandler(e.Snapshot())
		if err != nil {
			return nil, err
		}
		return e.StoreHandler(h), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(connectors.Handler), nil
}
