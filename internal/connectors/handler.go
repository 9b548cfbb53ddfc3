package connectors

import (
	"context"

	"github.com/xela07ax/mdrouter/internal/domain"
)

// Handler — единый контракт адаптера поставщика данных. Всё остальное (соединения,
// токены, лимитеры) — его внутреннее дело.
type Handler interface {
	Fetch(ctx context.Context, args map[string]any) (*domain.Table, error)
}

// HandlerFunc позволяет использовать функцию как Handler (удобно в тестах и для заглушек)
type HandlerFunc func(ctx context.Context, args map[string]any) (*domain.Table, error)

func (f HandlerFunc) Fetch(ctx context.Context, args map[string]any) (*domain.Table, error) {
	return f(ctx, args)
}
