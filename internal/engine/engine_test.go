package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xela07ax/mdrouter/internal/connectors"
	"github.com/xela07ax/mdrouter/internal/domain"
	"github.com/xela07ax/mdrouter/internal/registry"
	"go.uber.org/zap"
)

// staticSource — хранилище статистики в памяти: отдает эндпоинты как есть
type staticSource []domain.Endpoint

func (s staticSource) LoadEndpoints(ctx context.Context) ([]domain.Endpoint, error) {
	out := make([]domain.Endpoint, len(s))
	for i := range s {
		out[i] = s[i].Clone()
	}
	return out, nil
}

func newTestRegistry(t *testing.T, eps ...domain.Endpoint) *registry.Registry {
	t.Helper()
	reg, err := registry.Load(context.Background(), nil, staticSource(eps), zap.NewNop())
	require.NoError(t, err)
	return reg
}

func endpoint(id, category string, priority int, quality float64) domain.Endpoint {
	return domain.Endpoint{
		ID:           id,
		SourceType:   "stub",
		DataCategory: category,
		Status:       domain.StatusActive,
		Priority:     priority,
		QualityScore: quality,
		HealthStatus: domain.HealthUnknown,
	}
}

// recorder копит outcome'ы для проверок
type recorder struct {
	mu       sync.Mutex
	outcomes []domain.CallOutcome
}

func (r *recorder) Record(o domain.CallOutcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *recorder) all() []domain.CallOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CallOutcome(nil), r.outcomes...)
}

// stubFactory регистрирует тип "stub", который отдает обработчик из handlers по id
func stubFactory(handlers map[string]connectors.Handler) *connectors.Factory {
	f := connectors.NewFactory()
	f.Register("stub", func(ep domain.Endpoint) (connectors.Handler, error) {
		h, ok := handlers[ep.ID]
		if !ok {
			return nil, &connectors.ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "no stub"}
		}
		return h, nil
	})
	return f
}

func rowsHandler(n int) connectors.Handler {
	return connectors.HandlerFunc(func(ctx context.Context, args map[string]any) (*domain.Table, error) {
		rows := make([]map[string]any, n)
		for i := range rows {
			rows[i] = map[string]any{"date": "2026-01-05", "close": float64(i)}
		}
		return domain.NewTable([]string{"date", "close"}, rows), nil
	})
}
