package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/mdrouter/internal/connectors"
	"github.com/xela07ax/mdrouter/internal/domain"
	"go.uber.org/zap"
)

// fakeSource — источник в памяти; содержимое можно менять между перезагрузками
type fakeSource struct {
	mu  sync.Mutex
	eps []domain.Endpoint
	err error
}

func (f *fakeSource) LoadEndpoints(ctx context.Context) ([]domain.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Endpoint, len(f.eps))
	for i := range f.eps {
		out[i] = f.eps[i].Clone()
	}
	return out, nil
}

func (f *fakeSource) set(eps ...domain.Endpoint) {
	f.mu.Lock()
	f.eps = eps
	f.mu.Unlock()
}

func TestLoad_MergesBothSources(t *testing.T) {
	stats := &fakeSource{eps: []domain.Endpoint{statsRecord("a")}}
	config := &fakeSource{eps: []domain.Endpoint{
		{ID: "a", Description: "catalog"},
		{ID: "b", SourceType: "mock", DataCategory: "daily_kline", Status: domain.StatusActive},
	}}

	reg, err := Load(context.Background(), config, stats, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	a, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, "catalog", a.Snapshot().Description)
	assert.Equal(t, int64(10), a.Snapshot().TotalCalls)

	b, ok := reg.Get("b")
	require.True(t, ok)
	snap := b.Snapshot()
	assert.Equal(t, int64(0), snap.TotalCalls)
	assert.Equal(t, domain.HealthUnknown, snap.HealthStatus)
}

func TestLoad_FiltersInactive(t *testing.T) {
	off := statsRecord("off")
	off.Status = domain.StatusInactive
	stats := &fakeSource{eps: []domain.Endpoint{statsRecord("on"), off}}

	reg, err := Load(context.Background(), nil, stats, zap.NewNop())
	require.NoError(t, err)

	_, ok := reg.Get("off")
	assert.False(t, ok)
	_, ok = reg.Get("on")
	assert.True(t, ok)
}

func TestLoad_SingleSourceFailureDegrades(t *testing.T) {
	stats := &fakeSource{err: errors.New("connection refused")}
	config := &fakeSource{eps: []domain.Endpoint{{ID: "c", Status: domain.StatusActive}}}

	reg, err := Load(context.Background(), config, stats, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestLoad_BothSourcesFail(t *testing.T) {
	stats := &fakeSource{err: errors.New("db down")}
	config := &fakeSource{err: errors.New("file missing")}

	_, err := Load(context.Background(), config, stats, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestLoad_Idempotent(t *testing.T) {
	stats := &fakeSource{eps: []domain.Endpoint{statsRecord("a"), statsRecord("b")}}
	config := &fakeSource{eps: []domain.Endpoint{
		{ID: "b", Tags: []string{"x"}, TestParameters: map[string]any{"symbol": "600000"}},
		{ID: "c", SourceType: "mock", Status: domain.StatusActive, Priority: 4},
	}}

	first, err := Load(context.Background(), config, stats, zap.NewNop())
	require.NoError(t, err)
	second, err := Load(context.Background(), config, stats, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, first.Endpoints(), second.Endpoints())

	// Повторная перезагрузка того же реестра тоже ничего не сдвигает
	before := first.Endpoints()
	require.NoError(t, first.Reload(context.Background()))
	require.NoError(t, first.Reload(context.Background()))
	assert.Equal(t, before, first.Endpoints())
}

func TestReload_PreservesLiveCounters(t *testing.T) {
	stats := &fakeSource{eps: []domain.Endpoint{statsRecord("a")}}
	config := &fakeSource{eps: []domain.Endpoint{{ID: "a", Description: "v1"}}}

	reg, err := Load(context.Background(), config, stats, zap.NewNop())
	require.NoError(t, err)

	e, _ := reg.Get("a")
	e.Update(func(ep *domain.Endpoint) {
		ep.TotalCalls = 42
		ep.HealthStatus = domain.HealthDegraded
	})

	config.set(domain.Endpoint{ID: "a", Description: "v2"})
	require.NoError(t, reg.Reload(context.Background()))

	again, _ := reg.Get("a")
	assert.Same(t, e, again)
	snap := again.Snapshot()
	assert.Equal(t, "v2", snap.Description)
	assert.Equal(t, int64(42), snap.TotalCalls)
	assert.Equal(t, domain.HealthDegraded, snap.HealthStatus)
}

func TestReload_DeactivationIsStatusFlip(t *testing.T) {
	stats := &fakeSource{eps: []domain.Endpoint{statsRecord("a")}}
	reg, err := Load(context.Background(), nil, stats, zap.NewNop())
	require.NoError(t, err)

	off := statsRecord("a")
	off.Status = domain.StatusInactive
	stats.set(off)
	require.NoError(t, reg.Reload(context.Background()))

	e, ok := reg.Get("a")
	require.True(t, ok, "entry must not be removed at runtime")
	assert.Equal(t, domain.StatusInactive, e.Snapshot().Status)

	// Пропал из источников совсем — запись всё равно остается
	stats.set()
	require.NoError(t, reg.Reload(context.Background()))
	_, ok = reg.Get("a")
	assert.True(t, ok)
}

func TestReload_AddsNewActiveEndpoint(t *testing.T) {
	config := &fakeSource{}
	reg, err := Load(context.Background(), config, &fakeSource{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())

	config.set(domain.Endpoint{ID: "n", SourceType: "mock", Status: domain.StatusActive})
	require.NoError(t, reg.Reload(context.Background()))
	assert.Equal(t, 1, reg.Len())
}

type closingHandler struct {
	closed bool
}

func (h *closingHandler) Fetch(ctx context.Context, args map[string]any) (*domain.Table, error) {
	return nil, nil
}

func (h *closingHandler) Close() error {
	h.closed = true
	return nil
}

func TestReload_DropsHandlerWhenSourceTypeChanges(t *testing.T) {
	stats := &fakeSource{eps: []domain.Endpoint{statsRecord("a")}}
	reg, err := Load(context.Background(), nil, stats, zap.NewNop())
	require.NoError(t, err)

	e, _ := reg.Get("a")
	h := &closingHandler{}
	e.StoreHandler(h)

	// Та же декларативка — обработчик живет
	require.NoError(t, reg.Reload(context.Background()))
	assert.NotNil(t, e.Handler())

	changed := statsRecord("a")
	changed.SourceType = "grpc"
	stats.set(changed)
	require.NoError(t, reg.Reload(context.Background()))

	assert.Nil(t, e.Handler())
	assert.True(t, h.closed)
}

func TestEntry_StoreHandlerKeepsFirst(t *testing.T) {
	e := newEntry(domain.Endpoint{ID: "x"}, 0, 0)
	first := connectors.HandlerFunc(func(ctx context.Context, args map[string]any) (*domain.Table, error) { return nil, nil })
	second := &closingHandler{}

	got := e.StoreHandler(first)
	require.NotNil(t, got)
	got = e.StoreHandler(second)
	_, isSecond := got.(*closingHandler)
	assert.False(t, isSecond)
}

func TestEntry_ResultCache(t *testing.T) {
	e := newEntry(domain.Endpoint{ID: "x"}, 2, time.Minute)
	tbl := domain.NewTable([]string{"close"}, []map[string]any{{"close": 1.0}})

	_, ok := e.CachedResult("k")
	assert.False(t, ok)

	e.StoreResult("k", tbl)
	got, ok := e.CachedResult("k")
	require.True(t, ok)
	assert.Same(t, tbl, got)

	// Ограничение по размеру
	e.StoreResult("k2", tbl)
	e.StoreResult("k3", tbl)
	_, ok = e.CachedResult("k")
	assert.False(t, ok)

	disabled := newEntry(domain.Endpoint{ID: "y"}, 0, 0)
	disabled.StoreResult("k", tbl)
	_, ok = disabled.CachedResult("k")
	assert.False(t, ok)
}

func TestRegistry_SetStatus(t *testing.T) {
	reg, err := Load(context.Background(), nil, &fakeSource{eps: []domain.Endpoint{statsRecord("a")}}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, reg.SetStatus("a", domain.StatusInactive))
	e, _ := reg.Get("a")
	snap := e.Snapshot()
	assert.False(t, snap.IsActive())

	err = reg.SetStatus("missing", domain.StatusActive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntry_UpdateTouchesLastCall(t *testing.T) {
	e := newEntry(domain.Endpoint{ID: "x"}, 0, 0)
	assert.True(t, e.LastCall().IsZero())

	before, after := e.Update(func(ep *domain.Endpoint) { ep.TotalCalls++ })
	assert.Equal(t, int64(0), before.TotalCalls)
	assert.Equal(t, int64(1), after.TotalCalls)
	assert.False(t, e.LastCall().IsZero())
}

func TestReload_KeepsRuntimeStatus(t *testing.T) {
	stats := &fakeSource{eps: []domain.Endpoint{statsRecord("a"), statsRecord("b")}}
	config := &fakeSource{eps: []domain.Endpoint{{ID: "a", Description: "v1"}}}
	reg, err := Load(context.Background(), config, stats, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, reg.SetStatus("a", domain.StatusInactive))
	config.set(domain.Endpoint{ID: "a", Description: "v2"})
	require.NoError(t, reg.Reload(context.Background()))

	e, _ := reg.Get("a")
	snap := e.Snapshot()
	assert.Equal(t, domain.StatusInactive, snap.Status, "operator deactivation must survive reload")
	assert.Equal(t, "v2", snap.Description)

	// Обратное включение тоже закрепляется поверх источника
	off := statsRecord("b")
	off.Status = domain.StatusInactive
	stats.set(statsRecord("a"), off)
	require.NoError(t, reg.SetStatus("a", domain.StatusActive))
	require.NoError(t, reg.Reload(context.Background()))

	a, _ := reg.Get("a")
	assert.Equal(t, domain.StatusActive, a.Snapshot().Status)
	b, _ := reg.Get("b")
	assert.Equal(t, domain.StatusInactive, b.Snapshot().Status, "no override, source status applies")
}
