package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/mdrouter/internal/domain"
	"go.uber.org/zap"
)

type memStats struct {
	mu    sync.Mutex
	saved [][]domain.Endpoint
	err   error
}

func (m *memStats) SaveStats(ctx context.Context, eps []domain.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, eps)
	return nil
}

func TestStatsFlusher_WritesOnlyTouchedEndpoints(t *testing.T) {
	reg := newTestRegistry(t, endpoint("a", "k", 1, 8), endpoint("b", "k", 1, 8))
	store := &memStats{}
	f := NewStatsFlusher(reg, store, zap.NewNop())

	n, err := f.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	a, _ := reg.Get("a")
	a.Update(func(ep *domain.Endpoint) { ApplySuccess(ep, 0.1, t0, DefaultThresholds()) })

	n, err = f.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "a", store.saved[0][0].ID)
	assert.Equal(t, int64(1), store.saved[0][0].TotalCalls)

	// Ничего нового — нечего писать
	n, err = f.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStatsFlusher_FailedFlushIsRetried(t *testing.T) {
	reg := newTestRegistry(t, endpoint("a", "k", 1, 8))
	store := &memStats{err: errors.New("db down")}
	f := NewStatsFlusher(reg, store, zap.NewNop())

	a, _ := reg.Get("a")
	a.Update(func(ep *domain.Endpoint) { ApplyFailure(ep, t0, DefaultThresholds()) })

	_, err := f.Flush(context.Background())
	require.Error(t, err)

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	n, err := f.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStatsFlusher_ZeroIntervalOnlyFinalFlush(t *testing.T) {
	reg := newTestRegistry(t, endpoint("a", "k", 1, 8))
	store := &memStats{}
	f := NewStatsFlusher(reg, store, zap.NewNop())

	a, _ := reg.Get("a")
	a.Update(func(ep *domain.Endpoint) { ApplySuccess(ep, 0.1, t0, DefaultThresholds()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Start(ctx, 0)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	store.mu.Lock()
	assert.Empty(t, store.saved, "no periodic flush when interval is zero")
	store.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flusher did not stop")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.saved, 1)
	assert.Equal(t, "a", store.saved[0][0].ID)
}
