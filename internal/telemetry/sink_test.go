package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/mdrouter/internal/domain"
	"go.uber.org/zap"
)

type memHistory struct {
	mu      sync.Mutex
	batches [][]domain.CallOutcome
	fail    bool
}

func (m *memHistory) WriteBatch(ctx context.Context, outcomes []domain.CallOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("history store unavailable")
	}
	m.batches = append(m.batches, outcomes)
	return nil
}

func (m *memHistory) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, b := range m.batches {
		for _, o := range b {
			out = append(out, o.ID)
		}
	}
	return out
}

func outcome(i int) domain.CallOutcome {
	return domain.CallOutcome{ID: fmt.Sprintf("o-%d", i), EndpointID: "a", Success: true}
}

func TestSink_BatchesBySize(t *testing.T) {
	store := &memHistory{}
	s := NewSink(store, nil, zap.NewNop(), Options{BatchSize: 3, FlushInterval: time.Hour})
	s.Start()

	for i := 0; i < 7; i++ {
		s.Record(outcome(i))
	}

	assert.Eventually(t, func() bool { return len(store.ids()) == 6 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.Len(t, store.ids(), 7, "final flush writes the tail")

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[0], 3)
	assert.Len(t, store.batches[2], 1)
}

func TestSink_FlushesByInterval(t *testing.T) {
	store := &memHistory{}
	s := NewSink(store, nil, zap.NewNop(), Options{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	s.Start()
	defer s.Stop()

	s.Record(outcome(1))
	assert.Eventually(t, func() bool { return len(store.ids()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSink_OverflowDropsNewest(t *testing.T) {
	store := &memHistory{}
	s := NewSink(store, nil, zap.NewNop(), Options{BufferSize: 2, FlushInterval: time.Hour})

	// Воркер еще не запущен — буфер заполняется
	s.Record(outcome(1))
	s.Record(outcome(2))
	s.Record(outcome(3))
	assert.Equal(t, int64(1), s.Dropped())

	s.Start()
	s.Stop()
	assert.Equal(t, []string{"o-1", "o-2"}, store.ids())
}

func TestSink_RecordAfterStopIsDropped(t *testing.T) {
	store := &memHistory{}
	s := NewSink(store, nil, zap.NewNop(), Options{})
	s.Start()
	s.Stop()

	assert.NotPanics(t, func() { s.Record(outcome(1)) })
	assert.Equal(t, int64(1), s.Dropped())
	assert.NotPanics(t, s.Stop)
}

func TestSink_StoreErrorsAreSwallowed(t *testing.T) {
	store := &memHistory{fail: true}
	s := NewSink(store, nil, zap.NewNop(), Options{BatchSize: 1})
	s.Start()

	s.Record(outcome(1))
	s.Record(outcome(2))
	s.Stop()

	assert.Empty(t, store.ids())
}

func TestSink_RecordStampsTimestamp(t *testing.T) {
	store := &memHistory{}
	s := NewSink(store, nil, zap.NewNop(), Options{})
	s.Start()
	s.Record(outcome(1))
	s.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.batches, 1)
	assert.False(t, store.batches[0][0].Timestamp.IsZero())
}

func TestSink_ConcurrentRecordAndStop(t *testing.T) {
	store := &memHistory{}
	s := NewSink(store, nil, zap.NewNop(), Options{BufferSize: 64, BatchSize: 8})
	s.Start()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Record(outcome(w*1000 + i))
			}
		}(w)
	}
	time.Sleep(5 * time.Millisecond)
	s.Stop()
	wg.Wait()

	assert.Equal(t, int64(800), int64(len(store.ids()))+s.Dropped())
}
