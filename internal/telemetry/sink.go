package telemetry

/*
Файл sink.go — приемник исходов вызовов (Call History).

- Non-blocking: Record никогда не ждет; переполненный буфер сбрасывает самый новый outcome
  (тот, что пытаются записать), с логом и счетчиком.
- Batching: накопление в памяти и пакетная запись в хранилище по размеру пачки или по таймеру.
- Drain Pattern: Stop закрывает канал, воркер вычитывает остаток и делает финальный flush.
- Ошибки хранилища логируются и проглатываются: телеметрия не гарантирует exactly-once.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xela07ax/mdrouter/internal/domain"
	"github.com/xela07ax/mdrouter/internal/engine"
	"go.uber.org/zap"
)

// HistoryStore определяет, куда физически сохраняются исходы вызовов
type HistoryStore interface {
	// WriteBatch сохраняет пачку исходов за один раз
	WriteBatch(ctx context.Context, outcomes []domain.CallOutcome) error
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

type Sink struct {
	ch      chan domain.CallOutcome // Буфер для асинхронности
	store   HistoryStore
	opts    Options
	metrics *engine.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup

	mu       sync.RWMutex // Record держит RLock на время отправки, Stop — Lock на время закрытия канала
	isClosed atomic.Bool

	dropped atomic.Int64
}

func NewSink(store HistoryStore, metrics *engine.Metrics, logger *zap.Logger, opts Options) *Sink {
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	opts = opts.withDefaults()
	return &Sink{
		ch:      make(chan domain.CallOutcome, opts.BufferSize),
		store:   store,
		opts:    opts,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "telemetry")),
	}
}

func (s *Sink) Start() {
	s.wg.Add(1)
	go s.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет. Повторный вызов безопасен.
func (s *Sink) Stop() {
	s.mu.Lock()
	if s.isClosed.Swap(true) {
		s.mu.Unlock()
		return
	}
	s.logger.Info("stopping telemetry sink: closing channel and flushing buffer...")
	close(s.ch)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("telemetry sink stopped gracefully", zap.Int64("dropped_total", s.dropped.Load()))
}

// Record ставит outcome в очередь. Никогда не блокирует.
func (s *Sink) Record(outcome domain.CallOutcome) {
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.isClosed.Load() {
		s.drop(outcome, "telemetry outcome dropped: sink is stopping")
		return
	}

	// Load Shedding: при переполнении теряем новый outcome, а не уже принятые
	select {
	case s.ch <- outcome:
		s.metrics.TelemetryBufferFill.Set(float64(len(s.ch)))
	default:
		s.drop(outcome, "telemetry_buffer_overflow")
	}
}

// Dropped — сколько outcome'ов потеряно с момента старта
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Sink) drop(o domain.CallOutcome, msg string) {
	s.dropped.Add(1)
	s.metrics.TelemetryDropped.Inc()
	s.logger.Error(msg,
		zap.String("id", o.ID),
		zap.String("endpoint_id", o.EndpointID),
		zap.Bool("success", o.Success))
}

func (s *Sink) worker() {
	defer s.wg.Done()

	batch := make([]domain.CallOutcome, 0, s.opts.BatchSize)
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Используем Background, так как основной контекст может быть уже закрыт
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		if err := s.store.WriteBatch(ctx, batch); err != nil {
			s.logger.Error("telemetry flush failed", zap.Int("batch", len(batch)), zap.Error(err))
		}
		cancel()
		// Новый слайс: хранилище могло оставить ссылку на старый
		batch = make([]domain.CallOutcome, 0, s.opts.BatchSize)
		s.metrics.TelemetryBufferFill.Set(float64(len(s.ch)))
	}

	for {
		select {
		case outcome, ok := <-s.ch:
			if !ok {
				// Канал закрыт в Stop(): всё, что было в очереди, уже вычитано
				flush()
				s.logger.Info("telemetry worker finished")
				return
			}
			batch = append(batch, outcome)
			if len(batch) >= s.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
