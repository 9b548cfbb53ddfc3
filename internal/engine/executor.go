package engine

/*
Файл executor.go — исполнение вызова поставщика и обратная связь в реестр.

- Каждый завершенный вызов дает ровно один CallOutcome в телеметрию.
- Ошибка конфигурации (обработчик не собрать) возвращается до изменения счетчиков и без outcome.
- Fetch выполняется в отдельной горутине: при отмене контекста исполнитель перестает ждать
  и фиксирует отказ, даже если адаптер контекст игнорирует.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/mdrouter/internal/connectors"
	"github.com/xela07ax/mdrouter/internal/domain"
	"github.com/xela07ax/mdrouter/internal/registry"
	"go.uber.org/zap"
)

// Recorder — приемник исходов вызовов (телеметрия). Не должен блокировать.
type Recorder interface {
	Record(outcome domain.CallOutcome)
}

// Transition — смена статуса здоровья эндпоинта
type Transition struct {
	EndpointID string
	From, To   domain.HealthStatus
	At         time.Time
}

type TransitionFunc func(Transition)

type Executor struct {
	reg      *registry.Registry
	router   *Router
	handlers *HandlerCache
	recorder Recorder
	metrics  *Metrics
	logger   *zap.Logger

	thresholds  Thresholds
	callTimeout time.Duration // 0 — только контекст вызывающего
	maxFailover int
	hooks       []TransitionFunc
	now         func() time.Time
}

type ExecutorOption func(*Executor)

func WithThresholds(t Thresholds) ExecutorOption {
	return func(e *Executor) { e.thresholds = t.normalized() }
}

// WithCallTimeout — таймаут по умолчанию на каждый вызов
func WithCallTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.callTimeout = d }
}

// WithMaxFailover — сколько кандидатов пробует Dispatch
func WithMaxFailover(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxFailover = n
		}
	}
}

func WithRecorder(r Recorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// OnTransition подписывает хук на смены статуса здоровья (метрики, redis, журнал)
func OnTransition(fn TransitionFunc) ExecutorOption {
	return func(e *Executor) { e.hooks = append(e.hooks, fn) }
}

func NewExecutor(reg *registry.Registry, handlers *HandlerCache, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		reg:         reg,
		router:      NewRouter(reg),
		handlers:    handlers,
		recorder:    nopRecorder{},
		metrics:     NewMetrics(nil),
		logger:      logger.With(zap.String("mod", "executor")),
		thresholds:  DefaultThresholds(),
		maxFailover: 3,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Router — роутер поверх того же реестра
func (e *Executor) Router() *Router { return e.router }

type callOptions struct {
	timeout time.Duration
	caller  string
}

type CallOption func(*callOptions)

// WithTimeout ограничивает конкретный вызов
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithCaller явно задает место вызова для телеметрии
func WithCaller(caller string) CallOption {
	return func(o *callOptions) { o.caller = caller }
}

// Execute вызывает обработчик эндпоинта и обновляет его состояние
func (e *Executor) Execute(ctx context.Context, endpointID string, args map[string]any, opts ...CallOption) (*domain.Table, error) {
	o := callOptions{timeout: e.callTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.caller == "" {
		o.caller = callerSite()
	}

	entry, err := e.reg.MustGet(endpointID)
	if err != nil {
		return nil, err
	}

	handler, err := e.handlers.Get(entry)
	if err != nil {
		e.metrics.ErrorTotal.WithLabelValues("config").Inc()
		e.logger.Error("handler unavailable", zap.String("endpoint_id", endpointID), zap.Error(err))
		return nil, err
	}

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	table, err := fetch(callCtx, handler, args)
	elapsed := time.Since(start).Seconds()

	e.complete(entry, o.caller, elapsed, table, err)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", endpointID, err)
	}
	return table, nil
}

// ExecuteCached отдает свежий результат из кэша записи, если он есть.
// Попадание в кэш — не вызов: счетчики и телеметрия не трогаются.
func (e *Executor) ExecuteCached(ctx context.Context, endpointID string, args map[string]any, opts ...CallOption) (*domain.Table, error) {
	entry, err := e.reg.MustGet(endpointID)
	if err != nil {
		return nil, err
	}

	key, keyErr := resultKey(args)
	if keyErr == nil {
		if t, ok := entry.CachedResult(key); ok {
			e.metrics.ResultCacheHits.WithLabelValues(endpointID).Inc()
			return t, nil
		}
	}

	table, err := e.Execute(ctx, endpointID, args, opts...)
	if err != nil {
		return nil, err
	}
	if keyErr == nil {
		entry.StoreResult(key, table)
	}
	return table, nil
}

// DispatchResult — итог Dispatch: кто ответил и с какой попытки
type DispatchResult struct {
	EndpointID string
	Attempts   int
	Table      *domain.Table
}

// Dispatch идет по ранжированным здоровым кандидатам категории и возвращает первый успех.
// Каждая попытка — полноценный Execute со своим outcome.
func (e *Executor) Dispatch(ctx context.Context, category string, args map[string]any, opts ...CallOption) (*DispatchResult, error) {
	q := NewQuery(category)
	q.OnlyHealthy = true
	candidates := e.router.FindEndpoints(q)
	if len(candidates) == 0 {
		e.metrics.ErrorTotal.WithLabelValues("no_endpoint").Inc()
		return nil, fmt.Errorf("%w: category %q", ErrNoEndpoint, category)
	}
	if len(candidates) > e.maxFailover {
		candidates = candidates[:e.maxFailover]
	}

	// Место вызова фиксируем здесь, иначе все попытки припишутся самому Dispatch
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.caller == "" {
		opts = append(opts[:len(opts):len(opts)], WithCaller(callerSite()))
	}

	var lastErr error
	for i, ep := range candidates {
		table, err := e.ExecuteCached(ctx, ep.ID, args, opts...)
		if err == nil {
			return &DispatchResult{EndpointID: ep.ID, Attempts: i + 1, Table: table}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		e.logger.Warn("failing over to next endpoint",
			zap.String("category", category),
			zap.String("endpoint_id", ep.ID),
			zap.Int("attempt", i+1),
			zap.Error(err))
	}
	return nil, lastErr
}

// complete — единственное место, где вызов влияет на состояние эндпоинта
func (e *Executor) complete(entry *registry.Entry, caller string, elapsed float64, table *domain.Table, callErr error) {
	now := e.now()

	before, after := entry.Update(func(ep *domain.Endpoint) {
		if callErr == nil {
			ApplySuccess(ep, elapsed, now, e.thresholds)
		} else {
			ApplyFailure(ep, now, e.thresholds)
		}
	})

	outcome := domain.CallOutcome{
		ID:           uuid.NewString(),
		EndpointID:   after.ID,
		DataCategory: after.DataCategory,
		Timestamp:    now,
		Success:      callErr == nil,
		ResponseTime: elapsed,
		Caller:       caller,
	}

	status := "success"
	if callErr == nil {
		outcome.RecordCount = table.Len()
	} else {
		status = "failure"
		outcome.ErrorMessage = callErr.Error()
		e.metrics.ErrorTotal.WithLabelValues(errorType(callErr)).Inc()
		e.logger.Warn("vendor call failed",
			zap.String("endpoint_id", after.ID),
			zap.Int("consecutive_failures", after.ConsecutiveFailures),
			zap.Float64("elapsed", elapsed),
			zap.Error(callErr))
	}

	e.metrics.CallsTotal.WithLabelValues(after.ID, after.DataCategory).Inc()
	e.metrics.CallDuration.WithLabelValues(after.ID, after.DataCategory, status).Observe(elapsed)
	e.metrics.EndpointHealth.WithLabelValues(after.ID).Set(HealthValue(after.HealthStatus))

	if before.HealthStatus != after.HealthStatus {
		e.transition(Transition{EndpointID: after.ID, From: before.HealthStatus, To: after.HealthStatus, At: now})
	}

	e.recorder.Record(outcome)
}

func (e *Executor) transition(t Transition) {
	e.metrics.HealthTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()

	fields := []zap.Field{
		zap.String("endpoint_id", t.EndpointID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
	}
	if t.To == domain.HealthFailed {
		e.logger.Error("endpoint marked failed", fields...)
	} else {
		e.logger.Info("endpoint health changed", fields...)
	}

	for _, hook := range e.hooks {
		hook(t)
	}
}

// fetch не дает зависшему адаптеру удержать вызывающего дольше его контекста
func fetch(ctx context.Context, h connectors.Handler, args map[string]any) (*domain.Table, error) {
	type result struct {
		table *domain.Table
		err   error
	}
	done := make(chan result, 1) // буфер: горутина не утечет, если ответ уже никому не нужен

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		t, err := h.Fetch(ctx, args)
		done <- result{table: t, err: err}
	}()

	select {
	case r := <-done:
		return r.table, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func errorType(err error) string {
	var cErr *connectors.ConfigError
	var tErr *connectors.ThrottleError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &tErr):
		return "rate_limit"
	case errors.As(err, &cErr):
		return "config"
	default:
		return "vendor"
	}
}

// resultKey — канонический ключ аргументов (encoding/json сортирует ключи map)
func resultKey(args map[string]any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const enginePkg = "github.com/xela07ax/mdrouter/internal/engine."

// callerSite — первый кадр стека вне пакета engine, "file:line". Best-effort.
func callerSite() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		inEngine := strings.HasPrefix(f.Function, enginePkg) && !strings.HasSuffix(f.File, "_test.go")
		if !inEngine && f.File != "" {
			return fmt.Sprintf("%s:%d", shortFile(f.File), f.Line)
		}
		if !more {
			return "unknown"
		}
	}
}

func shortFile(path string) string {
	// Оставляем каталог пакета и имя файла
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return path
	}
	if prev := strings.LastIndex(path[:idx], "/"); prev >= 0 {
		return path[prev+1:]
	}
	return path
}

type nopRecorder struct{}

func (nopRecorder) Record(domain.CallOutcome) {}
