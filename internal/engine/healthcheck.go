package engine

/*
Файл healthcheck.go — активные проверки эндпоинтов.

Проверка — отдельный диагностический канал: она не двигает health_status и consecutive_failures
(их меняют только боевые вызовы). Результат уходит в метрики и хранится как "последняя проверка".
*/

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/mdrouter/internal/domain"
	"github.com/xela07ax/mdrouter/internal/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type HealthChecker struct {
	reg      *registry.Registry
	handlers *HandlerCache
	metrics  *Metrics
	logger   *zap.Logger

	workers int
	timeout time.Duration

	mu   sync.RWMutex
	last map[string]domain.HealthCheckResult

	now func() time.Time
}

func NewHealthChecker(reg *registry.Registry, handlers *HandlerCache, metrics *Metrics, logger *zap.Logger, workers int, timeout time.Duration) *HealthChecker {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if workers <= 0 {
		workers = 4
	}
	return &HealthChecker{
		reg:      reg,
		handlers: handlers,
		metrics:  metrics,
		logger:   logger.With(zap.String("mod", "healthcheck")),
		workers:  workers,
		timeout:  timeout,
		last:     make(map[string]domain.HealthCheckResult),
		now:      time.Now,
	}
}

// CheckOne прогоняет тестовый вызов с test_parameters и проверяет quality_rules.
// Ошибка возвращается только для неизвестного id; всё остальное — в статусе результата.
func (c *HealthChecker) CheckOne(ctx context.Context, endpointID string) (domain.HealthCheckResult, error) {
	entry, err := c.reg.MustGet(endpointID)
	if err != nil {
		return domain.HealthCheckResult{}, err
	}

	res := c.probe(ctx, entry)
	c.store(res)
	return res, nil
}

func (c *HealthChecker) probe(ctx context.Context, entry *registry.Entry) domain.HealthCheckResult {
	ep := entry.Snapshot()
	res := domain.HealthCheckResult{EndpointID: ep.ID, CheckedAt: c.now()}

	handler, err := c.handlers.Get(entry)
	if err != nil {
		res.Status = domain.ProbeError
		res.Error = err.Error()
		return res
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	table, err := fetch(ctx, handler, ep.TestParameters)
	res.ResponseTime = time.Since(start).Seconds()

	if err != nil {
		res.Status = domain.ProbeError
		res.Error = err.Error()
		return res
	}

	res.RecordCount = table.Len()
	if violation := checkQuality(table, ep.QualityRules); violation != "" {
		res.Status = domain.ProbeUnhealthy
		res.Error = violation
		return res
	}

	res.Status = domain.ProbeHealthy
	if head := table.Head(); head != nil {
		res.Sample = maps.Clone(head)
	}
	return res
}

// checkQuality — только структурные минимумы: число записей и обязательные колонки
func checkQuality(t *domain.Table, rules domain.QualityRules) string {
	if t.Len() < rules.MinRecords {
		return fmt.Sprintf("expected at least %d records, got %d", rules.MinRecords, t.Len())
	}
	if missing := t.MissingColumns(rules.RequiredFields); len(missing) > 0 {
		return fmt.Sprintf("missing required fields: %v", missing)
	}
	return ""
}

// CheckAll проверяет все записи реестра на ограниченном пуле воркеров
func (c *HealthChecker) CheckAll(ctx context.Context) domain.HealthSummary {
	entries := c.reg.Entries()
	results := make([]domain.HealthCheckResult, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, entry := range entries {
		g.Go(func() error {
			results[i] = c.probe(gctx, entry)
			c.store(results[i])
			return nil // отказ одной проверки не отменяет остальные
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].EndpointID < results[j].EndpointID })

	summary := domain.HealthSummary{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == domain.ProbeHealthy {
			summary.Healthy++
		} else {
			summary.Unhealthy++
		}
	}

	c.logger.Info("health check finished",
		zap.Int("total", summary.Total),
		zap.Int("healthy", summary.Healthy),
		zap.Int("unhealthy", summary.Unhealthy))
	return summary
}

// LastResult — результат последней проверки эндпоинта
func (c *HealthChecker) LastResult(endpointID string) (domain.HealthCheckResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.last[endpointID]
	return r, ok
}

// Start гоняет CheckAll по таймеру до отмены контекста
func (c *HealthChecker) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("periodic probes started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("periodic probes stopped")
			return
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

func (c *HealthChecker) store(r domain.HealthCheckResult) {
	c.metrics.ProbeTotal.WithLabelValues(r.EndpointID, string(r.Status)).Inc()
	c.metrics.ProbeDuration.WithLabelValues(r.EndpointID).Observe(r.ResponseTime)

	if r.Status != domain.ProbeHealthy {
		c.logger.Warn("probe failed",
			zap.String("endpoint_id", r.EndpointID),
			zap.String("status", string(r.Status)),
			zap.String("error", r.Error))
	}

	c.mu.Lock()
	c.last[r.EndpointID] = r
	c.mu.Unlock()
}
