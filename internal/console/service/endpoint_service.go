package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/xela07ax/mdrouter/internal/domain"
	"github.com/xela07ax/mdrouter/internal/engine"
	"github.com/xela07ax/mdrouter/internal/registry"
	"go.uber.org/zap"
)

// StatusSetter — кто умеет включать/выключать эндпоинт (локально или на всех инстансах через Redis)
type StatusSetter interface {
	SetStatus(ctx context.Context, id string, status domain.EndpointStatus) error
}

// EndpointView — эндпоинт вместе с результатом последней активной проверки
type EndpointView struct {
	domain.Endpoint
	LastProbe *domain.HealthCheckResult `json:"last_probe,omitempty"`
}

type EndpointService struct {
	reg     *registry.Registry
	exec    *engine.Executor
	checker *engine.HealthChecker
	status  StatusSetter
	logger  *zap.Logger
}

// NewEndpointService собирает сервис. status == nil — статус меняется только в этом инстансе.
func NewEndpointService(reg *registry.Registry, exec *engine.Executor, checker *engine.HealthChecker, status StatusSetter, logger *zap.Logger) *EndpointService {
	if status == nil {
		status = localStatus{reg: reg}
	}
	return &EndpointService{
		reg:     reg,
		exec:    exec,
		checker: checker,
		status:  status,
		logger:  logger.Named("endpoint-service"),
	}
}

func (s *EndpointService) view(ep domain.Endpoint) EndpointView {
	v := EndpointView{Endpoint: ep}
	if r, ok := s.checker.LastResult(ep.ID); ok {
		v.LastProbe = &r
	}
	return v
}

// List — поиск через роутер
func (s *EndpointService) List(q engine.Query) []EndpointView {
	eps := s.exec.Router().FindEndpoints(q)
	out := make([]EndpointView, 0, len(eps))
	for _, ep := range eps {
		out = append(out, s.view(ep))
	}
	return out
}

func (s *EndpointService) Get(id string) (EndpointView, error) {
	e, err := s.reg.MustGet(id)
	if err != nil {
		return EndpointView{}, err
	}
	return s.view(e.Snapshot()), nil
}

func (s *EndpointService) Best(category string) (EndpointView, error) {
	ep, err := s.exec.Router().GetBestEndpoint(category)
	if err != nil {
		return EndpointView{}, err
	}
	return s.view(ep), nil
}

func (s *EndpointService) Check(ctx context.Context, id string) (domain.HealthCheckResult, error) {
	return s.checker.CheckOne(ctx, id)
}

func (s *EndpointService) CheckAll(ctx context.Context) domain.HealthSummary {
	return s.checker.CheckAll(ctx)
}

// Reload перечитывает оба источника эндпоинтов
func (s *EndpointService) Reload(ctx context.Context) (int, error) {
	if err := s.reg.Reload(ctx); err != nil {
		s.logger.Error("registry reload failed", zap.Error(err))
		return 0, err
	}
	return s.reg.Len(), nil
}

func (s *EndpointService) SetStatus(ctx context.Context, id string, status domain.EndpointStatus) error {
	switch status {
	case domain.StatusActive, domain.StatusInactive:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := s.status.SetStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info("endpoint status set by operator", zap.String("endpoint_id", id), zap.String("status", string(status)))
	return nil
}

// Fetch — запрос данных категории с фейловером по кандидатам
func (s *EndpointService) Fetch(ctx context.Context, category string, args map[string]any, caller string) (*engine.DispatchResult, error) {
	if caller == "" {
		caller = "ops-api"
	}
	return s.exec.Dispatch(ctx, category, args, engine.WithCaller(caller))
}

// GetGlobalStats — сводка по реестру
func (s *EndpointService) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	stats := &domain.GlobalStats{ByHealth: make(map[domain.HealthStatus]int)}
	byCategory := make(map[string]*domain.CategoryStats)

	for _, ep := range s.reg.Endpoints() {
		stats.TotalEndpoints++
		stats.ByHealth[ep.HealthStatus]++
		stats.TotalCalls += ep.TotalCalls
		stats.FailedCalls += ep.FailedCalls

		c, ok := byCategory[ep.DataCategory]
		if !ok {
			c = &domain.CategoryStats{Category: ep.DataCategory}
			byCategory[ep.DataCategory] = c
		}
		c.Total++
		if ep.IsActive() {
			stats.ActiveEndpoints++
			if ep.HealthStatus != domain.HealthFailed {
				c.Routable++
			}
		}
	}

	if stats.TotalCalls > 0 {
		stats.FailureRatio = float64(stats.FailedCalls) / float64(stats.TotalCalls)
	}
	for _, c := range byCategory {
		stats.Categories = append(stats.Categories, *c)
	}
	sort.Slice(stats.Categories, func(i, j int) bool { return stats.Categories[i].Category < stats.Categories[j].Category })
	return stats, nil
}

type localStatus struct {
	reg *registry.Registry
}

func (l localStatus) SetStatus(ctx context.Context, id string, status domain.EndpointStatus) error {
	return l.reg.SetStatus(id, status)
}
