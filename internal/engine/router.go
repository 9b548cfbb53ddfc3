package engine

/*
Файл router.go — выбор поставщика под категорию данных.

Чтения идут по текущему неизменяемому снимку реестра: никаких глобальных блокировок и никакого I/O.
Порядок: priority по возрастанию, затем quality_score по убыванию; при равенстве — порядок вставки.
*/

import (
	"errors"
	"fmt"
	"sort"

	"github.com/xela07ax/mdrouter/internal/domain"
	"github.com/xela07ax/mdrouter/internal/registry"
)

var ErrNoEndpoint = errors.New("no endpoint available")

// Query — критерии поиска. Пустое поле — без фильтра.
type Query struct {
	Category            string
	ClassificationLevel *int
	SourceType          string
	OnlyEnabled         bool // только status == active
	OnlyHealthy         bool // исключить failed
}

// NewQuery — запрос с умолчаниями: только активные, любое здоровье
func NewQuery(category string) Query {
	return Query{Category: category, OnlyEnabled: true}
}

func (q Query) match(ep *domain.Endpoint) bool {
	if q.Category != "" && ep.DataCategory != q.Category {
		return false
	}
	if q.ClassificationLevel != nil && ep.ClassificationLevel != *q.ClassificationLevel {
		return false
	}
	if q.SourceType != "" && ep.SourceType != q.SourceType {
		return false
	}
	if q.OnlyEnabled && !ep.IsActive() {
		return false
	}
	if q.OnlyHealthy && ep.HealthStatus == domain.HealthFailed {
		return false
	}
	return true
}

type Router struct {
	reg *registry.Registry
}

func NewRouter(reg *registry.Registry) *Router {
	return &Router{reg: reg}
}

// FindEndpoints возвращает копии подходящих эндпоинтов в порядке предпочтения
func (r *Router) FindEndpoints(q Query) []domain.Endpoint {
	var out []domain.Endpoint
	for _, e := range r.reg.Entries() {
		ep := e.Snapshot()
		if q.match(&ep) {
			out = append(out, ep)
		}
	}
	Rank(out)
	return out
}

// GetBestEndpoint — лучший здоровый активный эндпоинт категории
func (r *Router) GetBestEndpoint(category string) (domain.Endpoint, error) {
	q := NewQuery(category)
	q.OnlyHealthy = true

	candidates := r.FindEndpoints(q)
	if len(candidates) == 0 {
		return domain.Endpoint{}, fmt.Errorf("%w: category %q", ErrNoEndpoint, category)
	}
	return candidates[0], nil
}

// Rank сортирует по priority (меньше — лучше), затем по quality_score (больше — лучше). Сортировка стабильная.
func Rank(eps []domain.Endpoint) {
	sort.SliceStable(eps, func(i, j int) bool {
		if eps[i].Priority != eps[j].Priority {
			return eps[i].Priority < eps[j].Priority
		}
		return eps[i].QualityScore > eps[j].QualityScore
	})
}
