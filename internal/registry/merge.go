package registry

/*
Файл merge.go — чистая функция слияния двух источников описаний эндпоинтов.
Хранилище статистики авторитетно для операционных полей, каталог — для декларативных.
Никаких хранилищ здесь нет: всё тестируется на голых структурах.
*/

import (
	"github.com/xela07ax/mdrouter/internal/domain"
)

// Имена декларативных полей, которые каталог имеет право перекрыть
const (
	FieldParameterSchema = "parameter_schema"
	FieldDescription     = "description"
	FieldTestParameters  = "test_parameters"
	FieldQualityRules    = "quality_rules"
	FieldUpdateSchedule  = "update_schedule"
	FieldTags            = "tags"
	FieldVersion         = "version"
)

// DeclarativeWhitelist — фиксированный набор полей, который каталог переносит поверх записи статистики.
var DeclarativeWhitelist = []string{
	FieldParameterSchema,
	FieldDescription,
	FieldTestParameters,
	FieldQualityRules,
	FieldUpdateSchedule,
	FieldTags,
	FieldVersion,
}

// Merge берет base за основу и переносит из overlay только поля из whitelist.
// Операционные счетчики base не трогаются никогда. Неизвестные имена полей игнорируются.
func Merge(base, overlay domain.Endpoint, whitelist []string) domain.Endpoint {
	out := base.Clone()
	src := overlay.Clone()

	for _, field := range whitelist {
		switch field {
		case FieldParameterSchema:
			out.ParameterSchema = src.ParameterSchema
		case FieldDescription:
			out.Description = src.Description
		case FieldTestParameters:
			out.TestParameters = src.TestParameters
		case FieldQualityRules:
			out.QualityRules = src.QualityRules
		case FieldUpdateSchedule:
			out.UpdateSchedule = src.UpdateSchedule
		case FieldTags:
			out.Tags = src.Tags
		case FieldVersion:
			out.Version = src.Version
		}
	}
	return out
}

// MergeAll сводит оба набора в один список без фильтрации по статусу.
// Порядок детерминирован: сначала записи статистики в их порядке, затем новые id из каталога.
// Дубликаты id внутри одного источника: побеждает первая запись.
func MergeAll(stats, config []domain.Endpoint) []domain.Endpoint {
	overlay := make(map[string]domain.Endpoint, len(config))
	for _, ep := range config {
		if _, dup := overlay[ep.ID]; !dup {
			overlay[ep.ID] = ep
		}
	}

	seen := make(map[string]struct{}, len(stats)+len(config))
	out := make([]domain.Endpoint, 0, len(stats)+len(config))

	// 1. База — хранилище статистики (+ whitelist из каталога)
	for _, base := range stats {
		if _, dup := seen[base.ID]; dup {
			continue
		}
		seen[base.ID] = struct{}{}

		merged := base.Clone()
		if cfg, ok := overlay[base.ID]; ok {
			merged = Merge(base, cfg, DeclarativeWhitelist)
		}
		normalize(&merged)
		out = append(out, merged)
	}

	// 2. Эндпоинты, известные только каталогу — новые, с нулевым операционным состоянием
	for _, cfg := range config {
		if _, dup := seen[cfg.ID]; dup {
			continue
		}
		seen[cfg.ID] = struct{}{}

		fresh := cfg.Clone()
		fresh.ResetOperational()
		normalize(&fresh)
		out = append(out, fresh)
	}

	return out
}

// normalize закрывает пустые значения перечислений
func normalize(ep *domain.Endpoint) {
	if ep.Status == "" {
		ep.Status = domain.StatusActive
	}
	if ep.HealthStatus == "" {
		ep.HealthStatus = domain.HealthUnknown
	}
}
