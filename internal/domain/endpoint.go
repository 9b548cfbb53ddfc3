package domain

import (
	"maps"
	"slices"
	"time"
)

// EndpointStatus — административный статус интеграции (видимость для роутера)
type EndpointStatus string

const (
	StatusActive   EndpointStatus = "active"
	StatusInactive EndpointStatus = "inactive"
)

// HealthStatus — состояние, которое двигает машина состояний исполнителя
type HealthStatus string

const (
	HealthUnknown  HealthStatus = "unknown"  // Новый эндпоинт, еще ни одного вызова
	HealthHealthy  HealthStatus = "healthy"  // Последний вызов успешен и быстр
	HealthDegraded HealthStatus = "degraded" // Последний вызов успешен, но медленный
	HealthFailed   HealthStatus = "failed"   // N ошибок подряд, роутер обходит стороной
)

// QualityRules — структурные минимумы результата (не семантика данных)
type QualityRules struct {
	MinRecords     int      `json:"min_records" yaml:"min_records"`
	RequiredFields []string `json:"required_fields" yaml:"required_fields"`
}

// Endpoint — одна маршрутизируемая интеграция с поставщиком данных.
// Декларативная часть приходит из каталога, операционная — из хранилища статистики.
type Endpoint struct {
	ID string `json:"id"`

	// Декларативные поля
	SourceName          string            `json:"source_name"`
	SourceType          string            `json:"source_type"` // Ключ фабрики обработчиков: "mock", "http", "grpc"
	DataCategory        string            `json:"data_category"`
	ClassificationLevel int               `json:"classification_level"`
	TargetStore         string            `json:"target_store"`
	TableName           string            `json:"table_name"`
	ParameterSchema     map[string]any    `json:"parameter_schema,omitempty"`
	TestParameters      map[string]any    `json:"test_parameters,omitempty"`
	QualityRules        QualityRules      `json:"quality_rules"`
	UpdateSchedule      string            `json:"update_schedule,omitempty"`
	Tags                []string          `json:"tags,omitempty"`
	Version             string            `json:"version,omitempty"`
	Description         string            `json:"description,omitempty"`
	Status              EndpointStatus    `json:"status"`
	Connection          map[string]string `json:"connection,omitempty"` // Настройки адаптера: base_url, target, method...

	// Операционные поля
	QualityScore        float64      `json:"quality_score"`
	Priority            int          `json:"priority"`
	HealthStatus        HealthStatus `json:"health_status"`
	AvgResponseTime     float64      `json:"avg_response_time"` // секунды, кумулятивное среднее
	SuccessRate         float64      `json:"success_rate"`      // проценты
	ConsecutiveFailures int          `json:"consecutive_failures"`
	TotalCalls          int64        `json:"total_calls"`
	FailedCalls         int64        `json:"failed_calls"`
	LastSuccessTime     *time.Time   `json:"last_success_time,omitempty"`
	LastFailureTime     *time.Time   `json:"last_failure_time,omitempty"`
}

// IsActive — видим ли эндпоинт для роутера
func (e Endpoint) IsActive() bool {
	return e.Status == StatusActive
}

// SuccessfulCalls выводится из инварианта total = successful + failed
func (e Endpoint) SuccessfulCalls() int64 {
	return e.TotalCalls - e.FailedCalls
}

// HasTag проверяет наличие метки
func (e Endpoint) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// ResetOperational выставляет состояние "нового" эндпоинта
func (e *Endpoint) ResetOperational() {
	e.HealthStatus = HealthUnknown
	e.AvgResponseTime = 0
	e.SuccessRate = 0
	e.ConsecutiveFailures = 0
	e.TotalCalls = 0
	e.FailedCalls = 0
	e.LastSuccessTime = nil
	e.LastFailureTime = nil
}

// Clone возвращает глубокую копию: наружу из реестра уходят только копии
func (e *Endpoint) Clone() Endpoint {
	out := *e
	out.ParameterSchema = cloneMap(e.ParameterSchema)
	out.TestParameters = cloneMap(e.TestParameters)
	out.QualityRules.RequiredFields = slices.Clone(e.QualityRules.RequiredFields)
	out.Tags = slices.Clone(e.Tags)
	out.Connection = maps.Clone(e.Connection)
	if e.LastSuccessTime != nil {
		t := *e.LastSuccessTime
		out.LastSuccessTime = &t
	}
	if e.LastFailureTime != nil {
		t := *e.LastFailureTime
		out.LastFailureTime = &t
	}
	return out
}

// cloneMap копирует JSON-подобную мапу вместе с вложенными мапами и слайсами
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// CopyCountersFrom переносит живые счетчики и состояние здоровья (без priority/quality_score —
// их выставляют снаружи, и при перезагрузке они берутся из хранилища).
func (e *Endpoint) CopyCountersFrom(src *Endpoint) {
	e.HealthStatus = src.HealthStatus
	e.AvgResponseTime = src.AvgResponseTime
	e.SuccessRate = src.SuccessRate
	e.ConsecutiveFailures = src.ConsecutiveFailures
	e.TotalCalls = src.TotalCalls
	e.FailedCalls = src.FailedCalls
	e.LastSuccessTime = src.LastSuccessTime
	e.LastFailureTime = src.LastFailureTime
}
