package domain

import "time"

// CallOutcome — след одного вызова поставщика. Живет ровно до записи в историю вызовов.
type CallOutcome struct {
	ID           string    `json:"id"`            // UUID события
	EndpointID   string    `json:"endpoint_id"`   // Кто обслуживал
	DataCategory string    `json:"data_category"` // Что запрашивали
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	ResponseTime float64   `json:"response_time"` // секунды
	RecordCount  int       `json:"record_count"`  // Только для успеха
	ErrorMessage string    `json:"error_message"` // Только для ошибки
	Caller       string    `json:"caller"`        // file:line вызывающего кода (best-effort)
}

// ProbeStatus — вердикт активной проверки
type ProbeStatus string

const (
	ProbeHealthy   ProbeStatus = "healthy"
	ProbeUnhealthy ProbeStatus = "unhealthy" // Данные пришли, но нарушены quality_rules
	ProbeError     ProbeStatus = "error"     // Fetch вернул ошибку (или не собрался обработчик)
)

// HealthCheckResult — результат одной диагностической проверки
type HealthCheckResult struct {
	EndpointID   string         `json:"endpoint_id"`
	Status       ProbeStatus    `json:"status"`
	ResponseTime float64        `json:"response_time"`
	RecordCount  int            `json:"record_count"`
	Sample       map[string]any `json:"sample,omitempty"`
	Error        string         `json:"error,omitempty"`
	CheckedAt    time.Time      `json:"checked_at"`
}

// HealthSummary — агрегат CheckAll
type HealthSummary struct {
	Total     int                 `json:"total"`
	Healthy   int                 `json:"healthy"`
	Unhealthy int                 `json:"unhealthy"`
	Results   []HealthCheckResult `json:"results"`
}
