package domain

// GlobalStats — сводка по реестру для дашборда
type GlobalStats struct {
	TotalEndpoints  int                  `json:"total_endpoints"`
	ActiveEndpoints int                  `json:"active_endpoints"`
	ByHealth        map[HealthStatus]int `json:"by_health"`
	TotalCalls      int64                `json:"total_calls"`
	FailedCalls     int64                `json:"failed_calls"`
	FailureRatio    float64              `json:"failure_ratio"`
	Categories      []CategoryStats      `json:"categories"`
}

// CategoryStats — покрытие категории данных поставщиками
type CategoryStats struct {
	Category string `json:"category"`
	Total    int    `json:"total"`
	Routable int    `json:"routable"` // active и не failed
}
