package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xela07ax/mdrouter/internal/domain"
)

type Metrics struct {
	// Latency: сколько длился вызов поставщика
	CallDuration *prometheus.HistogramVec

	// Traffic: общее кол-во вызовов
	CallsTotal *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Saturation: здоровье эндпоинта (0 - unknown, 1 - healthy, 2 - degraded, 3 - failed)
	EndpointHealth *prometheus.GaugeVec

	// Transitions: смены состояния автомата здоровья
	HealthTransitions *prometheus.CounterVec

	// Probes: результаты активных проверок
	ProbeTotal    *prometheus.CounterVec
	ProbeDuration *prometheus.HistogramVec

	// Кэш результатов: попадания не считаются вызовами
	ResultCacheHits *prometheus.CounterVec

	// Telemetry: заполненность буфера (backpressure) и потери
	TelemetryBufferFill prometheus.Gauge
	TelemetryDropped    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	buckets := []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

	return &Metrics{
		CallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mdrouter_call_duration_seconds",
			Help:    "Histogram of vendor call latencies.",
			Buckets: buckets,
		}, []string{"endpoint_id", "category", "status"}),

		CallsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mdrouter_calls_total",
			Help: "Total number of vendor calls.",
		}, []string{"endpoint_id", "category"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mdrouter_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: vendor, timeout, config, no_endpoint

		EndpointHealth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "mdrouter_endpoint_health",
			Help: "Current endpoint health (0=unknown, 1=healthy, 2=degraded, 3=failed).",
		}, []string{"endpoint_id"}),

		HealthTransitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mdrouter_health_transitions_total",
			Help: "Health state machine transitions.",
		}, []string{"from", "to"}),

		ProbeTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mdrouter_probes_total",
			Help: "Active health probes by result.",
		}, []string{"endpoint_id", "status"}),

		ProbeDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mdrouter_probe_duration_seconds",
			Help:    "Histogram of probe latencies.",
			Buckets: buckets,
		}, []string{"endpoint_id"}),

		ResultCacheHits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mdrouter_result_cache_hits_total",
			Help: "Calls served from the per-endpoint result cache.",
		}, []string{"endpoint_id"}),

		TelemetryBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mdrouter_telemetry_buffer_utilization",
			Help: "Current number of outcomes in telemetry buffer.",
		}),

		TelemetryDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mdrouter_telemetry_dropped_total",
			Help: "Outcomes dropped because the telemetry buffer was full or stopped.",
		}),
	}
}

// HealthValue — числовое значение статуса для gauge
func HealthValue(h domain.HealthStatus) float64 {
	switch h {
	case domain.HealthHealthy:
		return 1
	case domain.HealthDegraded:
		return 2
	case domain.HealthFailed:
		return 3
	default:
		return 0
	}
}
