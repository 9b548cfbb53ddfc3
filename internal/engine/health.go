package engine

import (
	"time"

	"github.com/xela07ax/mdrouter/internal/domain"
)

const (
	DefaultFailureThreshold = 3
	DefaultDegradedAfter    = 5 * time.Second
)

// Thresholds — пороги автомата здоровья
type Thresholds struct {
	Failures      int           // подряд идущих отказов до failed
	DegradedAfter time.Duration // успешный вызов дольше этого — degraded
}

func DefaultThresholds() Thresholds {
	return Thresholds{Failures: DefaultFailureThreshold, DegradedAfter: DefaultDegradedAfter}
}

func (t Thresholds) normalized() Thresholds {
	if t.Failures <= 0 {
		t.Failures = DefaultFailureThreshold
	}
	if t.DegradedAfter <= 0 {
		t.DegradedAfter = DefaultDegradedAfter
	}
	return t
}

// ApplySuccess применяет к счетчикам успешный вызов длительностью elapsed секунд.
// Среднее считается только по успешным вызовам. Один успех всегда выводит из failed: кулдауна нет.
func ApplySuccess(ep *domain.Endpoint, elapsed float64, now time.Time, t Thresholds) {
	t = t.normalized()
	succ := float64(ep.SuccessfulCalls())
	ep.TotalCalls++
	ep.AvgResponseTime = (ep.AvgResponseTime*succ + elapsed) / (succ + 1)
	ep.SuccessRate = successRate(ep)
	ep.ConsecutiveFailures = 0
	ep.LastSuccessTime = &now

	if elapsed > t.DegradedAfter.Seconds() {
		ep.HealthStatus = domain.HealthDegraded
	} else {
		ep.HealthStatus = domain.HealthHealthy
	}
}

// ApplyFailure применяет к счетчикам неудачный вызов.
// До порога статус не трогаем: degraded остается degraded, unknown — unknown.
func ApplyFailure(ep *domain.Endpoint, now time.Time, t Thresholds) {
	t = t.normalized()
	ep.TotalCalls++
	ep.FailedCalls++
	ep.SuccessRate = successRate(ep)
	ep.ConsecutiveFailures++
	ep.LastFailureTime = &now

	if ep.ConsecutiveFailures >= t.Failures {
		ep.HealthStatus = domain.HealthFailed
	}
}

func successRate(ep *domain.Endpoint) float64 {
	if ep.TotalCalls == 0 {
		return 0
	}
	return float64(ep.TotalCalls-ep.FailedCalls) / float64(ep.TotalCalls) * 100
}
