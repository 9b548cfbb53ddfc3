package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/mdrouter/internal/domain"
)

var t0 = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func TestStateMachine_TwoThenThirdFailureThenSlowSuccess(t *testing.T) {
	ep := domain.Endpoint{ID: "x", HealthStatus: domain.HealthHealthy}
	th := DefaultThresholds()

	ApplyFailure(&ep, t0, th)
	ApplyFailure(&ep, t0, th)
	assert.Equal(t, domain.HealthHealthy, ep.HealthStatus, "below threshold the status is untouched")
	assert.Equal(t, 2, ep.ConsecutiveFailures)

	ApplyFailure(&ep, t0, th)
	assert.Equal(t, domain.HealthFailed, ep.HealthStatus)
	assert.Equal(t, 3, ep.ConsecutiveFailures)

	ApplySuccess(&ep, 6.0, t0.Add(time.Minute), th)
	assert.Equal(t, domain.HealthDegraded, ep.HealthStatus)
	assert.Equal(t, 0, ep.ConsecutiveFailures)
	assert.Equal(t, int64(4), ep.TotalCalls)
	assert.Equal(t, int64(3), ep.FailedCalls)
	assert.InDelta(t, 25.0, ep.SuccessRate, 1e-9)
	assert.Equal(t, t0.Add(time.Minute), *ep.LastSuccessTime)
	assert.Equal(t, t0, *ep.LastFailureTime)
}

func TestStateMachine_SingleFastSuccessRecovers(t *testing.T) {
	ep := domain.Endpoint{ID: "x", HealthStatus: domain.HealthFailed, ConsecutiveFailures: 7, TotalCalls: 7, FailedCalls: 7}

	ApplySuccess(&ep, 0.2, t0, DefaultThresholds())
	assert.Equal(t, domain.HealthHealthy, ep.HealthStatus)
	assert.Equal(t, 0, ep.ConsecutiveFailures)
}

func TestStateMachine_ExactThresholdIsNotDegraded(t *testing.T) {
	ep := domain.Endpoint{ID: "x"}
	ApplySuccess(&ep, 5.0, t0, DefaultThresholds())
	assert.Equal(t, domain.HealthHealthy, ep.HealthStatus)
}

func TestStateMachine_UnknownStaysUnknownBelowThreshold(t *testing.T) {
	ep := domain.Endpoint{ID: "x", HealthStatus: domain.HealthUnknown}
	ApplyFailure(&ep, t0, DefaultThresholds())
	assert.Equal(t, domain.HealthUnknown, ep.HealthStatus)
}

func TestStateMachine_CustomThresholds(t *testing.T) {
	th := Thresholds{Failures: 1, DegradedAfter: 100 * time.Millisecond}

	ep := domain.Endpoint{ID: "x"}
	ApplyFailure(&ep, t0, th)
	assert.Equal(t, domain.HealthFailed, ep.HealthStatus)

	ApplySuccess(&ep, 0.2, t0, th)
	assert.Equal(t, domain.HealthDegraded, ep.HealthStatus)
}

func TestStateMachine_CountersInvariant(t *testing.T) {
	ep := domain.Endpoint{ID: "x"}
	th := DefaultThresholds()
	pattern := []bool{true, false, false, true, false, false, false, true, true}

	for i, ok := range pattern {
		prevTotal := ep.TotalCalls
		if ok {
			ApplySuccess(&ep, 0.1, t0, th)
		} else {
			ApplyFailure(&ep, t0, th)
		}
		assert.Equal(t, prevTotal+1, ep.TotalCalls, "step %d", i)
		assert.Equal(t, ep.TotalCalls, ep.SuccessfulCalls()+ep.FailedCalls, "step %d", i)
		assert.GreaterOrEqual(t, ep.SuccessRate, 0.0)
		assert.LessOrEqual(t, ep.SuccessRate, 100.0)
	}
	assert.Equal(t, int64(5), ep.FailedCalls)
}

func TestStateMachine_MeanIsOrderIndependent(t *testing.T) {
	latencies := []float64{0.1, 2.5, 0.7, 1.3, 0.05}
	reversed := []float64{0.05, 1.3, 0.7, 2.5, 0.1}

	run := func(ls []float64) float64 {
		ep := domain.Endpoint{ID: "x"}
		for _, l := range ls {
			ApplySuccess(&ep, l, t0, DefaultThresholds())
		}
		return ep.AvgResponseTime
	}

	assert.InDelta(t, run(latencies), run(reversed), 1e-12)
	assert.InDelta(t, 0.93, run(latencies), 1e-12)
}

func TestStateMachine_MeanIgnoresFailures(t *testing.T) {
	ep := domain.Endpoint{ID: "x"}
	th := DefaultThresholds()

	ApplyFailure(&ep, t0, th)
	ApplySuccess(&ep, 2.0, t0, th)
	assert.InDelta(t, 2.0, ep.AvgResponseTime, 1e-9)

	// Отказы вперемешку с успехами: среднее — только по успешным
	ApplyFailure(&ep, t0, th)
	ApplyFailure(&ep, t0, th)
	ApplySuccess(&ep, 1.0, t0, th)
	ApplyFailure(&ep, t0, th)
	ApplySuccess(&ep, 3.0, t0, th)

	assert.InDelta(t, 2.0, ep.AvgResponseTime, 1e-9)
	assert.Equal(t, int64(7), ep.TotalCalls)
	assert.Equal(t, int64(4), ep.FailedCalls)
	assert.Equal(t, int64(3), ep.SuccessfulCalls())
}
