package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/mdrouter/internal/domain"
)

func statsRecord(id string) domain.Endpoint {
	ok := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return domain.Endpoint{
		ID:                  id,
		SourceName:          "vendor-a",
		SourceType:          "http",
		DataCategory:        "daily_kline",
		Status:              domain.StatusActive,
		Description:         "stale description",
		Version:             "1.0",
		Tags:                []string{"old"},
		QualityScore:        7,
		Priority:            2,
		HealthStatus:        domain.HealthHealthy,
		AvgResponseTime:     0.4,
		SuccessRate:         90,
		ConsecutiveFailures: 1,
		TotalCalls:          10,
		FailedCalls:         1,
		LastSuccessTime:     &ok,
	}
}

func TestMerge_OnlyWhitelistFromOverlay(t *testing.T) {
	base := statsRecord("ep-1")
	overlay := domain.Endpoint{
		ID:              "ep-1",
		SourceType:      "grpc", // не в whitelist — не должен перенестись
		DataCategory:    "realtime_quote",
		Description:     "fresh description",
		Version:         "2.0",
		Tags:            []string{"fresh", "primary"},
		UpdateSchedule:  "0 18 * * 1-5",
		TestParameters:  map[string]any{"symbol": "000001"},
		ParameterSchema: map[string]any{"symbol": "string"},
		QualityRules:    domain.QualityRules{MinRecords: 5, RequiredFields: []string{"close"}},
		TotalCalls:      999,
		HealthStatus:    domain.HealthFailed,
	}

	got := Merge(base, overlay, DeclarativeWhitelist)

	assert.Equal(t, "fresh description", got.Description)
	assert.Equal(t, "2.0", got.Version)
	assert.Equal(t, []string{"fresh", "primary"}, got.Tags)
	assert.Equal(t, "0 18 * * 1-5", got.UpdateSchedule)
	assert.Equal(t, map[string]any{"symbol": "000001"}, got.TestParameters)
	assert.Equal(t, map[string]any{"symbol": "string"}, got.ParameterSchema)
	assert.Equal(t, 5, got.QualityRules.MinRecords)

	// Всё остальное — из базы
	assert.Equal(t, "http", got.SourceType)
	assert.Equal(t, "daily_kline", got.DataCategory)
	assert.Equal(t, int64(10), got.TotalCalls)
	assert.Equal(t, int64(1), got.FailedCalls)
	assert.Equal(t, domain.HealthHealthy, got.HealthStatus)
	assert.Equal(t, 2, got.Priority)
}

func TestMerge_DoesNotAliasInputs(t *testing.T) {
	base := statsRecord("ep-1")
	overlay := domain.Endpoint{ID: "ep-1", Tags: []string{"a"}, TestParameters: map[string]any{"k": "v"}}

	got := Merge(base, overlay, DeclarativeWhitelist)
	got.Tags[0] = "mutated"
	got.TestParameters["k"] = "mutated"

	assert.Equal(t, "a", overlay.Tags[0])
	assert.Equal(t, "v", overlay.TestParameters["k"])
}

func TestMerge_EmptyWhitelistKeepsBase(t *testing.T) {
	base := statsRecord("ep-1")
	overlay := domain.Endpoint{ID: "ep-1", Description: "ignored"}

	got := Merge(base, overlay, nil)
	assert.Equal(t, base, got)
}

func TestMergeAll(t *testing.T) {
	stats := []domain.Endpoint{statsRecord("both"), statsRecord("stats-only")}
	config := []domain.Endpoint{
		{ID: "config-only", SourceType: "mock", DataCategory: "daily_kline", Priority: 3, Status: domain.StatusActive},
		{ID: "both", Description: "from config"},
	}

	got := MergeAll(stats, config)
	require.Len(t, got, 3)

	// Порядок: статистика, затем новые из каталога
	assert.Equal(t, "both", got[0].ID)
	assert.Equal(t, "stats-only", got[1].ID)
	assert.Equal(t, "config-only", got[2].ID)

	assert.Equal(t, "from config", got[0].Description)
	assert.Equal(t, int64(10), got[0].TotalCalls)

	assert.Equal(t, "stale description", got[1].Description)

	fresh := got[2]
	assert.Equal(t, int64(0), fresh.TotalCalls)
	assert.Equal(t, domain.HealthUnknown, fresh.HealthStatus)
	assert.Equal(t, 3, fresh.Priority)
}

func TestMergeAll_ConfigOnlyResetsOperationalState(t *testing.T) {
	config := []domain.Endpoint{{ID: "new", TotalCalls: 50, FailedCalls: 5, HealthStatus: domain.HealthFailed, ConsecutiveFailures: 4}}

	got := MergeAll(nil, config)
	require.Len(t, got, 1)
	assert.Equal(t, int64(0), got[0].TotalCalls)
	assert.Equal(t, int64(0), got[0].FailedCalls)
	assert.Equal(t, 0, got[0].ConsecutiveFailures)
	assert.Equal(t, domain.HealthUnknown, got[0].HealthStatus)
	assert.Equal(t, domain.StatusActive, got[0].Status)
}

func TestMergeAll_DuplicateIDsFirstWins(t *testing.T) {
	a := statsRecord("dup")
	b := statsRecord("dup")
	b.Priority = 99

	got := MergeAll([]domain.Endpoint{a, b}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Priority)
}
