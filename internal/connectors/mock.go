package connectors

import (
	"context"
	"fmt"
	"math/rand/v2" // Используем v2 для Go 1.25
	"strconv"
	"time"

	"github.com/xela07ax/mdrouter/internal/domain"
)

// MockConnector имитирует поставщика: задержка, отказ или пустой ответ задаются в connection.
//
//	latency_ms — базовая задержка, jitter_ms — случайная добавка,
//	mode — "ok" (по умолчанию), "fail", "empty", rows — сколько строк вернуть (по умолчанию 5).
type MockConnector struct {
	id      string
	latency time.Duration
	jitter  time.Duration
	mode    string
	rows    int
}

func NewMockConnector(ep domain.Endpoint) (Handler, error) {
	c := &MockConnector{id: ep.ID, mode: "ok", rows: 5}

	if v := ep.Connection["mode"]; v != "" {
		switch v {
		case "ok", "fail", "empty":
			c.mode = v
		default:
			return nil, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "unknown mock mode " + strconv.Quote(v)}
		}
	}

	var err error
	if c.latency, err = msSetting(ep, "latency_ms"); err != nil {
		return nil, err
	}
	if c.jitter, err = msSetting(ep, "jitter_ms"); err != nil {
		return nil, err
	}
	if v := ep.Connection["rows"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "rows must be a non-negative integer"}
		}
		c.rows = n
	}
	return c, nil
}

func (c *MockConnector) Fetch(ctx context.Context, args map[string]any) (*domain.Table, error) {
	latency := c.latency
	if c.jitter > 0 {
		latency += time.Duration(rand.Int64N(int64(c.jitter)))
	}

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-timer.C:
			// Имитация работы
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	switch c.mode {
	case "fail":
		return nil, fmt.Errorf("mock %s: service internal error", c.id)
	case "empty":
		return domain.NewTable(klineColumns, nil), nil
	}

	symbol, _ := args["symbol"].(string)
	if symbol == "" {
		symbol = "000001"
	}

	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rows := make([]map[string]any, 0, c.rows)
	price := 10.0
	for i := 0; i < c.rows; i++ {
		open := price
		closePrice := price * 1.01
		rows = append(rows, map[string]any{
			"symbol": symbol,
			"date":   day.AddDate(0, 0, i).Format("2006-01-02"),
			"open":   open,
			"high":   closePrice * 1.005,
			"low":    open * 0.995,
			"close":  closePrice,
			"volume": int64(100000 + i*1000),
		})
		price = closePrice
	}
	return domain.NewTable(klineColumns, rows), nil
}

var klineColumns = []string{"symbol", "date", "open", "high", "low", "close", "volume"}

func msSetting(ep domain.Endpoint, key string) (time.Duration, error) {
	v := ep.Connection[key]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: key + " must be a non-negative integer"}
	}
	return time.Duration(n) * time.Millisecond, nil
}
