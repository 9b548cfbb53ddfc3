package connectors

/*
Файл http_adapter.go — адаптер REST-поставщика.

Цепочка вызова: rate limiter -> circuit breaker -> retry -> HTTP GET.
Ответ поставщика — JSON: либо массив объектов, либо объект с массивом в поле records_path.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/mdrouter/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultRecordsPath = "data"
	maxErrorBody       = 512
)

type HTTPAdapter struct {
	id          string
	endpoint    *url.URL
	token       string
	recordsPath string
	attempts    uint

	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter // nil — без ограничения
	logger  *zap.Logger
}

// NewHTTPAdapter собирает адаптер по connection эндпоинта.
//
//	base_url (обязателен), path, token, records_path, timeout_ms,
//	rate_limit (запросов в секунду), burst, retries.
func NewHTTPAdapter(ep domain.Endpoint, logger *zap.Logger) (Handler, error) {
	if err := requireConnection(ep, "base_url"); err != nil {
		return nil, err
	}
	conf := ep.Connection

	u, err := url.Parse(strings.TrimRight(conf["base_url"], "/") + "/" + strings.TrimLeft(conf["path"], "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "invalid base_url"}
	}

	timeout := defaultHTTPTimeout
	if v := conf["timeout_ms"]; v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "timeout_ms must be a positive integer"}
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	attempts := uint(3)
	if v := conf["retries"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "retries must be >= 1"}
		}
		attempts = uint(n)
	}

	var limiter *rate.Limiter
	if v := conf["rate_limit"]; v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "rate_limit must be a positive number"}
		}
		burst := 1
		if b := conf["burst"]; b != "" {
			if burst, err = strconv.Atoi(b); err != nil || burst < 1 {
				return nil, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "burst must be >= 1"}
			}
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	recordsPath := conf["records_path"]
	if recordsPath == "" {
		recordsPath = defaultRecordsPath
	}

	log := logger.With(zap.String("mod", "http_adapter"), zap.String("endpoint_id", ep.ID))

	// Предохранитель на каждый эндпоинт: проблемы одного поставщика не гасят других
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vendor-" + ep.ID,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Отказ по вине запроса (4xx) не повод размыкать цепь
			var sErr *StatusError
			if errors.As(err, &sErr) && !sErr.Retryable() {
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("vendor circuit state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &HTTPAdapter{
		id:          ep.ID,
		endpoint:    u,
		token:       conf["token"],
		recordsPath: recordsPath,
		attempts:    attempts,
		client:      &http.Client{Timeout: timeout},
		cb:          cb,
		limiter:     limiter,
		logger:      log,
	}, nil
}

func (a *HTTPAdapter) Fetch(ctx context.Context, args map[string]any) (*domain.Table, error) {
	// 1. Rate Limiter
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	// 2. Circuit Breaker
	res, err := a.cb.Execute(func() (interface{}, error) {
		var table *domain.Table

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(a.attempts),
			retry.RetryIf(isRetryable),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Поставщик сам сказал, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) && tErr.RetryAfter > 0 {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			var callErr error
			table, callErr = a.fetchOnce(ctx, args)
			return callErr
		})
		return table, retryErr
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Table), nil
}

func (a *HTTPAdapter) fetchOnce(ctx context.Context, args map[string]any) (*domain.Table, error) {
	u := *a.endpoint
	q := u.Query()
	for k, v := range args {
		q.Set(k, fmt.Sprint(v))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vendor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		sErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &ThrottleError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), Cause: sErr}
		}
		return nil, sErr
	}

	var payload any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode vendor response: %w", err)
	}
	return a.toTable(payload)
}

func (a *HTTPAdapter) toTable(payload any) (*domain.Table, error) {
	var columns []string

	if obj, ok := payload.(map[string]any); ok {
		if cols, ok := obj["columns"].([]any); ok {
			for _, c := range cols {
				columns = append(columns, fmt.Sprint(c))
			}
		}
		payload, ok = obj[a.recordsPath]
		if !ok {
			return nil, fmt.Errorf("vendor response has no %q field", a.recordsPath)
		}
	}

	items, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("vendor records are %T, expected a list", payload)
	}

	rows := make([]map[string]any, 0, len(items))
	for i, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("vendor record %d is %T, expected an object", i, item)
		}
		for k, v := range row {
			row[k] = normalizeNumber(v)
		}
		rows = append(rows, row)
	}
	return domain.NewTable(columns, rows), nil
}

// normalizeNumber приводит json.Number к int64, а если не выходит — к float64
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sErr *StatusError
	if errors.As(err, &sErr) {
		return sErr.Retryable()
	}
	return true
}

// parseRetryAfter понимает оба формата заголовка: секунды и HTTP-дату
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if s, err := strconv.Atoi(v); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
