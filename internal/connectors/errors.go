package connectors

import (
	"fmt"
	"time"
)

// ThrottleError — поставщик попросил подождать (например, прислал Retry-After)
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// ConfigError — эндпоинт описан так, что обработчик для него не собрать.
// Фатальна только для этого эндпоинта.
type ConfigError struct {
	EndpointID string
	SourceType string
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: endpoint %s (source_type %q): %s", e.EndpointID, e.SourceType, e.Reason)
}

// StatusError — поставщик ответил неуспешным кодом
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vendor returned status %d: %s", e.Code, e.Body)
}

// Retryable — имеет ли смысл повторять запрос (5xx и 429 — да, остальные 4xx — нет)
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == 429
}
