package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/mdrouter/internal/connectors"
	"github.com/xela07ax/mdrouter/internal/console/service"
	"github.com/xela07ax/mdrouter/internal/engine"
	"github.com/xela07ax/mdrouter/internal/registry"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError разделяет типы ошибок по кодам ответа
func writeError(w http.ResponseWriter, err error) {
	var cErr *connectors.ConfigError
	status := http.StatusBadGateway // по умолчанию — отказ поставщика
	switch {
	case errors.Is(err, registry.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNoEndpoint):
		status = http.StatusServiceUnavailable
	case errors.Is(err, registry.ErrNoSources):
		status = http.StatusServiceUnavailable
	case errors.Is(err, service.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.As(err, &cErr):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
