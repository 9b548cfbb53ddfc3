package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/mdrouter/internal/console/service"
	"github.com/xela07ax/mdrouter/internal/domain"
)

type OpsHandler struct {
	service *service.EndpointService
}

func NewOpsHandler(s *service.EndpointService) *OpsHandler {
	return &OpsHandler{service: s}
}

// CheckAll POST /v1/checks
func (h *OpsHandler) CheckAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.CheckAll(r.Context()))
}

// Reload POST /v1/registry/reload
func (h *OpsHandler) Reload(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Reload(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"endpoints": n})
}

type fetchResponse struct {
	EndpointID string        `json:"endpoint_id"`
	Attempts   int           `json:"attempts"`
	Data       *domain.Table `json:"data"`
}

// Fetch POST /v1/data/{category}, тело — JSON-объект аргументов (может быть пустым)
func (h *OpsHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var args map[string]any
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Trace-ID попадает в caller, так история вызовов связывается с HTTP-запросом
	caller := "ops-api"
	if id := TraceID(r.Context()); id != "" {
		caller += ":" + id
	}

	res, err := h.service.Fetch(r.Context(), chi.URLParam(r, "category"), args, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fetchResponse{EndpointID: res.EndpointID, Attempts: res.Attempts, Data: res.Table})
}
