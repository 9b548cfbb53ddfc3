package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/mdrouter/internal/console/service"
	"github.com/xela07ax/mdrouter/internal/domain"
	"github.com/xela07ax/mdrouter/internal/engine"
)

type EndpointHandler struct {
	service *service.EndpointService
}

func NewEndpointHandler(s *service.EndpointService) *EndpointHandler {
	return &EndpointHandler{service: s}
}

// List GET /v1/endpoints?category=&level=&source_type=&healthy=&all=
func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := engine.NewQuery(qs.Get("category"))
	q.SourceType = qs.Get("source_type")

	if v := qs.Get("level"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "level must be an integer", http.StatusBadRequest)
			return
		}
		q.ClassificationLevel = &level
	}
	if v := qs.Get("healthy"); v != "" {
		healthy, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "healthy must be a boolean", http.StatusBadRequest)
			return
		}
		q.OnlyHealthy = healthy
	}
	// all=true показывает и выключенные эндпоинты
	if all, _ := strconv.ParseBool(qs.Get("all")); all {
		q.OnlyEnabled = false
	}

	writeJSON(w, http.StatusOK, h.service.List(q))
}

// Get GET /v1/endpoints/{id}
func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Best GET /v1/endpoints/best?category=
func (h *EndpointHandler) Best(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		http.Error(w, "category is required", http.StatusBadRequest)
		return
	}
	v, err := h.service.Best(category)
	if errors.Is(err, engine.ErrNoEndpoint) {
		// Для справочного запроса это просто «не найдено»
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Check POST /v1/endpoints/{id}/check
func (h *EndpointHandler) Check(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type statusRequest struct {
	Status domain.EndpointStatus `json:"status"`
}

// SetStatus PUT /v1/endpoints/{id}/status {"status": "inactive"}
func (h *EndpointHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.service.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
