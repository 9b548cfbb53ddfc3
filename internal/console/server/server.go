package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/mdrouter/internal/console/handler"
	"go.uber.org/zap"
)

type OpsServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Обработчики
	endpointHandler *handler.EndpointHandler  // /v1/endpoints
	opsHandler      *handler.OpsHandler       // /v1/checks, /v1/registry, /v1/data
	dashHandler     *handler.DashboardHandler // /v1/dashboard

	gatherer prometheus.Gatherer // nil — /metrics не публикуется
}

// NewOpsServer инициализирует операторский API со всеми зависимостями
func NewOpsServer(
	logger *zap.Logger,
	gatherer prometheus.Gatherer,
	endpointH *handler.EndpointHandler,
	opsH *handler.OpsHandler,
	dashH *handler.DashboardHandler,
) *OpsServer {
	s := &OpsServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("ops-api"),
		endpointHandler: endpointH,
		opsHandler:      opsH,
		dashHandler:     dashH,
		gatherer:        gatherer,
	}

	s.routes()
	return s
}

func (s *OpsServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.TracingMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. Служебные роуты ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// --- 3. API ---
	r.Route("/v1", func(r chi.Router) {
		r.Route("/endpoints", func(r chi.Router) {
			r.Get("/", s.endpointHandler.List)
			r.Get("/best", s.endpointHandler.Best)
			r.Get("/{id}", s.endpointHandler.Get)
			r.Post("/{id}/check", s.endpointHandler.Check)
			r.Put("/{id}/status", s.endpointHandler.SetStatus)
		})

		r.Post("/checks", s.opsHandler.CheckAll)
		r.Post("/registry/reload", s.opsHandler.Reload)
		r.Post("/data/{category}", s.opsHandler.Fetch)

		r.Get("/dashboard/stats", s.dashHandler.GetStats)
	})
}

// ServeHTTP позволяет использовать сервер как стандартный http.Handler
func (s *OpsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
