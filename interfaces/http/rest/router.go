// Package rest wires the canvas service into a chi HTTP router.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loom-backend/application/services"
	"loom-backend/infrastructure/config"
	"loom-backend/interfaces/http/rest/handlers"
	"loom-backend/interfaces/http/rest/middleware"
	"loom-backend/pkg/auth"
	"loom-backend/pkg/observability"
)

// Router creates and configures the HTTP router
type Router struct {
	service   *services.CanvasService
	validator *auth.JWTValidator
	collector *observability.Collector
	features  *config.DynamicConfigManager
	cfg       *config.Config
	logger    *zap.Logger
}

// NewRouter creates a new router instance. A nil validator disables
// authentication, a nil collector disables the metrics endpoint.
func NewRouter(
	service *services.CanvasService,
	validator *auth.JWTValidator,
	collector *observability.Collector,
	features *config.DynamicConfigManager,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		service:   service,
		validator: validator,
		collector: collector,
		features:  features,
		cfg:       cfg,
		logger:    logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Tracing)
	router.Use(middleware.Logger(rt.logger))
	if rt.collector != nil {
		router.Use(middleware.Metrics(rt.collector))
	}

	// CORS configuration
	if rt.cfg == nil || rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.loom.app"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health checks
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	// Metrics endpoint
	if rt.collector != nil {
		router.Handle("/metrics", promhttp.HandlerFor(rt.collector.GetRegistry(), promhttp.HandlerOpts{}))
	}

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		if rt.validator != nil {
			r.Use(middleware.Authenticate(rt.validator, rt.logger))
		}

		canvasHandler := handlers.NewCanvasHandler(rt.service, rt.logger)
		cardHandler := handlers.NewCardHandler(rt.service, rt.logger)
		edgeHandler := handlers.NewEdgeHandler(rt.service, rt.logger)
		regenHandler := handlers.NewRegenerationHandler(rt.service, rt.logger)
		historyHandler := handlers.NewHistoryHandler(rt.service, rt.logger)

		r.Route("/canvases", func(r chi.Router) {
			r.Post("/", canvasHandler.Create)
			r.Get("/", canvasHandler.List)

			r.Route("/{canvasID}", func(r chi.Router) {
				r.Get("/", canvasHandler.Get)
				r.Put("/", canvasHandler.Rename)
				r.Delete("/", canvasHandler.Delete)
				r.Post("/close", canvasHandler.Close)
				r.Get("/stats", canvasHandler.Stats)
				r.Get("/stale", canvasHandler.Stale)
				r.Post("/stale/recheck", canvasHandler.Recheck)

				r.Route("/cards", func(r chi.Router) {
					r.Post("/", cardHandler.Create)
					r.Get("/{cardID}", cardHandler.Get)
					r.Patch("/{cardID}", cardHandler.Patch)
					r.Delete("/{cardID}", cardHandler.Delete)
					r.Post("/{cardID}/generate", cardHandler.Generate)
					r.With(middleware.RequireFeature(rt.features, "summaries")).
						Post("/{cardID}/summarize", cardHandler.Summarize)
					r.Get("/{cardID}/context", cardHandler.Context)
				})

				r.Route("/edges", func(r chi.Router) {
					r.Post("/", edgeHandler.Connect)
					r.Delete("/{edgeID}", edgeHandler.Delete)
				})

				r.Route("/regenerate", func(r chi.Router) {
					r.Use(middleware.RequireFeature(rt.features, "regeneration"))
					r.Post("/", regenHandler.Start)
					r.Delete("/", regenHandler.Cancel)
					r.Get("/", regenHandler.Progress)
				})

				r.Route("/history", func(r chi.Router) {
					r.Get("/", historyHandler.Status)
					r.Delete("/", historyHandler.Clear)
					r.Post("/undo", historyHandler.Undo)
					r.Post("/redo", historyHandler.Redo)
				})
			})
		})

		// Cross-canvas search
		r.Get("/search", handlers.NewSearchHandler(rt.service, rt.logger).Search)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
