// Package api exposes the route resolver over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yegors/flightroutes/internal/config"
	"github.com/yegors/flightroutes/internal/metrics"
	"github.com/yegors/flightroutes/internal/routes"
	"github.com/yegors/flightroutes/internal/storage"
	"github.com/yegors/flightroutes/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     config.ServerConfig
	gatherer   prometheus.Gatherer
	logger     *logger.Logger
}

// NewRouter creates a new API router. gatherer backs the /metrics endpoint.
func NewRouter(resolver *routes.Resolver, store storage.Store, cfg config.ServerConfig, m *metrics.Metrics, gatherer prometheus.Gatherer, log *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(resolver, store, cfg.PlaneLimit, log),
		middleware: NewMiddleware(m, log),
		config:     cfg,
		gatherer:   gatherer,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.Metrics)
	router.Use(r.middleware.CORS(r.config.AllowedOrigins))

	// Operational routes
	router.Get("/healthz", r.handler.GetHealth)
	router.Get("/readyz", r.handler.GetReady)
	router.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))

	router.Route("/api", func(router chi.Router) {
		router.Use(r.middleware.RateLimit(r.config.RateLimitRequests, r.config.RateLimitWindow))

		// Bare preflights without an allowed Origin land here
		router.Options("/routeset", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		router.Group(func(router chi.Router) {
			router.Use(r.middleware.APIKey(r.config.APIKey))

			router.Post("/routeset", r.handler.GetRouteSet)

			// Database inspection
			router.Get("/route/{callsign}", r.handler.GetRoute)
			router.Get("/all_callsigns", r.handler.GetAllCallsigns)
			router.Get("/plausible_callsigns", r.handler.GetPlausibleCallsigns)
			router.Get("/unplausible_callsigns", r.handler.GetImplausibleCallsigns)
		})
	})

	r.logger.Info("API routes registered",
		logger.Int("plane_limit", r.config.PlaneLimit),
		logger.Strings("allowed_origins", r.config.AllowedOrigins),
		logger.Bool("rate_limited", r.config.RateLimitRequests > 0),
	)

	return router
}

// Server builds the HTTP server for the API
func (r *Router) Server() *http.Server {
	return &http.Server{
		Addr:              r.config.Addr,
		Handler:           r.Routes(),
		ReadTimeout:       r.config.ReadTimeout,
		ReadHeaderTimeout: min(r.config.ReadTimeout, 5*time.Second),
		WriteTimeout:      r.config.WriteTimeout,
		IdleTimeout:       2 * r.config.WriteTimeout,
	}
}
