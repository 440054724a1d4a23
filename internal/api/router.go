package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"honeypot-lab/internal/api/handlers"
	apimiddleware "honeypot-lab/internal/api/middleware"
	"honeypot-lab/internal/config"
	"honeypot-lab/internal/streaming"
	"honeypot-lab/internal/telemetry"
	"honeypot-lab/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	metrics  *telemetry.Metrics
	hub      *streaming.WebSocketHub
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. hub may be nil.
func NewRouter(cfg config.Config, h *handlers.Handlers, metrics *telemetry.Metrics, hub *streaming.WebSocketHub, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		metrics:  metrics,
		hub:      hub,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	trusted, err := apimiddleware.ParseTrustedProxies(r.config.Server.TrustedProxies)
	if err != nil {
		r.logger.Warn().Err(err).Msg("ignoring forwarded client addresses")
		trusted = nil
	}

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(apimiddleware.TrustedRealIP(trusted))
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(apimiddleware.Recover(r.logger))

	// CORS; preflights fall through so the honeypot answers them with its own body
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:     r.config.CORS.AllowedOrigins,
		AllowedMethods:     r.config.CORS.AllowedMethods,
		AllowedHeaders:     r.config.CORS.AllowedHeaders,
		MaxAge:             r.config.CORS.MaxAge,
		OptionsPassthrough: true,
	}))

	// Status routes
	router.Get("/", r.handlers.Health.Root)
	router.Get("/health", r.handlers.Health.Check)
	router.Get("/ready", r.handlers.Health.Ready)

	if r.config.Metrics.Enabled {
		router.Method(http.MethodGet, r.config.Metrics.Path, r.metrics.Handler())
	}

	// Live intelligence feed for analysts
	if r.hub != nil {
		router.With(apimiddleware.RequireAPIKey(r.config.Auth)).
			Get("/ws/intelligence", r.hub.ServeWebSocket)
	}

	// Analyst views of captured sessions. Without a configured key these
	// stay unregistered and the paths fall through to the honeypot.
	if r.config.Auth.APIKey != "" {
		analyst := router.With(apimiddleware.RequireAPIKey(r.config.Auth))
		analyst.Get("/sessions", r.handlers.Sessions.List)
		analyst.Get("/sessions/{sessionID}", r.handlers.Sessions.Get)
	}

	// Everything else, any method, is the honeypot. Known paths hit with an
	// unregistered method land here too instead of a 405.
	honeypot := chi.Chain(apimiddleware.SoftAPIKey(r.config.Auth, r.metrics)).
		HandlerFunc(r.handlers.Honeypot.Handle)
	router.Handle("/*", honeypot)
	router.MethodNotAllowed(honeypot.ServeHTTP)
	router.NotFound(honeypot.ServeHTTP)

	return router
}
