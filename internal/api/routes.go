// Package api provides the HTTP API for the FOI portal server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/api/handlers"
	"github.com/openfoi/foiportal/internal/api/middleware"
	"github.com/openfoi/foiportal/internal/auth"
	"github.com/openfoi/foiportal/internal/config"
	"github.com/openfoi/foiportal/internal/db"
	"github.com/openfoi/foiportal/internal/lifecycle"
	"github.com/openfoi/foiportal/internal/metrics"
	"github.com/openfoi/foiportal/internal/monitoring"
	"github.com/openfoi/foiportal/internal/search"
	"github.com/openfoi/foiportal/internal/thread"
)

// Config holds configuration for the API router.
type Config struct {
	// Environment selects dev/staging/production behavior.
	Environment config.Environment
	// AllowedOrigins for CORS. Empty means all origins allowed in dev mode.
	AllowedOrigins []string
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the duration string for rate limiting (e.g. "1m", "1h").
	RateLimitPeriod string
	// RedisURL selects a shared rate limit store when non-empty.
	RedisURL string
	// Version is reported by the health endpoint.
	Version string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Environment:       config.EnvDevelopment,
		AllowedOrigins:    []string{},
		RateLimitRequests: 100,
		RateLimitPeriod:   "1m",
		Version:           "dev",
	}
}

// Deps bundles the services the router wires into handlers.
type Deps struct {
	DB        *db.DB
	Lifecycle *lifecycle.Service
	Thread    *thread.Service
	Searcher  *search.Searcher
	OIDC      *auth.OIDC
	Sessions  *auth.SessionStore
	Tokens    *auth.TokenValidator
	Metrics   *metrics.Metrics
	Collector *monitoring.Collector
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, deps Deps, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment))

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Health and metrics endpoints, no auth required.
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Collector, cfg.Version, logger)
	healthHandler.RegisterRoutes(&r.Engine.RouterGroup)
	if deps.Metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Auth routes, no auth required. The login flow needs a configured
	// OIDC provider; staff account management below does not.
	authHandler := handlers.NewAuthHandler(deps.OIDC, deps.Sessions, deps.DB, deps.Lifecycle, logger)
	if deps.OIDC != nil {
		authGroup := r.Engine.Group("/auth")
		authHandler.RegisterRoutes(authGroup)
	}

	requestsHandler := handlers.NewRequestsHandler(deps.Lifecycle, deps.DB, logger)
	messagesHandler := handlers.NewMessagesHandler(deps.Lifecycle, deps.Thread, deps.DB, logger)
	publicBodiesHandler := handlers.NewPublicBodiesHandler(deps.DB, deps.Lifecycle, logger)

	// Public read routes. Credentials are honored when present so
	// owners see their own non-public requests.
	public := r.Engine.Group("/api/v1")
	public.Use(middleware.OptionalAuth(deps.Sessions, deps.Tokens, deps.DB, logger))

	requestsHandler.RegisterPublicRoutes(public)
	messagesHandler.RegisterPublicRoutes(public)
	publicBodiesHandler.RegisterPublicRoutes(public)
	if deps.Searcher != nil {
		searchHandler := handlers.NewSearchHandler(deps.Searcher, logger)
		searchHandler.RegisterRoutes(public)
	}

	// Authenticated routes.
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.Auth(deps.Sessions, deps.Tokens, deps.DB, logger))

	requestsHandler.RegisterRoutes(apiV1)
	messagesHandler.RegisterRoutes(apiV1)
	publicBodiesHandler.RegisterRoutes(apiV1)

	inboundHandler := handlers.NewInboundHandler(deps.Thread, logger)
	inboundHandler.RegisterRoutes(apiV1)

	authHandler.RegisterAPIRoutes(apiV1)

	r.logger.Info().Msg("API router initialized")
	return r, nil
}
