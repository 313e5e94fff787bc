package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/monitoring"
)

// Pinger checks database connectivity and exposes pool statistics.
type Pinger interface {
	Ping(ctx context.Context) error
	Health() map[string]any
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db        Pinger
	collector *monitoring.Collector
	version   string
	logger    zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger, collector *monitoring.Collector, version string, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		collector: collector,
		version:   version,
		logger:    logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterRoutes registers the health routes.
func (h *HealthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health", h.Health)
	r.GET("/health/live", h.Live)
}

// Health reports database connectivity, pool statistics and host
// metrics. Degraded database connectivity answers 503.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	dbStatus := "ok"
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error().Err(err).Msg("database ping failed")
		status = http.StatusServiceUnavailable
		dbStatus = "unreachable"
	}

	body := gin.H{
		"status":   dbStatus,
		"version":  h.version,
		"database": h.db.Health(),
		"host":     monitoring.HostInfo(),
	}
	if h.collector != nil {
		body["metrics"] = h.collector.Collect(ctx)
	}
	c.JSON(status, body)
}

// Live is a minimal liveness probe.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
