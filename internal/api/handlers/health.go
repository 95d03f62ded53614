package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// HealthProbes are the subsystem liveness checks the health endpoint reports.
type HealthProbes struct {
	Store          func(ctx context.Context) error
	ModelTrained   func() bool
	LLMConfigured  func() bool
	Subscribers    func() int
	TelemetryAlive func() bool
}

type HealthHandler struct {
	probes HealthProbes
	logger logger.Logger
}

func NewHealthHandler(probes HealthProbes, log logger.Logger) *HealthHandler {
	return &HealthHandler{probes: probes, logger: log}
}

// GET / - liveness
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":      "SENTINEL-CORE API",
		"version":   "1.0.0",
		"status":    "operational",
		"websocket": "/api/events/live",
	})
}

// GET /health - subsystem readiness
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	storeHealthy := true
	if err := h.probes.Store(ctx); err != nil {
		storeHealthy = false
		h.logger.Warn("store health probe failed", "error", err)
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !storeHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":                status,
		"database":              storeHealthy,
		"gemini":                h.probes.LLMConfigured(),
		"ml_model":              h.probes.ModelTrained(),
		"websocket_connections": h.probes.Subscribers(),
		"telemetry_active":      h.probes.TelemetryAlive(),
		"timestamp":             time.Now().UTC().Format(time.RFC3339),
	})
}
