package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/response"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

const (
	defaultActionLogLimit = 50
	maxActionLogLimit     = 200
	manualIncidentID      = "manual"
)

type ResponseHandler struct {
	engine *response.Engine
	logger logger.Logger
}

func NewResponseHandler(engine *response.Engine, log logger.Logger) *ResponseHandler {
	return &ResponseHandler{engine: engine, logger: log}
}

// POST /api/response/isolate-process/:pid
func (h *ResponseHandler) IsolateProcess(c *gin.Context) {
	pid, err := strconv.ParseInt(c.Param("pid"), 10, 32)
	if err != nil || pid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pid must be a positive integer"})
		return
	}
	incidentID := c.DefaultQuery("incident_id", manualIncidentID)

	result := h.engine.IsolateProcess(c.Request.Context(), int32(pid), incidentID, "Manual isolation request")
	c.JSON(http.StatusOK, result)
}

// POST /api/response/quarantine-device
func (h *ResponseHandler) QuarantineDevice(c *gin.Context) {
	deviceID := c.Query("device_id")
	sourceIP := c.Query("source_ip")
	if deviceID == "" && sourceIP == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id or source_ip is required"})
		return
	}
	if deviceID == "" {
		deviceID = "device_" + sourceIP
	}
	incidentID := c.DefaultQuery("incident_id", manualIncidentID)

	result := h.engine.QuarantineDevice(c.Request.Context(), deviceID, sourceIP, incidentID)
	c.JSON(http.StatusOK, result)
}

// POST /api/response/revoke-session/:user_id
func (h *ResponseHandler) RevokeSession(c *gin.Context) {
	userID := c.Param("user_id")
	incidentID := c.DefaultQuery("incident_id", manualIncidentID)

	result := h.engine.RevokeUserSession(c.Request.Context(), userID, incidentID)
	c.JSON(http.StatusOK, result)
}

// GET /api/response/quarantined-devices
func (h *ResponseHandler) QuarantinedDevices(c *gin.Context) {
	devices := h.engine.QuarantinedDevices()
	c.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}

// GET /api/response/isolated-processes
func (h *ResponseHandler) IsolatedProcesses(c *gin.Context) {
	procs := h.engine.IsolatedProcesses()
	c.JSON(http.StatusOK, gin.H{"processes": procs, "count": len(procs)})
}

// GET /api/response/action-log
func (h *ResponseHandler) ActionLog(c *gin.Context) {
	limit := defaultActionLogLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxActionLogLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, gin.H{"actions": h.engine.ActionLog(limit)})
}
